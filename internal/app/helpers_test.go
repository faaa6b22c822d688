package app

import (
	"reflect"
	"testing"
)

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    map[string]float64
		wantErr bool
	}{
		{"empty", "", map[string]float64{}, false},
		{"single", "trust=0.8", map[string]float64{"trust": 0.8}, false},
		{"several", "trust=0.8,warmth=0.9", map[string]float64{"trust": 0.8, "warmth": 0.9}, false},
		{"spaces", " trust=0.8 , warmth=0.9", map[string]float64{"trust": 0.8, "warmth": 0.9}, false},
		{"missing equals", "trust", nil, true},
		{"empty key", "=0.8", nil, true},
		{"bad number", "trust=high", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVector(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseVector(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseVector(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"a", []string{"a"}},
		{"a,b", []string{"a", "b"}},
		{"a, b ,,c", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a long predicted value", 10); len([]rune(got)) != 10 {
		t.Errorf("truncate long = %q, want 10 runes", got)
	}
}
