package output

import (
	"strings"
	"testing"
)

func TestVisualLen_PlainText(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"drift_score", 11},
		{"", 0},
		{"abc def", 7},
	}

	for _, tc := range tests {
		got := visualLen(tc.input)
		if got != tc.want {
			t.Errorf("visualLen(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestVisualLen_StripsANSI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{
			name:  "bold",
			input: "\x1b[1mhello\x1b[0m",
			want:  5,
		},
		{
			name:  "color",
			input: "\x1b[31mred\x1b[0m",
			want:  3,
		},
		{
			name:  "multiple sequences",
			input: "\x1b[1m\x1b[34mblue bold\x1b[0m",
			want:  9,
		},
		{
			name:  "no ansi",
			input: "plain text",
			want:  10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := visualLen(tc.input)
			if got != tc.want {
				t.Errorf("visualLen() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPad(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  int // expected length of output
	}{
		{"needs padding", "hi", 10, 10},
		{"exact width", "hello", 5, 5},
		{"over width", "toolong", 3, 7}, // no truncation
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := pad(tc.input, tc.width)
			if len(got) != tc.want {
				t.Errorf("pad(%q, %d) len = %d, want %d", tc.input, tc.width, len(got), tc.want)
			}
		})
	}
}

func TestTable_Render(t *testing.T) {
	// Disable color so we get predictable output.
	SetNoColor(true)
	defer SetNoColor(false)

	tbl := NewTable("Metric", "Severity")
	tbl.AddRow("happiness", "critical")
	tbl.AddRow("focus", "info")

	out := tbl.Render()

	// Should contain headers.
	if !strings.Contains(out, "Metric") {
		t.Error("expected header 'Metric' in output")
	}
	if !strings.Contains(out, "Severity") {
		t.Error("expected header 'Severity' in output")
	}

	// Should contain data.
	if !strings.Contains(out, "happiness") {
		t.Error("expected 'happiness' in output")
	}
	if !strings.Contains(out, "focus") {
		t.Error("expected 'focus' in output")
	}

	// Should have separator line.
	if !strings.Contains(out, "─") {
		t.Error("expected separator character in output")
	}

	// Count lines: header + separator + 2 data rows = 4 lines.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Errorf("expected 4 lines, got %d", len(lines))
	}
}

func TestTable_EmptyHeaders(t *testing.T) {
	tbl := NewTable()
	out := tbl.Render()
	if out != "" {
		t.Errorf("expected empty output for empty table, got %q", out)
	}
}

func TestTable_ColumnWidths(t *testing.T) {
	SetNoColor(true)
	defer SetNoColor(false)

	tbl := NewTable("A", "LongHeader")
	tbl.AddRow("VeryLongValue", "X")

	out := tbl.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if len(lines) < 3 {
		t.Fatalf("expected at least 3 lines, got %d", len(lines))
	}

	// The data row should be padded so columns align.
	dataLine := lines[2]
	if !strings.Contains(dataLine, "VeryLongValue") {
		t.Error("expected data row to contain 'VeryLongValue'")
	}
}

func TestSeverityBadge(t *testing.T) {
	SetNoColor(true)
	defer SetNoColor(false)

	for _, severity := range []string{"info", "warning", "critical", "low", "medium", "high"} {
		if got := SeverityBadge(severity); got != severity {
			t.Errorf("SeverityBadge(%q) = %q with color disabled", severity, got)
		}
	}

	// Unknown severities pass through unchanged.
	if got := SeverityBadge("weird"); got != "weird" {
		t.Errorf("SeverityBadge(unknown) = %q", got)
	}
}

func TestDriftBar(t *testing.T) {
	SetNoColor(true)
	defer SetNoColor(false)

	tests := []struct {
		score      float64
		wantFilled int
	}{
		{0, 0},
		{0.5, 5},
		{1.0, 10},
		{1.5, 10}, // clamped
		{-0.2, 0}, // clamped
	}

	for _, tc := range tests {
		bar := DriftBar(tc.score, 10)
		filled := strings.Count(bar, "█")
		if filled != tc.wantFilled {
			t.Errorf("DriftBar(%v) filled = %d, want %d", tc.score, filled, tc.wantFilled)
		}
	}
}

func TestSetNoColor(t *testing.T) {
	// After SetNoColor(true), StyleHeader should render without ANSI.
	SetNoColor(true)
	rendered := StyleHeader.Render("test")
	if strings.Contains(rendered, "\x1b[") {
		t.Error("expected no ANSI codes after SetNoColor(true)")
	}

	// SetNoColor(false) does not restore the original styles; it only
	// stops forcing plain. We just verify no crash and that the function
	// is idempotent.
	SetNoColor(false)
}
