package monitor

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/meridian-labs/selfwatch/internal/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewLedger(db)
}

func TestRegister(t *testing.T) {
	l := newTestLedger(t)

	s, err := l.Register("perspective-shift", store.StrategyReasoning, "restate the problem", []string{"disagreements"}, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.TimesUsed != 0 || s.SuccessRate != 0 {
		t.Errorf("new strategy has stats: used=%d rate=%v", s.TimesUsed, s.SuccessRate)
	}

	_, err = l.Register("perspective-shift", store.StrategyReasoning, "", nil, nil)
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Errorf("duplicate name: err = %v, want ErrDuplicateName", err)
	}

	if _, err := l.Register("", store.StrategyReasoning, "", nil, nil); !store.IsValidation(err) {
		t.Errorf("empty name: err = %v, want validation error", err)
	}
	if _, err := l.Register("x", "vibes", "", nil, nil); !store.IsValidation(err) {
		t.Errorf("bad category: err = %v, want validation error", err)
	}
}

func TestReportOutcome_SuccessRate(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.Register("grounding", store.StrategyEmotional, "", nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	outcomes := []store.StrategyOutcome{
		store.OutcomeSuccess, store.OutcomeSuccess, store.OutcomeSuccess,
		store.OutcomePartial, store.OutcomeFailure,
	}
	var last *store.Strategy
	var err error
	for _, o := range outcomes {
		if last, err = l.ReportOutcome("grounding", o); err != nil {
			t.Fatalf("ReportOutcome(%s): %v", o, err)
		}
	}

	// (3 + 0.5*1) / 5 = 0.70
	if math.Abs(last.SuccessRate-0.70) > 1e-9 {
		t.Errorf("rate = %v, want 0.70", last.SuccessRate)
	}
	if last.TimesUsed != 5 {
		t.Errorf("times used = %d, want 5", last.TimesUsed)
	}
	if last.SuccessCount != 3 || last.PartialSuccessCount != 1 || last.FailureCount != 1 {
		t.Errorf("counters = %d/%d/%d, want 3/1/1", last.SuccessCount, last.PartialSuccessCount, last.FailureCount)
	}
	if last.LastUsed == nil {
		t.Error("expected last_used to be set")
	}
}

func TestReportOutcome_Errors(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.ReportOutcome("never-registered", store.OutcomeSuccess); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown name: err = %v, want ErrNotFound", err)
	}

	if _, err := l.Register("grounding", store.StrategyEmotional, "", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ReportOutcome("grounding", "triumph"); !store.IsValidation(err) {
		t.Errorf("bad outcome: err = %v, want validation error", err)
	}
}

// The stored rate must always equal the rate recomputed from the stored
// counters, no matter the outcome sequence.
func TestReportOutcome_RateMatchesCounters(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Register("verify", store.StrategySelfCorrection, "", nil, nil); err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(1))
	outcomes := []store.StrategyOutcome{store.OutcomeSuccess, store.OutcomePartial, store.OutcomeFailure}
	for i := 0; i < 50; i++ {
		s, err := l.ReportOutcome("verify", outcomes[rng.Intn(len(outcomes))])
		if err != nil {
			t.Fatalf("ReportOutcome %d: %v", i, err)
		}
		want := store.ComputeSuccessRate(s.SuccessCount, s.PartialSuccessCount, s.FailureCount)
		if math.Abs(s.SuccessRate-want) > 1e-9 {
			t.Fatalf("after %d outcomes: rate = %v, counters say %v", i+1, s.SuccessRate, want)
		}
		if s.TimesUsed != s.SuccessCount+s.PartialSuccessCount+s.FailureCount {
			t.Fatalf("times used %d does not match counters", s.TimesUsed)
		}
	}
}

func TestList_Sorting(t *testing.T) {
	l := newTestLedger(t)

	seed := []struct {
		name     string
		outcomes []store.StrategyOutcome
	}{
		{"weak", []store.StrategyOutcome{store.OutcomeFailure, store.OutcomeFailure}},
		{"strong", []store.StrategyOutcome{store.OutcomeSuccess}},
		{"busy", []store.StrategyOutcome{store.OutcomePartial, store.OutcomePartial, store.OutcomePartial}},
	}
	for _, s := range seed {
		if _, err := l.Register(s.name, store.StrategyLearning, "", nil, nil); err != nil {
			t.Fatal(err)
		}
		for _, o := range s.outcomes {
			if _, err := l.ReportOutcome(s.name, o); err != nil {
				t.Fatal(err)
			}
		}
	}

	byRate, err := l.List(store.SortBySuccessRate)
	if err != nil {
		t.Fatalf("List by rate: %v", err)
	}
	if byRate[0].Name != "strong" {
		t.Errorf("top by rate = %s, want strong", byRate[0].Name)
	}

	byUse, err := l.List(store.SortByTimesUsed)
	if err != nil {
		t.Fatalf("List by use: %v", err)
	}
	if byUse[0].Name != "busy" {
		t.Errorf("top by use = %s, want busy", byUse[0].Name)
	}
}

func TestAddLessonAndSetActive(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Register("grounding", store.StrategyEmotional, "", nil, nil); err != nil {
		t.Fatal(err)
	}

	if err := l.AddLesson("grounding", "works best early in a spiral"); err != nil {
		t.Fatalf("AddLesson: %v", err)
	}
	if err := l.AddLesson("grounding", "less useful when rushed"); err != nil {
		t.Fatalf("second AddLesson: %v", err)
	}
	if err := l.SetActive("grounding", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	strategies, err := l.List(store.SortBySuccessRate)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	s := strategies[0]
	if len(s.LessonsLearned) != 2 {
		t.Errorf("lessons = %v, want both recorded in order", s.LessonsLearned)
	}
	if s.IsActive {
		t.Error("expected strategy deactivated")
	}

	if err := l.AddLesson("ghost", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown name: err = %v, want ErrNotFound", err)
	}
}

func TestComputeSuccessRate(t *testing.T) {
	tests := []struct {
		s, p, f int
		want    float64
	}{
		{0, 0, 0, 0},
		{3, 1, 1, 0.70},
		{1, 0, 0, 1},
		{0, 1, 0, 0.5},
		{0, 0, 4, 0},
	}
	for _, tt := range tests {
		if got := store.ComputeSuccessRate(tt.s, tt.p, tt.f); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ComputeSuccessRate(%d,%d,%d) = %v, want %v", tt.s, tt.p, tt.f, got, tt.want)
		}
	}
}
