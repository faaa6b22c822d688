package monitor

import (
	"errors"
	"math"
	"testing"

	"github.com/meridian-labs/selfwatch/internal/store"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewValidator(db)
}

func mustCreate(t *testing.T, v *Validator, predictionType store.PredictionType, confidence float64) *store.Prediction {
	t.Helper()
	p, err := v.Create(predictionType, "weekend conversation", "suggest a hike", confidence, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func TestCreate(t *testing.T) {
	v := newTestValidator(t)

	p := mustCreate(t, v, store.PredictionBehavioral, 0.8)
	if p.ID == "" {
		t.Error("expected a generated id")
	}
	if p.Reconciled() {
		t.Error("new prediction must be unreconciled")
	}
	if p.WasAccurate != nil || p.AccuracyScore != nil {
		t.Error("outcome fields must be unset on creation")
	}
}

func TestCreate_Validation(t *testing.T) {
	v := newTestValidator(t)

	if _, err := v.Create("astrological", "ctx", "val", 0.5, "", nil); !store.IsValidation(err) {
		t.Errorf("bad type: err = %v, want validation error", err)
	}
	if _, err := v.Create(store.PredictionBehavioral, "", "val", 0.5, "", nil); !store.IsValidation(err) {
		t.Errorf("empty context: err = %v, want validation error", err)
	}
	if _, err := v.Create(store.PredictionBehavioral, "ctx", "val", 1.5, "", nil); !store.IsValidation(err) {
		t.Errorf("confidence > 1: err = %v, want validation error", err)
	}
	if _, err := v.Create(store.PredictionBehavioral, "ctx", "val", -0.1, "", nil); !store.IsValidation(err) {
		t.Errorf("negative confidence: err = %v, want validation error", err)
	}
}

func TestReconcile_AccuracyBoundary(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		score        float64
		wantAccurate bool
	}{
		{0.69, false},
		{0.70, true}, // threshold itself counts as accurate
		{1.0, true},
		{0.0, false},
	}
	for _, tt := range tests {
		p := mustCreate(t, v, store.PredictionBehavioral, 0.8)
		got, err := v.Reconcile(p.ID, "went for a walk", tt.score)
		if err != nil {
			t.Fatalf("Reconcile(%v): %v", tt.score, err)
		}
		if got.WasAccurate == nil || *got.WasAccurate != tt.wantAccurate {
			t.Errorf("score %v: accurate = %v, want %v", tt.score, got.WasAccurate, tt.wantAccurate)
		}
		if got.AccuracyScore == nil || *got.AccuracyScore != tt.score {
			t.Errorf("score %v: stored score = %v", tt.score, got.AccuracyScore)
		}
	}
}

func TestReconcile_ExactlyOnce(t *testing.T) {
	v := newTestValidator(t)
	p := mustCreate(t, v, store.PredictionEmotional, 0.6)

	first, err := v.Reconcile(p.ID, "calm response", 0.9)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	_, err = v.Reconcile(p.ID, "different outcome", 0.1)
	if !errors.Is(err, store.ErrAlreadyReconciled) {
		t.Fatalf("second Reconcile: err = %v, want ErrAlreadyReconciled", err)
	}

	// The stored record must be untouched by the failed attempt.
	stored, err := v.db.GetPrediction(p.ID)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if *stored.OutcomeValue != *first.OutcomeValue || *stored.AccuracyScore != 0.9 {
		t.Errorf("record changed after failed reconcile: %+v", stored)
	}
}

func TestReconcile_UnknownAndInvalid(t *testing.T) {
	v := newTestValidator(t)

	if _, err := v.Reconcile("no-such-id", "outcome", 0.5); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}

	p := mustCreate(t, v, store.PredictionCognitive, 0.5)
	if _, err := v.Reconcile(p.ID, "outcome", 1.2); !store.IsValidation(err) {
		t.Errorf("score > 1: err = %v, want validation error", err)
	}
	if _, err := v.Reconcile(p.ID, "", 0.5); !store.IsValidation(err) {
		t.Errorf("empty outcome: err = %v, want validation error", err)
	}
}

func TestCalibration(t *testing.T) {
	v := newTestValidator(t)

	scores := []float64{0.9, 0.5, 0.7}
	for _, s := range scores {
		p := mustCreate(t, v, store.PredictionBehavioral, 0.8)
		if _, err := v.Reconcile(p.ID, "observed", s); err != nil {
			t.Fatalf("Reconcile(%v): %v", s, err)
		}
	}
	// One open prediction must not count toward the mean.
	mustCreate(t, v, store.PredictionBehavioral, 0.8)

	got, err := v.Calibration(store.PredictionBehavioral)
	if err != nil {
		t.Fatalf("Calibration: %v", err)
	}
	if math.Abs(got-0.7) > 1e-9 {
		t.Errorf("calibration = %v, want 0.7", got)
	}

	// A type with no predictions calibrates to zero.
	empty, err := v.Calibration(store.PredictionEmotional)
	if err != nil {
		t.Fatalf("Calibration (empty): %v", err)
	}
	if empty != 0 {
		t.Errorf("empty calibration = %v, want 0", empty)
	}
}

func TestAddLesson_RequiresReconciled(t *testing.T) {
	v := newTestValidator(t)
	p := mustCreate(t, v, store.PredictionPerformance, 0.4)

	if err := v.AddLesson(p.ID, "too optimistic"); err == nil {
		t.Fatal("expected error adding a lesson to an open prediction")
	}

	if _, err := v.Reconcile(p.ID, "missed estimate", 0.3); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := v.AddLesson(p.ID, "too optimistic"); err != nil {
		t.Fatalf("AddLesson: %v", err)
	}

	stored, err := v.db.GetPrediction(p.ID)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if stored.LessonLearned == nil || *stored.LessonLearned != "too optimistic" {
		t.Errorf("lesson = %v, want recorded", stored.LessonLearned)
	}
}
