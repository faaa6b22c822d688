package monitor

import (
	"time"

	"github.com/meridian-labs/selfwatch/internal/store"
)

// Tracker records detected cognitive biases, deduplicated by bias type.
// Repeat detections of the same type increment the recurrence count and
// escalate (never reduce) the stored severity.
type Tracker struct {
	db *store.DB
}

// NewTracker returns a bias tracker over db.
func NewTracker(db *store.DB) *Tracker {
	return &Tracker{db: db}
}

// Report records one bias detection and returns the stored row after the
// update. Validation happens here; the per-type read-modify-write is atomic
// in the store.
func (t *Tracker) Report(r store.BiasReport) (*store.Bias, error) {
	if r.BiasType == "" {
		return nil, store.Validationf("bias_type", "must not be empty")
	}
	if !r.Category.Valid() {
		return nil, store.Validationf("bias_category", "unknown category %q", r.Category)
	}
	if !r.Severity.Valid() {
		return nil, store.Validationf("severity", "unknown severity %q", r.Severity)
	}
	return t.db.UpsertBias(r, time.Now())
}

// List returns biases matching the filter, most recently seen first.
func (t *Tracker) List(f store.BiasFilter) ([]store.Bias, error) {
	if f.Severity != "" && !f.Severity.Valid() {
		return nil, store.Validationf("severity", "unknown severity %q", f.Severity)
	}
	return t.db.ListBiases(f)
}

// MarkCorrected flags a bias as corrected.
func (t *Tracker) MarkCorrected(biasType string) error {
	if biasType == "" {
		return store.Validationf("bias_type", "must not be empty")
	}
	return t.db.MarkBiasCorrected(biasType)
}
