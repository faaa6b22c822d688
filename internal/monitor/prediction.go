package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-labs/selfwatch/internal/store"
)

// DefaultAccuracyThreshold is the accuracy score at or above which a
// reconciled prediction counts as accurate.
const DefaultAccuracyThreshold = 0.7

// Validator stores self-predictions and reconciles them against observed
// outcomes exactly once. It exposes a calibration signal per prediction
// type but never adjusts future confidence itself; that feedback loop
// belongs to the caller.
type Validator struct {
	db *store.DB

	// AccuracyThreshold is the was_accurate cutoff.
	AccuracyThreshold float64
}

// NewValidator returns a prediction validator with the default accuracy
// threshold.
func NewValidator(db *store.DB) *Validator {
	return &Validator{db: db, AccuracyThreshold: DefaultAccuracyThreshold}
}

// Create stores a new prediction with outcome fields unset and returns it.
func (v *Validator) Create(predictionType store.PredictionType, context, predictedValue string, confidence float64, reasoning string, expiresAt *time.Time) (*store.Prediction, error) {
	if !predictionType.Valid() {
		return nil, store.Validationf("prediction_type", "unknown type %q", predictionType)
	}
	if context == "" {
		return nil, store.Validationf("context", "must not be empty")
	}
	if predictedValue == "" {
		return nil, store.Validationf("predicted_value", "must not be empty")
	}
	if !isFinite(confidence) || confidence < 0 || confidence > 1 {
		return nil, store.Validationf("predicted_confidence", "must be in [0,1], got %v", confidence)
	}

	p := &store.Prediction{
		ID:                  uuid.NewString(),
		PredictionType:      predictionType,
		Context:             context,
		PredictedValue:      predictedValue,
		PredictedConfidence: confidence,
		Reasoning:           reasoning,
		PredictedAt:         time.Now(),
		ExpiresAt:           expiresAt,
	}
	if err := v.db.InsertPrediction(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Reconcile attaches the observed outcome to a prediction. The accuracy
// score is caller-supplied (how it is computed, e.g. by a similarity
// function, is the caller's concern); was_accurate is derived from the
// threshold and lesson_learned starts as an empty placeholder. A second
// reconciliation fails with store.ErrAlreadyReconciled and leaves the
// stored prediction untouched.
func (v *Validator) Reconcile(id, outcomeValue string, accuracyScore float64) (*store.Prediction, error) {
	if id == "" {
		return nil, store.Validationf("prediction_id", "must not be empty")
	}
	if outcomeValue == "" {
		return nil, store.Validationf("outcome_value", "must not be empty")
	}
	if !isFinite(accuracyScore) || accuracyScore < 0 || accuracyScore > 1 {
		return nil, store.Validationf("accuracy_score", "must be in [0,1], got %v", accuracyScore)
	}

	wasAccurate := accuracyScore >= v.AccuracyThreshold
	return v.db.SetPredictionOutcome(id, outcomeValue, wasAccurate, accuracyScore, "")
}

// Calibration returns the mean accuracy score across all reconciled
// predictions of the given type, or 0 when none have been reconciled.
// Callers use it to adjust the confidence of future predictions.
func (v *Validator) Calibration(predictionType store.PredictionType) (float64, error) {
	if !predictionType.Valid() {
		return 0, store.Validationf("prediction_type", "unknown type %q", predictionType)
	}
	stats, err := v.db.AccuracyByType()
	if err != nil {
		return 0, fmt.Errorf("loading accuracy stats: %w", err)
	}
	for _, ta := range stats {
		if ta.PredictionType == predictionType {
			return ta.MeanAccuracy, nil
		}
	}
	return 0, nil
}

// AddLesson fills in the lesson_learned placeholder on a reconciled
// prediction.
func (v *Validator) AddLesson(id, lesson string) error {
	p, err := v.db.GetPrediction(id)
	if err != nil {
		return err
	}
	if !p.Reconciled() {
		return store.Validationf("prediction_id", "prediction %s has no outcome yet", id)
	}
	return v.db.SetPredictionLesson(id, lesson)
}
