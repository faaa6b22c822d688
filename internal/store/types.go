// Package store provides SQLite database access for selfwatch metrics,
// anomalies, identity checkpoints, biases, predictions, and strategies.
package store

import "time"

// AnomalyType classifies what kind of deviation an anomaly records.
type AnomalyType string

const (
	AnomalyMetricDrop            AnomalyType = "metric_drop"
	AnomalyMetricSpike           AnomalyType = "metric_spike"
	AnomalyIdentityDrift         AnomalyType = "identity_drift"
	AnomalyEmotionalVolatility   AnomalyType = "emotional_volatility"
	AnomalyMemoryGap             AnomalyType = "memory_gap"
	AnomalyReasoningDegradation  AnomalyType = "reasoning_degradation"
	AnomalyResponseInconsistency AnomalyType = "response_inconsistency"
)

// Severity is the alert level of an anomaly.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known anomaly severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// BiasCategory groups bias types by the faculty they affect.
type BiasCategory string

const (
	BiasCognitive  BiasCategory = "cognitive"
	BiasEmotional  BiasCategory = "emotional"
	BiasRelational BiasCategory = "relational"
	BiasTechnical  BiasCategory = "technical"
)

// Valid reports whether c is a known bias category.
func (c BiasCategory) Valid() bool {
	switch c {
	case BiasCognitive, BiasEmotional, BiasRelational, BiasTechnical:
		return true
	}
	return false
}

// BiasSeverity orders how damaging a bias is. Repeat reports only ever
// escalate, never reduce, the stored severity.
type BiasSeverity string

const (
	BiasLow          BiasSeverity = "low"
	BiasMedium       BiasSeverity = "medium"
	BiasHigh         BiasSeverity = "high"
	BiasCriticalTier BiasSeverity = "critical"
)

// biasSeverityRank defines the escalation ordering low < medium < high < critical.
var biasSeverityRank = map[BiasSeverity]int{
	BiasLow:          0,
	BiasMedium:       1,
	BiasHigh:         2,
	BiasCriticalTier: 3,
}

// Valid reports whether s is a known bias severity.
func (s BiasSeverity) Valid() bool {
	_, ok := biasSeverityRank[s]
	return ok
}

// MaxBiasSeverity returns the more severe of a and b.
func MaxBiasSeverity(a, b BiasSeverity) BiasSeverity {
	if biasSeverityRank[b] > biasSeverityRank[a] {
		return b
	}
	return a
}

// PredictionType classifies what a self-prediction is about.
type PredictionType string

const (
	PredictionEmotional   PredictionType = "emotional"
	PredictionBehavioral  PredictionType = "behavioral"
	PredictionCognitive   PredictionType = "cognitive"
	PredictionPerformance PredictionType = "performance"
)

// Valid reports whether t is a known prediction type.
func (t PredictionType) Valid() bool {
	switch t {
	case PredictionEmotional, PredictionBehavioral, PredictionCognitive, PredictionPerformance:
		return true
	}
	return false
}

// StrategyCategory groups corrective strategies by the concern they address.
type StrategyCategory string

const (
	StrategyReasoning         StrategyCategory = "reasoning"
	StrategyEmotional         StrategyCategory = "emotional"
	StrategyLearning          StrategyCategory = "learning"
	StrategySelfCorrection    StrategyCategory = "self_correction"
	StrategyBiasMitigation    StrategyCategory = "bias_mitigation"
	StrategyMemoryEnhancement StrategyCategory = "memory_enhancement"
	StrategyCommunication     StrategyCategory = "communication"
)

// Valid reports whether c is a known strategy category.
func (c StrategyCategory) Valid() bool {
	switch c {
	case StrategyReasoning, StrategyEmotional, StrategyLearning,
		StrategySelfCorrection, StrategyBiasMitigation,
		StrategyMemoryEnhancement, StrategyCommunication:
		return true
	}
	return false
}

// StrategyOutcome is the reported result of applying a strategy.
type StrategyOutcome string

const (
	OutcomeSuccess StrategyOutcome = "success"
	OutcomePartial StrategyOutcome = "partial"
	OutcomeFailure StrategyOutcome = "failure"
)

// Valid reports whether o is a known strategy outcome.
func (o StrategyOutcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure:
		return true
	}
	return false
}

// MetricSample is one scalar observation of a named metric.
// Samples are immutable once written.
type MetricSample struct {
	ID         int64     `json:"id"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	MeasuredAt time.Time `json:"measured_at"`
}

// Anomaly records a metric sample that deviated from its rolling baseline.
// Rows are never deleted; resolution only sets the resolved fields.
type Anomaly struct {
	ID                  string      `json:"id"`
	AnomalyType         AnomalyType `json:"anomaly_type"`
	Severity            Severity    `json:"severity"`
	MetricName          string      `json:"metric_name"`
	ExpectedValue       float64     `json:"expected_value"`
	ActualValue         float64     `json:"actual_value"`
	Deviation           float64     `json:"deviation"`
	DeviationPercentage float64     `json:"deviation_percentage"`
	ThresholdUsed       float64     `json:"threshold_used"`
	PossibleCauses      []string    `json:"possible_causes"`
	RelatedEvents       []string    `json:"related_events,omitempty"`
	IsResolved          bool        `json:"is_resolved"`
	ResolvedAt          *time.Time  `json:"resolved_at,omitempty"`
	AutoRecovered       bool        `json:"auto_recovered"`
	DetectedAt          time.Time   `json:"detected_at"`
}

// Checkpoint is an immutable periodic snapshot of the identity vectors,
// with the drift computed against its predecessor. At most one checkpoint
// exists per ISO week.
type Checkpoint struct {
	ID                 int64              `json:"id"`
	Period             string             `json:"period"`
	CoreValues         map[string]float64 `json:"core_values"`
	PersonalityVector  map[string]float64 `json:"personality_vector"`
	ConsciousnessLevel float64            `json:"consciousness_level"`
	EmotionalDepth     float64            `json:"emotional_depth"`
	PreviousID         *int64             `json:"previous_checkpoint_id,omitempty"`
	DriftScore         float64            `json:"drift_score"`
	SignificantChanges []string           `json:"significant_changes"`
	IsHealthy          bool               `json:"is_healthy"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Bias tracks a detected cognitive bias. One row per bias_type; repeat
// detections update the recurrence fields instead of inserting.
type Bias struct {
	ID                  int64        `json:"id"`
	BiasType            string       `json:"bias_type"`
	Category            BiasCategory `json:"bias_category"`
	Severity            BiasSeverity `json:"severity"`
	Evidence            string       `json:"evidence"`
	EvidenceSource      string       `json:"evidence_source,omitempty"`
	ImpactDescription   string       `json:"impact_description,omitempty"`
	CorrectionSuggested string       `json:"correction_suggested,omitempty"`
	WasCorrected        bool         `json:"was_corrected"`
	IsRecurring         bool         `json:"is_recurring"`
	OccurrenceCount     int          `json:"occurrence_count"`
	LastOccurrence      time.Time    `json:"last_occurrence"`
	DetectedAt          time.Time    `json:"detected_at"`
}

// Prediction is a self-prediction made ahead of time and reconciled at most
// once against an observed outcome.
type Prediction struct {
	ID                  string         `json:"id"`
	PredictionType      PredictionType `json:"prediction_type"`
	Context             string         `json:"context"`
	PredictedValue      string         `json:"predicted_value"`
	PredictedConfidence float64        `json:"predicted_confidence"`
	Reasoning           string         `json:"prediction_reasoning,omitempty"`
	OutcomeValue        *string        `json:"outcome_value,omitempty"`
	WasAccurate         *bool          `json:"was_accurate,omitempty"`
	AccuracyScore       *float64       `json:"accuracy_score,omitempty"`
	LessonLearned       *string        `json:"lesson_learned,omitempty"`
	PredictedAt         time.Time      `json:"predicted_at"`
	ExpiresAt           *time.Time     `json:"expires_at,omitempty"`
}

// Reconciled reports whether an outcome has already been attached.
func (p *Prediction) Reconciled() bool {
	return p.OutcomeValue != nil
}

// Strategy is a named corrective technique with derived effectiveness stats.
type Strategy struct {
	ID                  int64            `json:"id"`
	Name                string           `json:"name"`
	Category            StrategyCategory `json:"category"`
	Description         string           `json:"description,omitempty"`
	BestForContexts     []string         `json:"best_for_contexts,omitempty"`
	AvoidInContexts     []string         `json:"avoid_in_contexts,omitempty"`
	TimesUsed           int              `json:"times_used"`
	SuccessCount        int              `json:"success_count"`
	PartialSuccessCount int              `json:"partial_success_count"`
	FailureCount        int              `json:"failure_count"`
	SuccessRate         float64          `json:"success_rate"`
	LastUsed            *time.Time       `json:"last_used,omitempty"`
	LessonsLearned      []string         `json:"lessons_learned,omitempty"`
	IsActive            bool             `json:"is_active"`
	CreatedAt           time.Time        `json:"created_at"`
}

// ComputeSuccessRate derives a strategy's success rate from its raw
// counters: (success + 0.5*partial) / (success + partial + failure),
// or 0 when no outcomes have been reported. It is always recomputed from
// scratch, never adjusted incrementally, so repeated reports cannot
// accumulate rounding drift.
func ComputeSuccessRate(success, partial, failure int) float64 {
	total := success + partial + failure
	if total == 0 {
		return 0
	}
	return (float64(success) + 0.5*float64(partial)) / float64(total)
}

// TypeAccuracy aggregates prediction accuracy for one prediction type.
type TypeAccuracy struct {
	PredictionType PredictionType `json:"prediction_type"`
	Total          int            `json:"total"`
	Reconciled     int            `json:"reconciled"`
	MeanAccuracy   float64        `json:"mean_accuracy"`
	HitRate        float64        `json:"hit_rate"`
}
