package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-labs/selfwatch/internal/store"
)

// Severity tier boundaries for the relative deviation.
const (
	criticalDeviation = 0.50
	warningDeviation  = 0.30
)

// DefaultDeviationThreshold is the relative deviation below which a sample
// is considered normal.
const DefaultDeviationThreshold = 0.20

// DefaultWindowDays is the trailing baseline window for anomaly checks.
const DefaultWindowDays = 7

// placeholderCause seeds the possible_causes list on every new anomaly.
// Callers enrich it once they have investigated.
const placeholderCause = "unknown - needs investigation"

// Detector compares metric samples against a rolling baseline built from
// the metric history and persists anomaly records for outliers.
//
// A check is a pure function of its inputs plus the stored history: the
// same history, current value, and threshold always produce the same
// verdict and severity tier.
type Detector struct {
	db *store.DB

	// WindowDays is the trailing window the baseline is computed over.
	WindowDays int

	// Threshold is the default relative deviation threshold, used when a
	// check does not supply its own.
	Threshold float64
}

// NewDetector returns a Detector with the default window and threshold.
func NewDetector(db *store.DB) *Detector {
	return &Detector{
		db:         db,
		WindowDays: DefaultWindowDays,
		Threshold:  DefaultDeviationThreshold,
	}
}

// Check compares current against the metric's baseline. A nil anomaly with
// a nil error means "no verdict": either the sample is within the threshold
// or there is not enough history to build a baseline. An anomaly record is
// persisted before being returned.
//
// A threshold of 0 uses the detector default.
func (d *Detector) Check(metricName string, current float64, threshold float64) (*store.Anomaly, error) {
	if metricName == "" {
		return nil, store.Validationf("metric_name", "must not be empty")
	}
	if !isFinite(current) {
		return nil, store.Validationf("current_value", "must be finite, got %v", current)
	}
	if threshold == 0 {
		threshold = d.Threshold
	}
	if threshold < 0 {
		return nil, store.Validationf("deviation_threshold", "must be positive, got %v", threshold)
	}
	return d.check(metricName, current, threshold, 0)
}

// CheckLatest runs a check using the metric's most recent sample as the
// current value, with the sample itself excluded from the baseline. It
// returns a nil anomaly when the metric has no samples at all.
func (d *Detector) CheckLatest(metricName string, threshold float64) (*store.Anomaly, error) {
	if threshold == 0 {
		threshold = d.Threshold
	}
	latest, err := d.db.LatestSample(metricName)
	if err != nil {
		return nil, fmt.Errorf("loading latest sample: %w", err)
	}
	if latest == nil {
		return nil, nil
	}
	return d.check(metricName, latest.Value, threshold, latest.ID)
}

func (d *Detector) check(metricName string, current, threshold float64, excludeID int64) (*store.Anomaly, error) {
	since := time.Now().AddDate(0, 0, -d.WindowDays)
	samples, err := d.db.MetricWindow(metricName, since)
	if err != nil {
		return nil, fmt.Errorf("loading metric window: %w", err)
	}

	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if excludeID != 0 && s.ID == excludeID {
			continue
		}
		values = append(values, s.Value)
	}

	// Insufficient signal is a defined non-verdict, not an error: early in
	// a metric's life there is no baseline to deviate from.
	if len(values) < 2 {
		return nil, nil
	}
	mean := Mean(values)
	stddev := SampleStdDev(values)
	if mean == 0 || stddev == 0 {
		return nil, nil
	}

	deviation := math.Abs(current-mean) / mean
	if deviation <= threshold {
		return nil, nil
	}

	anomalyType := store.AnomalyMetricSpike
	if current < mean {
		anomalyType = store.AnomalyMetricDrop
	}

	severity := store.SeverityInfo
	switch {
	case deviation > criticalDeviation:
		severity = store.SeverityCritical
	case deviation > warningDeviation:
		severity = store.SeverityWarning
	}

	anomaly := &store.Anomaly{
		ID:                  uuid.NewString(),
		AnomalyType:         anomalyType,
		Severity:            severity,
		MetricName:          metricName,
		ExpectedValue:       mean,
		ActualValue:         current,
		Deviation:           current - mean,
		DeviationPercentage: deviation * 100,
		ThresholdUsed:       threshold,
		PossibleCauses:      []string{placeholderCause},
		DetectedAt:          time.Now(),
	}
	if err := d.db.InsertAnomaly(anomaly); err != nil {
		return nil, err
	}
	return anomaly, nil
}
