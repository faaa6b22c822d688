package watcher

import (
	"fmt"
	"time"
)

// Thresholds for comparison alerts.
const (
	driftJumpWarning  = 0.1  // drift increase between checkpoints
	driftCritical     = 0.5  // absolute drift level
	calibrationDrop   = 0.15 // per-type mean accuracy decrease
	predictionBacklog = 10   // open predictions before nagging
)

// Compare detects notable changes between two snapshots and returns alerts.
func Compare(prev, curr *WatchState) []Alert {
	var alerts []Alert

	alerts = append(alerts, compareCritical(prev, curr)...)
	alerts = append(alerts, compareWarning(prev, curr)...)
	alerts = append(alerts, compareInfo(prev, curr)...)

	return alerts
}

func compareCritical(prev, curr *WatchState) []Alert {
	var alerts []Alert
	now := time.Now()

	// New unresolved critical anomalies.
	prevCritical := prev.UnresolvedBySeverity["critical"]
	currCritical := curr.UnresolvedBySeverity["critical"]
	if currCritical > prevCritical {
		alerts = append(alerts, Alert{
			Level:   "critical",
			Title:   "New critical anomaly",
			Message: fmt.Sprintf("%d unresolved critical anomaly(s), up from %d", currCritical, prevCritical),
			Time:    now,
		})
	}

	// Identity drift crossed into critical territory.
	if curr.DriftScore > driftCritical && prev.DriftScore <= driftCritical {
		alerts = append(alerts, Alert{
			Level:   "critical",
			Title:   "Identity drift critical",
			Message: fmt.Sprintf("Drift score is %.2f (was %.2f), more than half the identity vectors moved", curr.DriftScore, prev.DriftScore),
			Time:    now,
		})
	}

	// A bias escalated to critical severity.
	for biasType, severity := range curr.BiasSeverities {
		if severity != "critical" {
			continue
		}
		if prev.BiasSeverities[biasType] != "critical" {
			alerts = append(alerts, Alert{
				Level:   "critical",
				Title:   fmt.Sprintf("Critical bias: %s", biasType),
				Message: fmt.Sprintf("Escalated to critical severity after %d occurrence(s)", curr.BiasOccurrences[biasType]),
				Time:    now,
			})
		}
	}

	return alerts
}

func compareWarning(prev, curr *WatchState) []Alert {
	var alerts []Alert
	now := time.Now()

	// Unresolved anomaly backlog grew.
	if curr.UnresolvedTotal > prev.UnresolvedTotal {
		alerts = append(alerts, Alert{
			Level:   "warning",
			Title:   "Anomaly backlog growing",
			Message: fmt.Sprintf("%d unresolved anomaly(s), up from %d", curr.UnresolvedTotal, prev.UnresolvedTotal),
			Time:    now,
		})
	}

	// Drift jumped noticeably between checkpoints without being critical.
	if curr.CheckpointPeriod != prev.CheckpointPeriod &&
		curr.DriftScore-prev.DriftScore > driftJumpWarning &&
		curr.DriftScore <= driftCritical {
		alerts = append(alerts, Alert{
			Level:   "warning",
			Title:   "Identity drift increased",
			Message: fmt.Sprintf("Drift score rose from %.2f to %.2f in %s", prev.DriftScore, curr.DriftScore, curr.CheckpointPeriod),
			Time:    now,
		})
	}

	// A bias started recurring (occurrence count passed 1).
	for biasType, count := range curr.BiasOccurrences {
		prevCount := prev.BiasOccurrences[biasType]
		if count > 1 && prevCount <= 1 {
			alerts = append(alerts, Alert{
				Level:   "warning",
				Title:   fmt.Sprintf("Recurring bias: %s", biasType),
				Message: fmt.Sprintf("Seen %d times, was %d", count, prevCount),
				Time:    now,
			})
		}
	}

	// Calibration for a prediction type dropped.
	for predictionType, accuracy := range curr.Calibration {
		prevAccuracy, existed := prev.Calibration[predictionType]
		if existed && prevAccuracy-accuracy > calibrationDrop {
			alerts = append(alerts, Alert{
				Level:   "warning",
				Title:   fmt.Sprintf("Calibration drop: %s", predictionType),
				Message: fmt.Sprintf("Mean accuracy fell from %.2f to %.2f", prevAccuracy, accuracy),
				Time:    now,
			})
		}
	}

	return alerts
}

func compareInfo(prev, curr *WatchState) []Alert {
	var alerts []Alert
	now := time.Now()

	// A metric was recorded for the first time.
	for name := range curr.MetricValues {
		if _, existed := prev.MetricValues[name]; !existed {
			alerts = append(alerts, Alert{
				Level:   "info",
				Title:   fmt.Sprintf("New metric: %s", name),
				Message: fmt.Sprintf("First sample recorded (%.2f)", curr.MetricValues[name]),
				Time:    now,
			})
		}
	}

	// A new checkpoint was taken.
	if curr.CheckpointPeriod != "" && curr.CheckpointPeriod != prev.CheckpointPeriod {
		alerts = append(alerts, Alert{
			Level:   "info",
			Title:   fmt.Sprintf("Checkpoint %s", curr.CheckpointPeriod),
			Message: fmt.Sprintf("Drift score %.2f", curr.DriftScore),
			Time:    now,
		})
	}

	// Open prediction backlog passed the nag threshold.
	if curr.OpenPredictions >= predictionBacklog && prev.OpenPredictions < predictionBacklog {
		alerts = append(alerts, Alert{
			Level:   "info",
			Title:   "Prediction backlog",
			Message: fmt.Sprintf("%d prediction(s) waiting for reconciliation", curr.OpenPredictions),
			Time:    now,
		})
	}

	return alerts
}
