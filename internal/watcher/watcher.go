// Package watcher diffs successive snapshots of the self-model stores and
// emits alerts for notable changes: new anomalies, drift jumps, recurring
// biases, and calibration drops. It has no loop of its own; each Check is
// one externally-invoked cycle against the state saved by the previous one.
package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/meridian-labs/selfwatch/internal/store"
)

// WatchState captures a point-in-time summary of the self-model stores.
// It is persisted between invocations so the next cycle has something to
// diff against.
type WatchState struct {
	Timestamp            time.Time          `json:"timestamp"`
	MetricValues         map[string]float64 `json:"metric_values"`
	UnresolvedTotal      int                `json:"unresolved_total"`
	UnresolvedBySeverity map[string]int     `json:"unresolved_by_severity"`
	CheckpointPeriod     string             `json:"checkpoint_period,omitempty"`
	DriftScore           float64            `json:"drift_score"`
	BiasOccurrences      map[string]int     `json:"bias_occurrences"`
	BiasSeverities       map[string]string  `json:"bias_severities"`
	OpenPredictions      int                `json:"open_predictions"`
	Calibration          map[string]float64 `json:"calibration"`

	// AlertKeys are the dedup keys emitted last cycle; identical alerts
	// are suppressed until the underlying data changes.
	AlertKeys map[string]bool `json:"alert_keys,omitempty"`
}

// Alert represents a notable change detected between two snapshots.
type Alert struct {
	Level   string    `json:"level"` // "info", "warning", "critical"
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func (a Alert) key() string {
	return a.Level + ":" + a.Title + ":" + a.Message
}

// Watcher runs single check cycles against the store, persisting its state
// at StatePath between invocations.
type Watcher struct {
	db        *store.DB
	StatePath string
}

// New creates a Watcher over db that keeps its state at statePath.
func New(db *store.DB, statePath string) *Watcher {
	return &Watcher{db: db, StatePath: statePath}
}

// Check performs one cycle: takes a snapshot, compares it against the
// persisted previous state, saves the new state, and returns the alerts.
// The first ever cycle only establishes a baseline and emits nothing.
func (w *Watcher) Check() ([]Alert, error) {
	prev, err := LoadState(w.StatePath)
	if err != nil {
		return nil, fmt.Errorf("loading previous state: %w", err)
	}

	curr, err := Snapshot(w.db)
	if err != nil {
		return nil, fmt.Errorf("taking snapshot: %w", err)
	}

	var alerts []Alert
	currentKeys := make(map[string]bool)
	if prev != nil {
		for _, a := range Compare(prev, curr) {
			key := a.key()
			currentKeys[key] = true
			if !prev.AlertKeys[key] {
				alerts = append(alerts, a)
			}
		}
	}
	curr.AlertKeys = currentKeys

	if err := curr.Save(w.StatePath); err != nil {
		return nil, fmt.Errorf("saving state: %w", err)
	}
	return alerts, nil
}

// Snapshot reads the current summary state from the store.
func Snapshot(db *store.DB) (*WatchState, error) {
	state := &WatchState{
		Timestamp:            time.Now(),
		MetricValues:         make(map[string]float64),
		UnresolvedBySeverity: make(map[string]int),
		BiasOccurrences:      make(map[string]int),
		BiasSeverities:       make(map[string]string),
		Calibration:          make(map[string]float64),
	}

	names, err := db.MetricNames()
	if err != nil {
		return nil, fmt.Errorf("reading metric names: %w", err)
	}
	for _, name := range names {
		latest, err := db.LatestSample(name)
		if err != nil {
			return nil, fmt.Errorf("reading latest %s sample: %w", name, err)
		}
		if latest != nil {
			state.MetricValues[name] = latest.Value
		}
	}

	unresolved, err := db.ListAnomalies(store.AnomalyFilter{Unresolved: true})
	if err != nil {
		return nil, fmt.Errorf("reading anomalies: %w", err)
	}
	state.UnresolvedTotal = len(unresolved)
	for _, a := range unresolved {
		state.UnresolvedBySeverity[string(a.Severity)]++
	}

	checkpoint, err := db.LatestCheckpoint()
	if err != nil {
		return nil, fmt.Errorf("reading latest checkpoint: %w", err)
	}
	if checkpoint != nil {
		state.CheckpointPeriod = checkpoint.Period
		state.DriftScore = checkpoint.DriftScore
	}

	biases, err := db.ListBiases(store.BiasFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading biases: %w", err)
	}
	for _, b := range biases {
		state.BiasOccurrences[b.BiasType] = b.OccurrenceCount
		state.BiasSeverities[b.BiasType] = string(b.Severity)
	}

	open, err := db.ListPredictions(store.PredictionFilter{Unreconciled: true})
	if err != nil {
		return nil, fmt.Errorf("reading predictions: %w", err)
	}
	state.OpenPredictions = len(open)

	stats, err := db.AccuracyByType()
	if err != nil {
		return nil, fmt.Errorf("reading calibration: %w", err)
	}
	for _, ta := range stats {
		if ta.Reconciled > 0 {
			state.Calibration[string(ta.PredictionType)] = ta.MeanAccuracy
		}
	}

	return state, nil
}

// LoadState reads a persisted state. A missing file returns nil with no
// error; that is the baseline case.
func LoadState(path string) (*WatchState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state WatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &state, nil
}

// Save writes the state to path, creating parent directories as needed.
func (s *WatchState) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
