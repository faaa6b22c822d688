package watcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-labs/selfwatch/internal/store"
)

func newTestWatcher(t *testing.T) (*Watcher, *store.DB) {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	statePath := filepath.Join(t.TempDir(), "watchstate.json")
	return New(db, statePath), db
}

func TestSnapshot(t *testing.T) {
	_, db := newTestWatcher(t)

	if _, err := db.InsertMetricSample("coherence", 0.84, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertAnomaly(&store.Anomaly{
		ID:          "a1",
		AnomalyType: store.AnomalyMetricDrop,
		Severity:    store.SeverityCritical,
		MetricName:  "coherence",
		DetectedAt:  time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertCheckpoint(&store.Checkpoint{
		Period:             "2026-W35",
		DriftScore:         0.12,
		SignificantChanges: []string{},
		IsHealthy:          true,
		CreatedAt:          time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	state, err := Snapshot(db)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.MetricValues["coherence"] != 0.84 {
		t.Errorf("metric value = %v, want 0.84", state.MetricValues["coherence"])
	}
	if state.UnresolvedTotal != 1 || state.UnresolvedBySeverity["critical"] != 1 {
		t.Errorf("unresolved = %d (%v), want 1 critical", state.UnresolvedTotal, state.UnresolvedBySeverity)
	}
	if state.CheckpointPeriod != "2026-W35" || state.DriftScore != 0.12 {
		t.Errorf("checkpoint = %s/%v, want 2026-W35/0.12", state.CheckpointPeriod, state.DriftScore)
	}
}

func TestCheck_FirstCycleIsBaseline(t *testing.T) {
	w, db := newTestWatcher(t)
	if _, err := db.InsertMetricSample("coherence", 0.84, time.Now()); err != nil {
		t.Fatal(err)
	}

	alerts, err := w.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("first cycle must only establish a baseline, got %+v", alerts)
	}
}

func TestCheck_DetectsChangeThenDeduplicates(t *testing.T) {
	w, db := newTestWatcher(t)

	if _, err := w.Check(); err != nil {
		t.Fatalf("baseline Check: %v", err)
	}

	if err := db.InsertAnomaly(&store.Anomaly{
		ID:          "a1",
		AnomalyType: store.AnomalyMetricDrop,
		Severity:    store.SeverityCritical,
		MetricName:  "coherence",
		DetectedAt:  time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	alerts, err := w.Check()
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if countLevel(alerts, "critical") != 1 {
		t.Fatalf("expected a critical alert, got %+v", alerts)
	}

	// Nothing changed since; the same condition must not re-alert.
	alerts, err = w.Check()
	if err != nil {
		t.Fatalf("third Check: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected suppressed repeat alerts, got %+v", alerts)
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "watchstate.json")

	missing, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState on missing file: %v", err)
	}
	if missing != nil {
		t.Fatal("missing state file must load as nil")
	}

	state := makeState()
	state.Timestamp = time.Now()
	state.MetricValues["coherence"] = 0.84
	state.UnresolvedTotal = 2
	state.AlertKeys = map[string]bool{"critical:x:y": true}
	if err := state.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.MetricValues["coherence"] != 0.84 || loaded.UnresolvedTotal != 2 {
		t.Errorf("loaded state differs: %+v", loaded)
	}
	if !loaded.AlertKeys["critical:x:y"] {
		t.Error("alert keys must survive the round trip")
	}
}
