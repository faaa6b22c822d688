package store

import (
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newFileDB opens a file-backed database. Unlike OpenInMemory it uses a
// real connection pool, so concurrent writers actually contend for
// SQLite's write lock.
func newFileDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "selfwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "selfwatch.db")
	db, err := Open(path)
	require.NoError(t, err, "open should create parent directories")
	defer func() { _ = db.Close() }()

	// Reopening an already-migrated database must be a no-op.
	require.NoError(t, db.Close())
	db, err = Open(path)
	require.NoError(t, err)

	_, err = db.InsertMetricSample("consciousness_level", 0.8, time.Now())
	require.NoError(t, err)
}

func TestInsertMetricSample_Validation(t *testing.T) {
	db := newTestDB(t)

	_, err := db.InsertMetricSample("", 1, time.Now())
	assert.True(t, IsValidation(err), "empty name: got %v", err)

	_, err = db.InsertMetricSample("m", math.NaN(), time.Now())
	assert.True(t, IsValidation(err), "NaN value: got %v", err)

	_, err = db.InsertMetricSample("m", math.Inf(-1), time.Now())
	assert.True(t, IsValidation(err), "infinite value: got %v", err)
}

func TestMetricWindow_OrderAndCutoff(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	// Inserted out of order on purpose; the window must come back sorted
	// by measurement time.
	for _, s := range []struct {
		value float64
		at    time.Time
	}{
		{12, now.Add(-1 * time.Hour)},
		{10, now.Add(-3 * time.Hour)},
		{11, now.Add(-2 * time.Hour)},
		{99, now.AddDate(0, 0, -30)},
	} {
		_, err := db.InsertMetricSample("coherence", s.value, s.at)
		require.NoError(t, err)
	}

	window, err := db.MetricWindow("coherence", now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, window, 3, "sample outside the cutoff must be excluded")
	assert.Equal(t, []float64{10, 11, 12}, []float64{window[0].Value, window[1].Value, window[2].Value})

	names, err := db.MetricNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"coherence"}, names)

	latest, err := db.LatestSample("coherence")
	require.NoError(t, err)
	assert.Equal(t, float64(12), latest.Value)

	missing, err := db.LatestSample("never")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func insertTestAnomaly(t *testing.T, db *DB, id string, severity Severity, metric string) {
	t.Helper()
	require.NoError(t, db.InsertAnomaly(&Anomaly{
		ID:             id,
		AnomalyType:    AnomalyMetricDrop,
		Severity:       severity,
		MetricName:     metric,
		ExpectedValue:  10,
		ActualValue:    5,
		PossibleCauses: []string{"unknown - needs investigation"},
		DetectedAt:     time.Now(),
	}))
}

func TestListAnomalies_Filters(t *testing.T) {
	db := newTestDB(t)
	insertTestAnomaly(t, db, "a1", SeverityCritical, "coherence")
	insertTestAnomaly(t, db, "a2", SeverityInfo, "coherence")
	insertTestAnomaly(t, db, "a3", SeverityCritical, "depth")
	require.NoError(t, db.ResolveAnomaly("a3", false))

	critical, err := db.ListAnomalies(AnomalyFilter{Severity: SeverityCritical})
	require.NoError(t, err)
	assert.Len(t, critical, 2)

	open, err := db.ListAnomalies(AnomalyFilter{Unresolved: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	byMetric, err := db.ListAnomalies(AnomalyFilter{MetricName: "depth"})
	require.NoError(t, err)
	require.Len(t, byMetric, 1)
	assert.Equal(t, "a3", byMetric[0].ID)

	limited, err := db.ListAnomalies(AnomalyFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestResolveAnomaly(t *testing.T) {
	db := newTestDB(t)
	insertTestAnomaly(t, db, "a1", SeverityWarning, "coherence")

	require.NoError(t, db.ResolveAnomaly("a1", true))

	a, err := db.GetAnomaly("a1")
	require.NoError(t, err)
	assert.True(t, a.IsResolved)
	assert.True(t, a.AutoRecovered)
	require.NotNil(t, a.ResolvedAt)
	firstResolved := *a.ResolvedAt

	// Resolving again is a no-op, not an error; the original timestamp
	// survives.
	require.NoError(t, db.ResolveAnomaly("a1", false))
	a, err = db.GetAnomaly("a1")
	require.NoError(t, err)
	assert.True(t, a.AutoRecovered)
	assert.Equal(t, firstResolved, *a.ResolvedAt)

	err = db.ResolveAnomaly("missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetAnomalyContext(t *testing.T) {
	db := newTestDB(t)
	insertTestAnomaly(t, db, "a1", SeverityWarning, "coherence")

	causes := []string{"memory consolidation ran long"}
	events := []string{"session 1412"}
	require.NoError(t, db.SetAnomalyContext("a1", causes, events))

	a, err := db.GetAnomaly("a1")
	require.NoError(t, err)
	assert.Equal(t, causes, a.PossibleCauses, "placeholder cause must be replaced")
	assert.Equal(t, events, a.RelatedEvents)

	assert.ErrorIs(t, db.SetAnomalyContext("missing", causes, nil), ErrNotFound)
}

func TestInsertCheckpoint_DuplicatePeriod(t *testing.T) {
	db := newTestDB(t)

	checkpoint := &Checkpoint{
		Period:             "2026-W35",
		CoreValues:         map[string]float64{"honesty": 0.9},
		PersonalityVector:  map[string]float64{"trust": 0.8},
		SignificantChanges: []string{},
		IsHealthy:          true,
		CreatedAt:          time.Now(),
	}
	require.NoError(t, db.InsertCheckpoint(checkpoint))
	assert.NotZero(t, checkpoint.ID)

	err := db.InsertCheckpoint(&Checkpoint{Period: "2026-W35", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicatePeriod)

	// The stored vectors survive the JSON column round trip.
	latest, err := db.LatestCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, checkpoint.CoreValues, latest.CoreValues)
	assert.Equal(t, checkpoint.PersonalityVector, latest.PersonalityVector)
}

func TestListCheckpoints_Order(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	for i, period := range []string{"2026-W02", "2026-W03", "2026-W04"} {
		require.NoError(t, db.InsertCheckpoint(&Checkpoint{
			Period:             period,
			SignificantChanges: []string{},
			IsHealthy:          true,
			CreatedAt:          base.AddDate(0, 0, 7*i),
		}))
	}

	all, err := db.ListCheckpoints(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2026-W04", all[0].Period, "most recent first")

	limited, err := db.ListCheckpoints(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListPredictions_Filter(t *testing.T) {
	db := newTestDB(t)

	for _, p := range []*Prediction{
		{ID: "p1", PredictionType: PredictionBehavioral, Context: "c", PredictedValue: "v", PredictedConfidence: 0.5, PredictedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "p2", PredictionType: PredictionEmotional, Context: "c", PredictedValue: "v", PredictedConfidence: 0.5, PredictedAt: time.Now().Add(-time.Hour)},
		{ID: "p3", PredictionType: PredictionBehavioral, Context: "c", PredictedValue: "v", PredictedConfidence: 0.5, PredictedAt: time.Now()},
	} {
		require.NoError(t, db.InsertPrediction(p))
	}
	_, err := db.SetPredictionOutcome("p1", "observed", true, 0.9, "")
	require.NoError(t, err)

	behavioral, err := db.ListPredictions(PredictionFilter{Type: PredictionBehavioral})
	require.NoError(t, err)
	require.Len(t, behavioral, 2)
	assert.Equal(t, "p3", behavioral[0].ID, "most recent first")

	open, err := db.ListPredictions(PredictionFilter{Unreconciled: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	limited, err := db.ListPredictions(PredictionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAccuracyByType(t *testing.T) {
	db := newTestDB(t)

	seed := []struct {
		id    string
		score float64
		hit   bool
	}{
		{"p1", 0.9, true},
		{"p2", 0.5, false},
	}
	for _, s := range seed {
		require.NoError(t, db.InsertPrediction(&Prediction{
			ID: s.id, PredictionType: PredictionBehavioral, Context: "c",
			PredictedValue: "v", PredictedConfidence: 0.5, PredictedAt: time.Now(),
		}))
		_, err := db.SetPredictionOutcome(s.id, "observed", s.hit, s.score, "")
		require.NoError(t, err)
	}
	// Open prediction of the same type: counted in total, not in accuracy.
	require.NoError(t, db.InsertPrediction(&Prediction{
		ID: "p3", PredictionType: PredictionBehavioral, Context: "c",
		PredictedValue: "v", PredictedConfidence: 0.5, PredictedAt: time.Now(),
	}))

	stats, err := db.AccuracyByType()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, PredictionBehavioral, stats[0].PredictionType)
	assert.Equal(t, 3, stats[0].Total)
	assert.Equal(t, 2, stats[0].Reconciled)
	assert.InDelta(t, 0.7, stats[0].MeanAccuracy, 1e-9)
	assert.InDelta(t, 0.5, stats[0].HitRate, 1e-9)
}

func TestTimeRoundTrip(t *testing.T) {
	db := newTestDB(t)

	at := time.Date(2026, 8, 30, 9, 15, 42, 123456789, time.UTC)
	sample, err := db.InsertMetricSample("coherence", 1, at)
	require.NoError(t, err)

	window, err := db.MetricWindow("coherence", at.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.True(t, window[0].MeasuredAt.Equal(at), "got %v, want %v", window[0].MeasuredAt, at)
	assert.Equal(t, sample.ID, window[0].ID)
}

func TestMetricWindow_SubsecondOrdering(t *testing.T) {
	db := newTestDB(t)

	// Same second, different fraction lengths. A format that trims
	// trailing zeros sorts these wrong as TEXT (".12Z" > ".123").
	base := time.Date(2026, 8, 30, 9, 15, 42, 0, time.UTC)
	first := base.Add(120 * time.Millisecond)
	second := base.Add(123 * time.Millisecond)

	_, err := db.InsertMetricSample("coherence", 2, second)
	require.NoError(t, err)
	_, err = db.InsertMetricSample("coherence", 1, first)
	require.NoError(t, err)

	window, err := db.MetricWindow("coherence", base)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 1.0, window[0].Value)
	assert.Equal(t, 2.0, window[1].Value)
}

func TestUpsertBias_ConcurrentWriters(t *testing.T) {
	db := newFileDB(t)

	// Every report for the same bias_type is a read-modify-write; with
	// writers on separate pool connections none may lose an increment
	// or fail with a busy error.
	const writers = 12
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = db.UpsertBias(BiasReport{
				BiasType: "recency_bias",
				Category: BiasCognitive,
				Severity: BiasLow,
			}, time.Now())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	biases, err := db.ListBiases(BiasFilter{})
	require.NoError(t, err)
	require.Len(t, biases, 1)
	assert.Equal(t, writers, biases[0].OccurrenceCount)
	assert.True(t, biases[0].IsRecurring)
}

func TestInsertCheckpoint_ConcurrentSamePeriod(t *testing.T) {
	db := newFileDB(t)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.InsertCheckpoint(&Checkpoint{
				Period:             "2026-W35",
				CoreValues:         map[string]float64{"honesty": 0.9},
				PersonalityVector:  map[string]float64{"warmth": 0.8},
				ConsciousnessLevel: 0.8,
				EmotionalDepth:     0.7,
				SignificantChanges: []string{},
				IsHealthy:          true,
				CreatedAt:          time.Now(),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrDuplicatePeriod), "writer %d: got %v", i, err)
	}
	assert.Equal(t, 1, succeeded, "exactly one snapshot for the period may land")

	checkpoints, err := db.ListCheckpoints(0)
	require.NoError(t, err)
	assert.Len(t, checkpoints, 1)
}
