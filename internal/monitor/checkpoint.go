package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/meridian-labs/selfwatch/internal/store"
)

// Default drift weighting between the two identity vectors.
const (
	DefaultCoreValuesWeight  = 0.4
	DefaultPersonalityWeight = 0.6
)

// neutralTraitValue is substituted for a trait missing from either vector
// when diffing two checkpoints.
const neutralTraitValue = 0.5

// DefaultSignificantChange is the per-trait absolute difference above which
// a change is listed in significant_changes.
const DefaultSignificantChange = 0.1

// Checkpoints takes periodic snapshots of the identity vectors and scores
// the drift against the previous checkpoint. At most one checkpoint exists
// per ISO week.
type Checkpoints struct {
	db *store.DB

	// CoreValuesWeight and PersonalityWeight blend the two per-vector
	// drifts into the final score. They should sum to 1.
	CoreValuesWeight  float64
	PersonalityWeight float64

	// SignificantChange is the per-trait difference threshold for listing
	// a trait in significant_changes.
	SignificantChange float64
}

// NewCheckpoints returns a checkpoint manager with the default weights and
// change threshold.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{
		db:                db,
		CoreValuesWeight:  DefaultCoreValuesWeight,
		PersonalityWeight: DefaultPersonalityWeight,
		SignificantChange: DefaultSignificantChange,
	}
}

// SnapshotInput is the externally-supplied identity state for one snapshot.
type SnapshotInput struct {
	CoreValues         map[string]float64
	PersonalityVector  map[string]float64
	ConsciousnessLevel float64
	EmotionalDepth     float64
}

// Take creates a checkpoint for the current period. The first checkpoint
// ever has a drift score of exactly 0; every later one scores the change
// against its immediate predecessor. If a checkpoint already exists for the
// current ISO week, Take fails with store.ErrDuplicatePeriod and writes
// nothing; updating the current week's checkpoint needs an explicit update
// path, not a second snapshot.
func (c *Checkpoints) Take(in SnapshotInput) (*store.Checkpoint, error) {
	if err := validateVector("core_values", in.CoreValues); err != nil {
		return nil, err
	}
	if err := validateVector("personality_vector", in.PersonalityVector); err != nil {
		return nil, err
	}
	if !isFinite(in.ConsciousnessLevel) {
		return nil, store.Validationf("consciousness_level", "must be finite")
	}
	if !isFinite(in.EmotionalDepth) {
		return nil, store.Validationf("emotional_depth", "must be finite")
	}

	now := time.Now()
	checkpoint := &store.Checkpoint{
		Period:             PeriodKey(now),
		CoreValues:         in.CoreValues,
		PersonalityVector:  in.PersonalityVector,
		ConsciousnessLevel: in.ConsciousnessLevel,
		EmotionalDepth:     in.EmotionalDepth,
		SignificantChanges: []string{},
		IsHealthy:          true,
		CreatedAt:          now,
	}

	previous, err := c.db.LatestCheckpoint()
	if err != nil {
		return nil, fmt.Errorf("loading previous checkpoint: %w", err)
	}
	if previous != nil {
		coreDrift, coreChanges := c.vectorDrift(previous.CoreValues, in.CoreValues)
		personalityDrift, traitChanges := c.vectorDrift(previous.PersonalityVector, in.PersonalityVector)

		checkpoint.PreviousID = &previous.ID
		checkpoint.DriftScore = Clamp01(c.CoreValuesWeight*coreDrift + c.PersonalityWeight*personalityDrift)
		checkpoint.SignificantChanges = append(coreChanges, traitChanges...)
	}

	if err := c.db.InsertCheckpoint(checkpoint); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// Latest returns the most recent checkpoint, or nil if none exist.
func (c *Checkpoints) Latest() (*store.Checkpoint, error) {
	return c.db.LatestCheckpoint()
}

// History returns up to limit checkpoints, most recent first.
func (c *Checkpoints) History(limit int) ([]store.Checkpoint, error) {
	return c.db.ListCheckpoints(limit)
}

// MarkHealth annotates a checkpoint's health flag, the only field that may
// change after creation.
func (c *Checkpoints) MarkHealth(id int64, healthy bool) error {
	return c.db.MarkCheckpointHealth(id, healthy)
}

// vectorDrift computes the mean absolute difference between two trait
// vectors over the keys of curr, substituting the neutral midpoint for any
// key missing from either side. Traits that moved more than the change
// threshold are reported as "key: prev -> curr" strings, in key order.
func (c *Checkpoints) vectorDrift(prev, curr map[string]float64) (float64, []string) {
	if len(curr) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(curr))
	for k := range curr {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0.0
	var changes []string
	for _, k := range keys {
		prevVal, ok := prev[k]
		if !ok {
			prevVal = neutralTraitValue
		}
		currVal := curr[k]

		diff := currVal - prevVal
		if diff < 0 {
			diff = -diff
		}
		total += diff

		if diff > c.SignificantChange {
			changes = append(changes, fmt.Sprintf("%s: %.2f -> %.2f", k, prevVal, currVal))
		}
	}
	return total / float64(len(keys)), changes
}

// PeriodKey returns the checkpoint uniqueness key for a timestamp: the ISO
// year and week, e.g. "2026-W35".
func PeriodKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// validateVector rejects vectors containing non-finite values or empty keys.
func validateVector(field string, v map[string]float64) error {
	for k, val := range v {
		if k == "" {
			return store.Validationf(field, "contains an empty key")
		}
		if !isFinite(val) {
			return store.Validationf(field, "value for %q must be finite", k)
		}
	}
	return nil
}
