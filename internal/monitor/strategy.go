package monitor

import (
	"time"

	"github.com/meridian-labs/selfwatch/internal/store"
)

// Ledger registers corrective strategies and tracks their effectiveness
// through reported outcomes.
type Ledger struct {
	db *store.DB
}

// NewLedger returns a strategy ledger over db.
func NewLedger(db *store.DB) *Ledger {
	return &Ledger{db: db}
}

// Register creates a new strategy. The name is the identity key; a second
// registration under the same name fails with store.ErrDuplicateName.
func (l *Ledger) Register(name string, category store.StrategyCategory, description string, bestFor, avoidIn []string) (*store.Strategy, error) {
	if name == "" {
		return nil, store.Validationf("name", "must not be empty")
	}
	if !category.Valid() {
		return nil, store.Validationf("category", "unknown category %q", category)
	}

	s := &store.Strategy{
		Name:            name,
		Category:        category,
		Description:     description,
		BestForContexts: bestFor,
		AvoidInContexts: avoidIn,
		CreatedAt:       time.Now(),
	}
	if err := l.db.InsertStrategy(s); err != nil {
		return nil, err
	}
	return s, nil
}

// ReportOutcome records one use of the named strategy. Exactly one of the
// three counters is incremented and the success rate is recomputed from the
// counters. Unknown names fail with store.ErrNotFound.
func (l *Ledger) ReportOutcome(name string, outcome store.StrategyOutcome) (*store.Strategy, error) {
	if name == "" {
		return nil, store.Validationf("name", "must not be empty")
	}
	if !outcome.Valid() {
		return nil, store.Validationf("outcome", "unknown outcome %q", outcome)
	}
	return l.db.ApplyStrategyOutcome(name, outcome, time.Now())
}

// List returns all strategies in the requested order.
func (l *Ledger) List(sortBy store.StrategySort) ([]store.Strategy, error) {
	return l.db.ListStrategies(sortBy)
}

// AddLesson appends a lesson to the named strategy.
func (l *Ledger) AddLesson(name, lesson string) error {
	if name == "" {
		return store.Validationf("name", "must not be empty")
	}
	return l.db.AddStrategyLesson(name, lesson)
}

// SetActive toggles whether a strategy is in rotation.
func (l *Ledger) SetActive(name string, active bool) error {
	if name == "" {
		return store.Validationf("name", "must not be empty")
	}
	return l.db.SetStrategyActive(name, active)
}
