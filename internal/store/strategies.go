package store

import (
	"database/sql"
	"fmt"
	"time"
)

// StrategySort chooses the ordering for ListStrategies.
type StrategySort string

const (
	SortBySuccessRate StrategySort = "success_rate"
	SortByTimesUsed   StrategySort = "times_used"
)

// InsertStrategy registers a new strategy. The name is the identity key;
// a second registration under the same name fails with ErrDuplicateName.
func (db *DB) InsertStrategy(s *Strategy) error {
	tx, err := db.beginWrite()
	if err != nil {
		return fmt.Errorf("beginning strategy insert: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow("SELECT id FROM strategies WHERE name = ?", s.Name).Scan(&existing)
	if err == nil {
		return fmt.Errorf("strategy %s: %w", s.Name, ErrDuplicateName)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking strategy name: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO strategies
		(name, category, description, best_for_contexts, avoid_in_contexts,
		 lessons_learned, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, true, ?)`,
		s.Name, string(s.Category), s.Description,
		encodeList(s.BestForContexts), encodeList(s.AvoidInContexts),
		encodeList(s.LessonsLearned), formatTime(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting strategy: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.ID = id
	s.IsActive = true
	return nil
}

// ApplyStrategyOutcome records one outcome for the named strategy: exactly
// one counter and times_used are incremented, last_used is bumped, and the
// success rate is recomputed from the counters. The read-modify-write runs
// in a write transaction so concurrent reports for the same strategy cannot
// lose an increment.
func (db *DB) ApplyStrategyOutcome(name string, outcome StrategyOutcome, at time.Time) (*Strategy, error) {
	tx, err := db.beginWrite()
	if err != nil {
		return nil, fmt.Errorf("beginning outcome report: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(strategySelect+" WHERE name = ?", name)
	s, err := scanStrategy(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("strategy %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading strategy: %w", err)
	}

	switch outcome {
	case OutcomeSuccess:
		s.SuccessCount++
	case OutcomePartial:
		s.PartialSuccessCount++
	case OutcomeFailure:
		s.FailureCount++
	}
	s.TimesUsed++
	s.SuccessRate = ComputeSuccessRate(s.SuccessCount, s.PartialSuccessCount, s.FailureCount)
	t := at.UTC()
	s.LastUsed = &t

	if _, err := tx.Exec(
		`UPDATE strategies SET times_used = ?, success_count = ?,
		 partial_success_count = ?, failure_count = ?, success_rate = ?,
		 last_used = ? WHERE id = ?`,
		s.TimesUsed, s.SuccessCount, s.PartialSuccessCount, s.FailureCount,
		s.SuccessRate, formatTime(at), s.ID,
	); err != nil {
		return nil, fmt.Errorf("updating strategy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetStrategy returns a strategy by name.
func (db *DB) GetStrategy(name string) (*Strategy, error) {
	row := db.conn.QueryRow(strategySelect+" WHERE name = ?", name)
	s, err := scanStrategy(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("strategy %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListStrategies returns all strategies in the requested order,
// best-performing or most-used first.
func (db *DB) ListStrategies(sortBy StrategySort) ([]Strategy, error) {
	order := "success_rate DESC, times_used DESC"
	if sortBy == SortByTimesUsed {
		order = "times_used DESC, success_rate DESC"
	}

	rows, err := db.conn.Query(strategySelect + " ORDER BY " + order + ", name ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var strategies []Strategy
	for rows.Next() {
		s, err := scanStrategy(rows.Scan)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, *s)
	}
	return strategies, rows.Err()
}

// AddStrategyLesson appends a lesson to a strategy's lessons_learned list.
// The append runs in a write transaction so concurrent lessons for the
// same strategy cannot overwrite each other.
func (db *DB) AddStrategyLesson(name, lesson string) error {
	tx, err := db.beginWrite()
	if err != nil {
		return fmt.Errorf("beginning lesson append: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(strategySelect+" WHERE name = ?", name)
	s, err := scanStrategy(row.Scan)
	if err == sql.ErrNoRows {
		return fmt.Errorf("strategy %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading strategy: %w", err)
	}

	s.LessonsLearned = append(s.LessonsLearned, lesson)
	if _, err := tx.Exec(
		"UPDATE strategies SET lessons_learned = ? WHERE id = ?",
		encodeList(s.LessonsLearned), s.ID,
	); err != nil {
		return fmt.Errorf("updating lessons: %w", err)
	}
	return tx.Commit()
}

// SetStrategyActive toggles whether a strategy is currently in rotation.
func (db *DB) SetStrategyActive(name string, active bool) error {
	result, err := db.conn.Exec("UPDATE strategies SET is_active = ? WHERE name = ?", active, name)
	if err != nil {
		return fmt.Errorf("updating strategy active flag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("strategy %s: %w", name, ErrNotFound)
	}
	return nil
}

const strategySelect = `SELECT id, name, category, description,
	best_for_contexts, avoid_in_contexts, times_used, success_count,
	partial_success_count, failure_count, success_rate, last_used,
	lessons_learned, is_active, created_at FROM strategies`

func scanStrategy(scan func(...any) error) (*Strategy, error) {
	var s Strategy
	var category, bestFor, avoidIn, lessons, createdAt string
	var description, lastUsed sql.NullString
	if err := scan(
		&s.ID, &s.Name, &category, &description,
		&bestFor, &avoidIn, &s.TimesUsed, &s.SuccessCount,
		&s.PartialSuccessCount, &s.FailureCount, &s.SuccessRate, &lastUsed,
		&lessons, &s.IsActive, &createdAt,
	); err != nil {
		return nil, err
	}
	s.Category = StrategyCategory(category)
	s.Description = description.String
	s.BestForContexts = decodeList(bestFor)
	s.AvoidInContexts = decodeList(avoidIn)
	s.LessonsLearned = decodeList(lessons)
	s.CreatedAt = parseTime(createdAt)
	if lastUsed.Valid {
		t := parseTime(lastUsed.String)
		s.LastUsed = &t
	}
	return &s, nil
}
