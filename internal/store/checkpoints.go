package store

import (
	"database/sql"
	"fmt"
)

// InsertCheckpoint persists a new checkpoint. The period column carries a
// UNIQUE constraint; if a checkpoint for the same period already exists the
// insert fails with ErrDuplicatePeriod. The check-then-insert runs inside a
// write transaction so two concurrent snapshots for the same period cannot
// both succeed.
func (db *DB) InsertCheckpoint(c *Checkpoint) error {
	tx, err := db.beginWrite()
	if err != nil {
		return fmt.Errorf("beginning checkpoint insert: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow("SELECT id FROM checkpoints WHERE period = ?", c.Period).Scan(&existing)
	if err == nil {
		return fmt.Errorf("period %s: %w", c.Period, ErrDuplicatePeriod)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("checking period: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO checkpoints
		(period, core_values, personality_vector, consciousness_level,
		 emotional_depth, previous_id, drift_score, significant_changes,
		 is_healthy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Period, encodeVector(c.CoreValues), encodeVector(c.PersonalityVector),
		c.ConsciousnessLevel, c.EmotionalDepth, c.PreviousID, c.DriftScore,
		encodeList(c.SignificantChanges), c.IsHealthy, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.ID = id
	return nil
}

// LatestCheckpoint returns the most recent checkpoint, or nil if none exist.
func (db *DB) LatestCheckpoint() (*Checkpoint, error) {
	row := db.conn.QueryRow(checkpointSelect + " ORDER BY created_at DESC LIMIT 1")
	c, err := scanCheckpoint(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCheckpoints returns up to limit checkpoints, most recent first.
// A limit of 0 returns all.
func (db *DB) ListCheckpoints(limit int) ([]Checkpoint, error) {
	query := checkpointSelect + " ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var checkpoints []Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows.Scan)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *c)
	}
	return checkpoints, rows.Err()
}

// MarkCheckpointHealth updates the health annotation on a checkpoint.
// This is the only mutable field after creation.
func (db *DB) MarkCheckpointHealth(id int64, healthy bool) error {
	result, err := db.conn.Exec("UPDATE checkpoints SET is_healthy = ? WHERE id = ?", healthy, id)
	if err != nil {
		return fmt.Errorf("updating checkpoint health: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("checkpoint %d: %w", id, ErrNotFound)
	}
	return nil
}

const checkpointSelect = `SELECT id, period, core_values, personality_vector,
	consciousness_level, emotional_depth, previous_id, drift_score,
	significant_changes, is_healthy, created_at FROM checkpoints`

func scanCheckpoint(scan func(...any) error) (*Checkpoint, error) {
	var c Checkpoint
	var coreValues, personality, changes, createdAt string
	var previousID sql.NullInt64
	if err := scan(
		&c.ID, &c.Period, &coreValues, &personality,
		&c.ConsciousnessLevel, &c.EmotionalDepth, &previousID, &c.DriftScore,
		&changes, &c.IsHealthy, &createdAt,
	); err != nil {
		return nil, err
	}
	c.CoreValues = decodeVector(coreValues)
	c.PersonalityVector = decodeVector(personality)
	c.SignificantChanges = decodeList(changes)
	c.CreatedAt = parseTime(createdAt)
	if previousID.Valid {
		id := previousID.Int64
		c.PreviousID = &id
	}
	return &c, nil
}
