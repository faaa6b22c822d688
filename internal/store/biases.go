package store

import (
	"database/sql"
	"fmt"
	"time"
)

// BiasReport is the input to UpsertBias.
type BiasReport struct {
	BiasType            string
	Category            BiasCategory
	Severity            BiasSeverity
	Evidence            string
	EvidenceSource      string
	ImpactDescription   string
	CorrectionSuggested string
}

// BiasFilter narrows ListBiases. Zero values mean no filtering.
type BiasFilter struct {
	Recurring bool
	Severity  BiasSeverity
}

// UpsertBias records one bias detection. The bias_type is the identity key:
// on first report a new row is inserted with occurrence_count 1; on repeat
// reports the count is incremented, the bias marked recurring, and the
// severity escalated to the max of stored and reported. The read-modify-write
// runs in a write transaction so two concurrent reports for the same type
// cannot lose an increment.
func (db *DB) UpsertBias(r BiasReport, at time.Time) (*Bias, error) {
	tx, err := db.beginWrite()
	if err != nil {
		return nil, fmt.Errorf("beginning bias upsert: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(biasSelect+" WHERE bias_type = ?", r.BiasType)
	existing, err := scanBias(row.Scan)

	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(
			`INSERT INTO biases
			(bias_type, bias_category, severity, evidence, evidence_source,
			 impact_description, correction_suggested, was_corrected,
			 is_recurring, occurrence_count, last_occurrence, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, false, false, 1, ?, ?)`,
			r.BiasType, string(r.Category), string(r.Severity), r.Evidence,
			r.EvidenceSource, r.ImpactDescription, r.CorrectionSuggested,
			formatTime(at), formatTime(at),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting bias: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &Bias{
			ID:                  id,
			BiasType:            r.BiasType,
			Category:            r.Category,
			Severity:            r.Severity,
			Evidence:            r.Evidence,
			EvidenceSource:      r.EvidenceSource,
			ImpactDescription:   r.ImpactDescription,
			CorrectionSuggested: r.CorrectionSuggested,
			OccurrenceCount:     1,
			LastOccurrence:      at.UTC(),
			DetectedAt:          at.UTC(),
		}, nil

	case err != nil:
		return nil, fmt.Errorf("reading bias: %w", err)
	}

	existing.OccurrenceCount++
	existing.IsRecurring = true
	existing.LastOccurrence = at.UTC()
	existing.Severity = MaxBiasSeverity(existing.Severity, r.Severity)
	if r.Evidence != "" {
		existing.Evidence = r.Evidence
	}
	if r.CorrectionSuggested != "" {
		existing.CorrectionSuggested = r.CorrectionSuggested
	}

	if _, err := tx.Exec(
		`UPDATE biases SET severity = ?, evidence = ?, correction_suggested = ?,
		 is_recurring = true, occurrence_count = ?, last_occurrence = ?
		 WHERE id = ?`,
		string(existing.Severity), existing.Evidence, existing.CorrectionSuggested,
		existing.OccurrenceCount, formatTime(at), existing.ID,
	); err != nil {
		return nil, fmt.Errorf("updating bias: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return existing, nil
}

// GetBias returns a bias by its type key.
func (db *DB) GetBias(biasType string) (*Bias, error) {
	row := db.conn.QueryRow(biasSelect+" WHERE bias_type = ?", biasType)
	b, err := scanBias(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bias %s: %w", biasType, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBiases returns biases matching the filter, most recently seen first.
func (db *DB) ListBiases(f BiasFilter) ([]Bias, error) {
	query := biasSelect + " WHERE 1=1"
	var args []any

	if f.Recurring {
		query += " AND is_recurring = true"
	}
	if f.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(f.Severity))
	}
	query += " ORDER BY last_occurrence DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var biases []Bias
	for rows.Next() {
		b, err := scanBias(rows.Scan)
		if err != nil {
			return nil, err
		}
		biases = append(biases, *b)
	}
	return biases, rows.Err()
}

// MarkBiasCorrected flags a bias as having been corrected.
func (db *DB) MarkBiasCorrected(biasType string) error {
	result, err := db.conn.Exec("UPDATE biases SET was_corrected = true WHERE bias_type = ?", biasType)
	if err != nil {
		return fmt.Errorf("marking bias corrected: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bias %s: %w", biasType, ErrNotFound)
	}
	return nil
}

const biasSelect = `SELECT id, bias_type, bias_category, severity, evidence,
	evidence_source, impact_description, correction_suggested, was_corrected,
	is_recurring, occurrence_count, last_occurrence, detected_at FROM biases`

func scanBias(scan func(...any) error) (*Bias, error) {
	var b Bias
	var category, severity, lastOccurrence, detectedAt string
	var evidence, source, impact, correction sql.NullString
	if err := scan(
		&b.ID, &b.BiasType, &category, &severity, &evidence,
		&source, &impact, &correction, &b.WasCorrected,
		&b.IsRecurring, &b.OccurrenceCount, &lastOccurrence, &detectedAt,
	); err != nil {
		return nil, err
	}
	b.Category = BiasCategory(category)
	b.Severity = BiasSeverity(severity)
	b.Evidence = evidence.String
	b.EvidenceSource = source.String
	b.ImpactDescription = impact.String
	b.CorrectionSuggested = correction.String
	b.LastOccurrence = parseTime(lastOccurrence)
	b.DetectedAt = parseTime(detectedAt)
	return &b, nil
}
