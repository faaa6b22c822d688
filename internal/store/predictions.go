package store

import (
	"database/sql"
	"fmt"
)

// InsertPrediction persists a new prediction with outcome fields unset.
func (db *DB) InsertPrediction(p *Prediction) error {
	_, err := db.conn.Exec(
		`INSERT INTO predictions
		(id, prediction_type, context, predicted_value, predicted_confidence,
		 reasoning, predicted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.PredictionType), p.Context, p.PredictedValue,
		p.PredictedConfidence, p.Reasoning, formatTime(p.PredictedAt),
		nullTime(p.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting prediction: %w", err)
	}
	return nil
}

// GetPrediction returns a prediction by id.
func (db *DB) GetPrediction(id string) (*Prediction, error) {
	row := db.conn.QueryRow(predictionSelect+" WHERE id = ?", id)
	p, err := scanPrediction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetPredictionOutcome attaches the observed outcome to a prediction.
// It fails with ErrNotFound for an unknown id and ErrAlreadyReconciled if
// the outcome fields are already set; the stored row is untouched in both
// cases. The read-check-write runs in a write transaction so concurrent
// reconciliations cannot both land.
func (db *DB) SetPredictionOutcome(id, outcomeValue string, wasAccurate bool, accuracyScore float64, lesson string) (*Prediction, error) {
	tx, err := db.beginWrite()
	if err != nil {
		return nil, fmt.Errorf("beginning reconcile: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(predictionSelect+" WHERE id = ?", id)
	p, err := scanPrediction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading prediction: %w", err)
	}
	if p.Reconciled() {
		return nil, fmt.Errorf("prediction %s: %w", id, ErrAlreadyReconciled)
	}

	if _, err := tx.Exec(
		`UPDATE predictions SET outcome_value = ?, was_accurate = ?,
		 accuracy_score = ?, lesson_learned = ? WHERE id = ?`,
		outcomeValue, wasAccurate, accuracyScore, lesson, id,
	); err != nil {
		return nil, fmt.Errorf("updating prediction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	p.OutcomeValue = &outcomeValue
	p.WasAccurate = &wasAccurate
	p.AccuracyScore = &accuracyScore
	p.LessonLearned = &lesson
	return p, nil
}

// SetPredictionLesson replaces the lesson_learned text on a prediction.
func (db *DB) SetPredictionLesson(id, lesson string) error {
	result, err := db.conn.Exec("UPDATE predictions SET lesson_learned = ? WHERE id = ?", lesson, id)
	if err != nil {
		return fmt.Errorf("updating lesson: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	}
	return nil
}

// PredictionFilter narrows ListPredictions. Zero values mean no filtering.
type PredictionFilter struct {
	Type         PredictionType
	Unreconciled bool
	Limit        int
}

// ListPredictions returns predictions matching the filter, most recent first.
func (db *DB) ListPredictions(f PredictionFilter) ([]Prediction, error) {
	query := predictionSelect + " WHERE 1=1"
	var args []any
	if f.Type != "" {
		query += " AND prediction_type = ?"
		args = append(args, string(f.Type))
	}
	if f.Unreconciled {
		query += " AND outcome_value IS NULL"
	}
	query += " ORDER BY predicted_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var predictions []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows.Scan)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, *p)
	}
	return predictions, rows.Err()
}

// AccuracyByType aggregates prediction accuracy per type across all
// reconciled predictions.
func (db *DB) AccuracyByType() ([]TypeAccuracy, error) {
	rows, err := db.conn.Query(
		`SELECT prediction_type,
		        COUNT(*),
		        COUNT(accuracy_score),
		        COALESCE(AVG(accuracy_score), 0),
		        COALESCE(AVG(CASE WHEN was_accurate IS NULL THEN NULL WHEN was_accurate THEN 1.0 ELSE 0.0 END), 0)
		 FROM predictions GROUP BY prediction_type ORDER BY prediction_type`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stats []TypeAccuracy
	for rows.Next() {
		var ta TypeAccuracy
		var predictionType string
		if err := rows.Scan(&predictionType, &ta.Total, &ta.Reconciled, &ta.MeanAccuracy, &ta.HitRate); err != nil {
			return nil, err
		}
		ta.PredictionType = PredictionType(predictionType)
		stats = append(stats, ta)
	}
	return stats, rows.Err()
}

const predictionSelect = `SELECT id, prediction_type, context, predicted_value,
	predicted_confidence, reasoning, outcome_value, was_accurate,
	accuracy_score, lesson_learned, predicted_at, expires_at FROM predictions`

func scanPrediction(scan func(...any) error) (*Prediction, error) {
	var p Prediction
	var predictionType, predictedAt string
	var context, reasoning, outcome, lesson, expiresAt sql.NullString
	var wasAccurate sql.NullBool
	var accuracyScore sql.NullFloat64
	if err := scan(
		&p.ID, &predictionType, &context, &p.PredictedValue,
		&p.PredictedConfidence, &reasoning, &outcome, &wasAccurate,
		&accuracyScore, &lesson, &predictedAt, &expiresAt,
	); err != nil {
		return nil, err
	}
	p.PredictionType = PredictionType(predictionType)
	p.Context = context.String
	p.Reasoning = reasoning.String
	p.PredictedAt = parseTime(predictedAt)
	if outcome.Valid {
		v := outcome.String
		p.OutcomeValue = &v
	}
	if wasAccurate.Valid {
		v := wasAccurate.Bool
		p.WasAccurate = &v
	}
	if accuracyScore.Valid {
		v := accuracyScore.Float64
		p.AccuracyScore = &v
	}
	if lesson.Valid {
		v := lesson.String
		p.LessonLearned = &v
	}
	if expiresAt.Valid {
		t := parseTime(expiresAt.String)
		p.ExpiresAt = &t
	}
	return &p, nil
}
