package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AnomalyFilter narrows ListAnomalies. Zero values mean no filtering.
type AnomalyFilter struct {
	Severity   Severity
	Unresolved bool
	MetricName string
	Limit      int
}

// InsertAnomaly persists a new anomaly record.
func (db *DB) InsertAnomaly(a *Anomaly) error {
	_, err := db.conn.Exec(
		`INSERT INTO anomalies
		(id, anomaly_type, severity, metric_name, expected_value, actual_value,
		 deviation, deviation_percentage, threshold_used, possible_causes,
		 related_events, is_resolved, resolved_at, auto_recovered, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.AnomalyType), string(a.Severity), a.MetricName,
		a.ExpectedValue, a.ActualValue, a.Deviation, a.DeviationPercentage,
		a.ThresholdUsed, encodeList(a.PossibleCauses), encodeList(a.RelatedEvents),
		a.IsResolved, nullTime(a.ResolvedAt), a.AutoRecovered, formatTime(a.DetectedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting anomaly: %w", err)
	}
	return nil
}

// GetAnomaly returns an anomaly by id.
func (db *DB) GetAnomaly(id string) (*Anomaly, error) {
	row := db.conn.QueryRow(anomalySelect+" WHERE id = ?", id)
	a, err := scanAnomaly(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("anomaly %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnomalies returns anomalies matching the filter, most recent first.
func (db *DB) ListAnomalies(f AnomalyFilter) ([]Anomaly, error) {
	query := anomalySelect + " WHERE 1=1"
	var args []any

	if f.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(f.Severity))
	}
	if f.Unresolved {
		query += " AND is_resolved = false"
	}
	if f.MetricName != "" {
		query += " AND metric_name = ?"
		args = append(args, f.MetricName)
	}

	query += " ORDER BY detected_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var anomalies []Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows.Scan)
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, *a)
	}
	return anomalies, rows.Err()
}

// ResolveAnomaly marks an anomaly resolved. auto indicates the resolution
// came from the engine noticing the metric recovered rather than a manual
// action. Resolving an already-resolved anomaly is a no-op.
func (db *DB) ResolveAnomaly(id string, auto bool) error {
	result, err := db.conn.Exec(
		`UPDATE anomalies SET is_resolved = true, resolved_at = ?, auto_recovered = ?
		 WHERE id = ? AND is_resolved = false`,
		formatTime(time.Now()), auto, id,
	)
	if err != nil {
		return fmt.Errorf("resolving anomaly: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish unknown id from already-resolved.
		if _, err := db.GetAnomaly(id); err != nil {
			return err
		}
	}
	return nil
}

// SetAnomalyContext replaces the placeholder cause list and the related
// events with caller-supplied context. Only these annotations are mutable;
// the measured values never change.
func (db *DB) SetAnomalyContext(id string, causes, relatedEvents []string) error {
	result, err := db.conn.Exec(
		"UPDATE anomalies SET possible_causes = ?, related_events = ? WHERE id = ?",
		encodeList(causes), encodeList(relatedEvents), id,
	)
	if err != nil {
		return fmt.Errorf("updating anomaly context: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("anomaly %s: %w", id, ErrNotFound)
	}
	return nil
}

const anomalySelect = `SELECT id, anomaly_type, severity, metric_name,
	expected_value, actual_value, deviation, deviation_percentage,
	threshold_used, possible_causes, related_events, is_resolved,
	resolved_at, auto_recovered, detected_at FROM anomalies`

func scanAnomaly(scan func(...any) error) (*Anomaly, error) {
	var a Anomaly
	var anomalyType, severity, causes, events, detectedAt string
	var resolvedAt sql.NullString
	if err := scan(
		&a.ID, &anomalyType, &severity, &a.MetricName,
		&a.ExpectedValue, &a.ActualValue, &a.Deviation, &a.DeviationPercentage,
		&a.ThresholdUsed, &causes, &events, &a.IsResolved,
		&resolvedAt, &a.AutoRecovered, &detectedAt,
	); err != nil {
		return nil, err
	}
	a.AnomalyType = AnomalyType(anomalyType)
	a.Severity = Severity(severity)
	a.PossibleCauses = decodeList(causes)
	a.RelatedEvents = decodeList(events)
	a.DetectedAt = parseTime(detectedAt)
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		a.ResolvedAt = &t
	}
	return &a, nil
}

// nullTime converts an optional timestamp to its column representation.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
