package store

import (
	"database/sql"
	"math"
	"time"
)

// InsertMetricSample appends one sample to the metric history. The history
// is append-only; there is no update or delete path.
func (db *DB) InsertMetricSample(name string, value float64, measuredAt time.Time) (*MetricSample, error) {
	if name == "" {
		return nil, Validationf("metric_name", "must not be empty")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, Validationf("value", "must be finite, got %v", value)
	}
	if measuredAt.IsZero() {
		measuredAt = time.Now()
	}

	result, err := db.conn.Exec(
		"INSERT INTO metric_samples (metric_name, value, measured_at) VALUES (?, ?, ?)",
		name, value, formatTime(measuredAt),
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &MetricSample{ID: id, MetricName: name, Value: value, MeasuredAt: measuredAt.UTC()}, nil
}

// MetricWindow returns all samples for a metric at or after the cutoff,
// in ascending time order.
func (db *DB) MetricWindow(name string, since time.Time) ([]MetricSample, error) {
	rows, err := db.conn.Query(
		`SELECT id, metric_name, value, measured_at FROM metric_samples
		 WHERE metric_name = ? AND measured_at >= ?
		 ORDER BY measured_at ASC`,
		name, formatTime(since),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var samples []MetricSample
	for rows.Next() {
		var s MetricSample
		var measuredAt string
		if err := rows.Scan(&s.ID, &s.MetricName, &s.Value, &measuredAt); err != nil {
			return nil, err
		}
		s.MeasuredAt = parseTime(measuredAt)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// MetricNames returns the distinct metric names present in the history.
func (db *DB) MetricNames() ([]string, error) {
	rows, err := db.conn.Query("SELECT DISTINCT metric_name FROM metric_samples ORDER BY metric_name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LatestSample returns the most recent sample for a metric, or nil if the
// metric has never been recorded.
func (db *DB) LatestSample(name string) (*MetricSample, error) {
	row := db.conn.QueryRow(
		`SELECT id, metric_name, value, measured_at FROM metric_samples
		 WHERE metric_name = ? ORDER BY measured_at DESC LIMIT 1`,
		name,
	)

	var s MetricSample
	var measuredAt string
	err := row.Scan(&s.ID, &s.MetricName, &s.Value, &measuredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.MeasuredAt = parseTime(measuredAt)
	return &s, nil
}
