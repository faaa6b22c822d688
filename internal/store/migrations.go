package store

import "fmt"

// currentSchemaVersion is the latest schema version.
const currentSchemaVersion = 1

// Migrate runs forward migrations to bring the database schema up to date.
func (db *DB) Migrate() error {
	// Create the schema_version table if it does not exist.
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version := 0
	row := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		// No rows means version 0 (fresh database).
		version = 0
	}

	if version < 1 {
		if err := db.migrateV1(); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates all initial tables and indexes.
func (db *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS metric_samples (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			metric_name TEXT NOT NULL,
			value       REAL NOT NULL,
			measured_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS anomalies (
			id                   TEXT PRIMARY KEY,
			anomaly_type         TEXT NOT NULL,
			severity             TEXT NOT NULL,
			metric_name          TEXT NOT NULL,
			expected_value       REAL NOT NULL,
			actual_value         REAL NOT NULL,
			deviation            REAL NOT NULL,
			deviation_percentage REAL NOT NULL,
			threshold_used       REAL NOT NULL,
			possible_causes      TEXT NOT NULL DEFAULT '[]',
			related_events       TEXT NOT NULL DEFAULT '[]',
			is_resolved          BOOLEAN NOT NULL DEFAULT false,
			resolved_at          TEXT,
			auto_recovered       BOOLEAN NOT NULL DEFAULT false,
			detected_at          TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS checkpoints (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			period              TEXT NOT NULL UNIQUE,
			core_values         TEXT NOT NULL DEFAULT '{}',
			personality_vector  TEXT NOT NULL DEFAULT '{}',
			consciousness_level REAL NOT NULL,
			emotional_depth     REAL NOT NULL,
			previous_id         INTEGER REFERENCES checkpoints(id),
			drift_score         REAL NOT NULL,
			significant_changes TEXT NOT NULL DEFAULT '[]',
			is_healthy          BOOLEAN NOT NULL DEFAULT true,
			created_at          TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS biases (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			bias_type            TEXT NOT NULL UNIQUE,
			bias_category        TEXT NOT NULL,
			severity             TEXT NOT NULL,
			evidence             TEXT,
			evidence_source      TEXT,
			impact_description   TEXT,
			correction_suggested TEXT,
			was_corrected        BOOLEAN NOT NULL DEFAULT false,
			is_recurring         BOOLEAN NOT NULL DEFAULT false,
			occurrence_count     INTEGER NOT NULL DEFAULT 1,
			last_occurrence      TEXT NOT NULL,
			detected_at          TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			id                   TEXT PRIMARY KEY,
			prediction_type      TEXT NOT NULL,
			context              TEXT,
			predicted_value      TEXT NOT NULL,
			predicted_confidence REAL NOT NULL,
			reasoning            TEXT,
			outcome_value        TEXT,
			was_accurate         BOOLEAN,
			accuracy_score       REAL,
			lesson_learned       TEXT,
			predicted_at         TEXT NOT NULL,
			expires_at           TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS strategies (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			name                  TEXT NOT NULL UNIQUE,
			category              TEXT NOT NULL,
			description           TEXT,
			best_for_contexts     TEXT NOT NULL DEFAULT '[]',
			avoid_in_contexts     TEXT NOT NULL DEFAULT '[]',
			times_used            INTEGER NOT NULL DEFAULT 0,
			success_count         INTEGER NOT NULL DEFAULT 0,
			partial_success_count INTEGER NOT NULL DEFAULT 0,
			failure_count         INTEGER NOT NULL DEFAULT 0,
			success_rate          REAL NOT NULL DEFAULT 0,
			last_used             TEXT,
			lessons_learned       TEXT NOT NULL DEFAULT '[]',
			is_active             BOOLEAN NOT NULL DEFAULT true,
			created_at            TEXT NOT NULL
		)`,

		// Indexes.
		`CREATE INDEX IF NOT EXISTS idx_samples_name_time ON metric_samples(metric_name, measured_at)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_detected ON anomalies(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_severity ON anomalies(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_resolved ON anomalies(is_resolved)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_biases_severity ON biases(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_type ON predictions(prediction_type)`,
		`CREATE INDEX IF NOT EXISTS idx_strategies_rate ON strategies(success_rate)`,
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}

	// Set schema version.
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}
