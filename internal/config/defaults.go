// Package config provides configuration loading and defaults for selfwatch.
package config

// DefaultConfigDir is the default location for selfwatch configuration.
const DefaultConfigDir = "~/.config/selfwatch"

// DefaultDBName is the filename for the SQLite database.
const DefaultDBName = "selfwatch.db"

// DefaultConfigFile is the filename for the YAML config.
const DefaultConfigFile = "config.yaml"

// DefaultAnomaly holds the default anomaly detection knobs.
var DefaultAnomaly = Anomaly{
	WindowDays:         7,
	DeviationThreshold: 0.20,
}

// DefaultDrift holds the default identity drift knobs. Weights favor the
// personality vector over core values and must sum to 1.
var DefaultDrift = Drift{
	CoreValuesWeight:  0.4,
	PersonalityWeight: 0.6,
	SignificantChange: 0.1,
}

// DefaultPredictions holds the default prediction validation knobs.
var DefaultPredictions = Predictions{
	AccuracyThreshold: 0.7,
}

// DefaultOutput holds the default output preferences.
var DefaultOutput = Output{
	Color: true,
	Width: 80,
}
