package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level selfwatch configuration.
type Config struct {
	DBPath      string      `mapstructure:"db_path"`
	Anomaly     Anomaly     `mapstructure:"anomaly"`
	Drift       Drift       `mapstructure:"drift"`
	Predictions Predictions `mapstructure:"predictions"`
	Output      Output      `mapstructure:"output"`
}

// Anomaly defines the anomaly detection knobs.
type Anomaly struct {
	WindowDays         int     `mapstructure:"window_days"`
	DeviationThreshold float64 `mapstructure:"deviation_threshold"`
}

// Drift defines the identity drift scoring knobs.
type Drift struct {
	CoreValuesWeight  float64 `mapstructure:"core_values_weight"`
	PersonalityWeight float64 `mapstructure:"personality_weight"`
	SignificantChange float64 `mapstructure:"significant_change"`
}

// Predictions defines the prediction validation knobs.
type Predictions struct {
	AccuracyThreshold float64 `mapstructure:"accuracy_threshold"`
}

// Output defines output preferences.
type Output struct {
	Color bool `mapstructure:"color"`
	Width int  `mapstructure:"width"`
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads configuration from the given path (or the default location)
// and returns a Config with all defaults applied.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults.
	v.SetDefault("db_path", filepath.Join(DefaultConfigDir, DefaultDBName))
	v.SetDefault("anomaly.window_days", DefaultAnomaly.WindowDays)
	v.SetDefault("anomaly.deviation_threshold", DefaultAnomaly.DeviationThreshold)
	v.SetDefault("drift.core_values_weight", DefaultDrift.CoreValuesWeight)
	v.SetDefault("drift.personality_weight", DefaultDrift.PersonalityWeight)
	v.SetDefault("drift.significant_change", DefaultDrift.SignificantChange)
	v.SetDefault("predictions.accuracy_threshold", DefaultPredictions.AccuracyThreshold)
	v.SetDefault("output.color", DefaultOutput.Color)
	v.SetDefault("output.width", DefaultOutput.Width)

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		configDir := expandPath(DefaultConfigDir)
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Read config file if it exists; missing file is not an error.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Only return error for problems other than file not found.
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.DBPath = expandPath(cfg.DBPath)

	return &cfg, nil
}

// DBPath returns the full path to the SQLite database.
func DBPath() string {
	return filepath.Join(expandPath(DefaultConfigDir), DefaultDBName)
}

// ConfigDir returns the expanded configuration directory.
func ConfigDir() string {
	return expandPath(DefaultConfigDir)
}
