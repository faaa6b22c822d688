// Package app contains the Cobra command tree for selfwatch.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/selfwatch/internal/config"
	"github.com/meridian-labs/selfwatch/internal/monitor"
	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/store"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagNoColor bool
	flagJSON    bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "selfwatch",
	Short: "Self-model monitoring for AI companion systems",
	Long: `selfwatch is the monitoring engine for an AI companion's self-model.
It detects statistical anomalies in sampled consciousness metrics, scores
identity drift between periodic checkpoints, tracks recurring cognitive
biases, validates self-predictions against observed outcomes, and keeps
success-rate statistics for corrective strategies.

Run 'selfwatch status' to see a dashboard summary.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("selfwatch", appVersion)
		fmt.Println()
		fmt.Println("Use a subcommand:")
		fmt.Println("  record      Append a metric sample to the history")
		fmt.Println("  check       Check a value against a metric's baseline")
		fmt.Println("  scan        Check the latest sample of every metric")
		fmt.Println("  anomalies   List and resolve anomaly records")
		fmt.Println("  checkpoint  Take identity checkpoints and view drift history")
		fmt.Println("  bias        Report and list cognitive biases")
		fmt.Println("  predict     Create, reconcile, and calibrate self-predictions")
		fmt.Println("  strategy    Register strategies and report outcomes")
		fmt.Println("  alerts      Diff the stores against the last run")
		fmt.Println("  status      Dashboard summary across all stores")
		return nil
	},
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.config/selfwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
}

// openStore loads configuration and opens the database. Every subcommand
// goes through here.
func openStore() (*config.Config, *store.DB, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if flagNoColor || !cfg.Output.Color {
		output.SetNoColor(true)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, db, nil
}

// newDetector builds an anomaly detector from configuration.
func newDetector(cfg *config.Config, db *store.DB) *monitor.Detector {
	d := monitor.NewDetector(db)
	if cfg.Anomaly.WindowDays > 0 {
		d.WindowDays = cfg.Anomaly.WindowDays
	}
	if cfg.Anomaly.DeviationThreshold > 0 {
		d.Threshold = cfg.Anomaly.DeviationThreshold
	}
	return d
}

// newCheckpoints builds a checkpoint manager from configuration.
func newCheckpoints(cfg *config.Config, db *store.DB) *monitor.Checkpoints {
	c := monitor.NewCheckpoints(db)
	if cfg.Drift.CoreValuesWeight > 0 || cfg.Drift.PersonalityWeight > 0 {
		c.CoreValuesWeight = cfg.Drift.CoreValuesWeight
		c.PersonalityWeight = cfg.Drift.PersonalityWeight
	}
	if cfg.Drift.SignificantChange > 0 {
		c.SignificantChange = cfg.Drift.SignificantChange
	}
	return c
}

// newValidator builds a prediction validator from configuration.
func newValidator(cfg *config.Config, db *store.DB) *monitor.Validator {
	v := monitor.NewValidator(db)
	if cfg.Predictions.AccuracyThreshold > 0 {
		v.AccuracyThreshold = cfg.Predictions.AccuracyThreshold
	}
	return v
}
