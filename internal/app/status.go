package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/selfwatch/internal/monitor"
	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Dashboard summary across all stores",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusSummary struct {
	Metrics            []string          `json:"metrics"`
	UnresolvedAnomalies []store.Anomaly  `json:"unresolved_anomalies"`
	LatestCheckpoint   *store.Checkpoint `json:"latest_checkpoint,omitempty"`
	RecurringBiases    []store.Bias      `json:"recurring_biases"`
	OpenPredictions    int               `json:"open_predictions"`
	Calibration        []store.TypeAccuracy `json:"calibration"`
	TopStrategies      []store.Strategy  `json:"top_strategies"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	summary := statusSummary{}

	if summary.Metrics, err = db.MetricNames(); err != nil {
		return fmt.Errorf("loading metric names: %w", err)
	}
	if summary.UnresolvedAnomalies, err = db.ListAnomalies(store.AnomalyFilter{Unresolved: true}); err != nil {
		return fmt.Errorf("loading anomalies: %w", err)
	}
	if summary.LatestCheckpoint, err = newCheckpoints(cfg, db).Latest(); err != nil {
		return fmt.Errorf("loading latest checkpoint: %w", err)
	}
	if summary.RecurringBiases, err = monitor.NewTracker(db).List(store.BiasFilter{Recurring: true}); err != nil {
		return fmt.Errorf("loading biases: %w", err)
	}
	open, err := db.ListPredictions(store.PredictionFilter{Unreconciled: true})
	if err != nil {
		return fmt.Errorf("loading predictions: %w", err)
	}
	summary.OpenPredictions = len(open)
	if summary.Calibration, err = db.AccuracyByType(); err != nil {
		return fmt.Errorf("loading calibration: %w", err)
	}
	strategies, err := monitor.NewLedger(db).List(store.SortBySuccessRate)
	if err != nil {
		return fmt.Errorf("loading strategies: %w", err)
	}
	if len(strategies) > 5 {
		strategies = strategies[:5]
	}
	summary.TopStrategies = strategies

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Println(output.Section("Self-Model Status"))
	fmt.Println()

	fmt.Printf("Metrics tracked: %d\n", len(summary.Metrics))

	critical, warning := 0, 0
	for _, a := range summary.UnresolvedAnomalies {
		switch a.Severity {
		case store.SeverityCritical:
			critical++
		case store.SeverityWarning:
			warning++
		}
	}
	line := fmt.Sprintf("Unresolved anomalies: %d", len(summary.UnresolvedAnomalies))
	if critical > 0 {
		line += " " + output.StyleError.Render(fmt.Sprintf("(%d critical)", critical))
	} else if warning > 0 {
		line += " " + output.StyleWarning.Render(fmt.Sprintf("(%d warning)", warning))
	}
	fmt.Println(line)

	if summary.LatestCheckpoint != nil {
		c := summary.LatestCheckpoint
		fmt.Printf("Identity drift (%s): %s\n", c.Period, output.DriftBar(c.DriftScore, 10))
	} else {
		fmt.Println("Identity drift: no checkpoints yet")
	}

	fmt.Printf("Recurring biases: %d\n", len(summary.RecurringBiases))
	for _, b := range summary.RecurringBiases {
		fmt.Printf("  %s %s (x%d)\n",
			output.SeverityBadge(string(b.Severity)), b.BiasType, b.OccurrenceCount)
	}

	fmt.Printf("Open predictions: %d\n", summary.OpenPredictions)

	if len(summary.TopStrategies) > 0 {
		fmt.Println()
		fmt.Println(output.StyleBold.Render("Top strategies"))
		tbl := output.NewTable("Name", "Used", "Success Rate")
		for _, s := range summary.TopStrategies {
			tbl.AddRow(s.Name, fmt.Sprintf("%d", s.TimesUsed), fmt.Sprintf("%.0f%%", s.SuccessRate*100))
		}
		tbl.Print()
	}
	return nil
}
