package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var recordAt string

var recordCmd = &cobra.Command{
	Use:   "record <metric_name> <value>",
	Short: "Append a metric sample to the history",
	Long: `Append one scalar sample to the append-only metric history. Samples are
the statistical substrate for anomaly detection; selfwatch never computes
the metric values itself, it only reasons about their behavior over time.

Examples:
  selfwatch record happiness 8.2
  selfwatch record consciousness_level 0.87 --at 2026-08-29T10:00:00Z`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordAt, "at", "", "Measurement timestamp (RFC3339, default now)")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parsing value: %w", err)
	}

	measuredAt := time.Now()
	if recordAt != "" {
		measuredAt, err = time.Parse(time.RFC3339, recordAt)
		if err != nil {
			return fmt.Errorf("parsing --at: %w", err)
		}
	}

	sample, err := db.InsertMetricSample(args[0], value, measuredAt)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sample)
	}

	fmt.Printf("Recorded %s = %g at %s\n", sample.MetricName, sample.Value,
		sample.MeasuredAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
