package app

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/store"
)

var checkThreshold float64

var checkCmd = &cobra.Command{
	Use:   "check <metric_name> <current_value>",
	Short: "Check a value against a metric's baseline",
	Long: `Compare a value against the metric's rolling baseline (mean of the
trailing window). If the relative deviation exceeds the threshold, an
anomaly record is persisted and printed. With too little history, or a
flat baseline, there is no verdict.

Examples:
  selfwatch check happiness 5
  selfwatch check happiness 5 --threshold 0.35`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check the latest sample of every metric",
	Long: `Run an anomaly check for every tracked metric, using its most recent
sample as the current value (the sample itself is excluded from the
baseline). Checks across metrics are independent and run concurrently.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	checkCmd.Flags().Float64Var(&checkThreshold, "threshold", 0, "Relative deviation threshold (default from config)")
	scanCmd.Flags().Float64Var(&checkThreshold, "threshold", 0, "Relative deviation threshold (default from config)")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(scanCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	current, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parsing current value: %w", err)
	}

	detector := newDetector(cfg, db)
	anomaly, err := detector.Check(args[0], current, checkThreshold)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if anomaly == nil {
			return enc.Encode(map[string]any{"anomaly": nil})
		}
		return enc.Encode(anomaly)
	}

	if anomaly == nil {
		fmt.Printf("%s = %g: within baseline, no anomaly\n", args[0], current)
		return nil
	}

	printAnomaly(anomaly)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	names, err := db.MetricNames()
	if err != nil {
		return fmt.Errorf("listing metrics: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No metrics recorded yet. Use 'selfwatch record <metric> <value>' to start.")
		return nil
	}

	detector := newDetector(cfg, db)

	// Checks for different metrics share no keys, so they run in parallel.
	var (
		mu        sync.Mutex
		anomalies []store.Anomaly
	)
	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			anomaly, err := detector.CheckLatest(name, checkThreshold)
			if err != nil {
				return fmt.Errorf("checking %s: %w", name, err)
			}
			if anomaly != nil {
				mu.Lock()
				anomalies = append(anomalies, *anomaly)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(anomalies, func(i, j int) bool {
		return anomalies[i].MetricName < anomalies[j].MetricName
	})

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"metrics_checked": len(names),
			"anomalies":       anomalies,
		})
	}

	fmt.Println(output.Section("Scan"))
	fmt.Println()
	fmt.Printf(" Checked %d metric(s), found %d anomal%s\n\n",
		len(names), len(anomalies), pluralY(len(anomalies)))

	for i := range anomalies {
		printAnomaly(&anomalies[i])
	}
	return nil
}

func printAnomaly(a *store.Anomaly) {
	fmt.Printf(" %s  %s %s\n", output.SeverityBadge(string(a.Severity)),
		output.StyleBold.Render(a.MetricName), string(a.AnomalyType))
	fmt.Printf("   expected %.2f, got %.2f (deviation %.1f%%, threshold %.0f%%)\n",
		a.ExpectedValue, a.ActualValue, a.DeviationPercentage, a.ThresholdUsed*100)
	fmt.Printf("   id: %s\n", a.ID)
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
