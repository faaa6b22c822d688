package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/store"
)

var (
	anomalySeverity   string
	anomalyUnresolved bool
	anomalyMetric     string
	anomalyLimit      int
	resolveAuto       bool
	annotateCauses    []string
	annotateEvents    []string
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "List and resolve anomaly records",
	Long: `List anomaly records most-recent-first, optionally filtered by severity,
resolution status, or metric name. Anomalies are never deleted; resolving
one only annotates it.`,
	Args: cobra.NoArgs,
	RunE: runAnomalies,
}

var anomaliesResolveCmd = &cobra.Command{
	Use:   "resolve <anomaly_id>",
	Short: "Mark an anomaly as resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnomaliesResolve,
}

var anomaliesAnnotateCmd = &cobra.Command{
	Use:   "annotate <anomaly_id>",
	Short: "Replace an anomaly's possible causes and related events",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnomaliesAnnotate,
}

func init() {
	anomaliesCmd.Flags().StringVar(&anomalySeverity, "severity", "", "Filter by severity (info, warning, critical)")
	anomaliesCmd.Flags().BoolVar(&anomalyUnresolved, "unresolved", false, "Only show unresolved anomalies")
	anomaliesCmd.Flags().StringVar(&anomalyMetric, "metric", "", "Filter by metric name")
	anomaliesCmd.Flags().IntVarP(&anomalyLimit, "limit", "n", 0, "Limit the number of results")
	anomaliesResolveCmd.Flags().BoolVar(&resolveAuto, "auto", false, "Mark as auto-recovered rather than manually resolved")
	anomaliesAnnotateCmd.Flags().StringArrayVar(&annotateCauses, "cause", nil, "Possible cause (repeatable)")
	anomaliesAnnotateCmd.Flags().StringArrayVar(&annotateEvents, "event", nil, "Related event (repeatable)")
	anomaliesCmd.AddCommand(anomaliesResolveCmd)
	anomaliesCmd.AddCommand(anomaliesAnnotateCmd)
	rootCmd.AddCommand(anomaliesCmd)
}

func runAnomalies(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if anomalySeverity != "" && !store.Severity(anomalySeverity).Valid() {
		return store.Validationf("severity", "unknown severity %q", anomalySeverity)
	}

	anomalies, err := db.ListAnomalies(store.AnomalyFilter{
		Severity:   store.Severity(anomalySeverity),
		Unresolved: anomalyUnresolved,
		MetricName: anomalyMetric,
		Limit:      anomalyLimit,
	})
	if err != nil {
		return fmt.Errorf("listing anomalies: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(anomalies)
	}

	if len(anomalies) == 0 {
		fmt.Println("No anomalies match.")
		return nil
	}

	fmt.Println(output.Section("Anomalies"))
	fmt.Println()

	tbl := output.NewTable("Detected", "Severity", "Metric", "Type", "Expected", "Actual", "Resolved", "ID")
	for _, a := range anomalies {
		resolved := ""
		if a.IsResolved {
			resolved = "yes"
			if a.AutoRecovered {
				resolved = "auto"
			}
		}
		tbl.AddRow(
			a.DetectedAt.Local().Format("2006-01-02 15:04"),
			output.SeverityBadge(string(a.Severity)),
			a.MetricName,
			string(a.AnomalyType),
			fmt.Sprintf("%.2f", a.ExpectedValue),
			fmt.Sprintf("%.2f", a.ActualValue),
			resolved,
			a.ID[:8],
		)
	}
	tbl.Print()
	return nil
}

func runAnomaliesResolve(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	id, err := expandAnomalyID(db, args[0])
	if err != nil {
		return err
	}

	if err := db.ResolveAnomaly(id, resolveAuto); err != nil {
		return err
	}
	fmt.Printf("Resolved anomaly %s\n", id)
	return nil
}

func runAnomaliesAnnotate(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if len(annotateCauses) == 0 && len(annotateEvents) == 0 {
		return store.Validationf("annotation", "supply at least one --cause or --event")
	}

	id, err := expandAnomalyID(db, args[0])
	if err != nil {
		return err
	}
	if err := db.SetAnomalyContext(id, annotateCauses, annotateEvents); err != nil {
		return err
	}
	fmt.Printf("Annotated anomaly %s\n", id)
	return nil
}

// expandAnomalyID resolves a short id prefix (as shown in the list output)
// to a full anomaly id.
func expandAnomalyID(db *store.DB, prefix string) (string, error) {
	if len(prefix) >= 36 {
		return prefix, nil
	}
	anomalies, err := db.ListAnomalies(store.AnomalyFilter{})
	if err != nil {
		return "", err
	}
	var match string
	for _, a := range anomalies {
		if len(a.ID) >= len(prefix) && a.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("ambiguous anomaly id prefix %q", prefix)
			}
			match = a.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("anomaly %s: %w", prefix, store.ErrNotFound)
	}
	return match, nil
}
