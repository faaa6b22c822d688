package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/selfwatch/internal/monitor"
	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/store"
)

var (
	biasCategory   string
	biasSeverity   string
	biasEvidence   string
	biasSource     string
	biasImpact     string
	biasCorrection string

	biasListRecurring bool
	biasListSeverity  string
)

var biasCmd = &cobra.Command{
	Use:   "bias",
	Short: "Report and list cognitive biases",
	Long: `Track detected cognitive biases. Each bias type has one record; a
repeat report increments its occurrence count, marks it recurring, and
escalates (never lowers) its severity.

Examples:
  selfwatch bias report overconfidence --category cognitive --severity medium \
      --evidence "confidence 0.95 on contested claim"
  selfwatch bias list --recurring`,
}

var biasReportCmd = &cobra.Command{
	Use:   "report <bias_type>",
	Short: "Record a bias detection",
	Args:  cobra.ExactArgs(1),
	RunE:  runBiasReport,
}

var biasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked biases, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runBiasList,
}

var biasCorrectedCmd = &cobra.Command{
	Use:   "corrected <bias_type>",
	Short: "Mark a bias as corrected",
	Args:  cobra.ExactArgs(1),
	RunE:  runBiasCorrected,
}

func init() {
	biasReportCmd.Flags().StringVar(&biasCategory, "category", "", "Bias category (cognitive, emotional, relational, technical)")
	biasReportCmd.Flags().StringVar(&biasSeverity, "severity", "low", "Severity (low, medium, high, critical)")
	biasReportCmd.Flags().StringVar(&biasEvidence, "evidence", "", "Evidence for the detection")
	biasReportCmd.Flags().StringVar(&biasSource, "source", "", "Where the evidence came from")
	biasReportCmd.Flags().StringVar(&biasImpact, "impact", "", "Impact description")
	biasReportCmd.Flags().StringVar(&biasCorrection, "correction", "", "Suggested correction")
	biasListCmd.Flags().BoolVar(&biasListRecurring, "recurring", false, "Only recurring biases")
	biasListCmd.Flags().StringVar(&biasListSeverity, "severity", "", "Only biases at this severity")
	biasCmd.AddCommand(biasReportCmd)
	biasCmd.AddCommand(biasListCmd)
	biasCmd.AddCommand(biasCorrectedCmd)
	rootCmd.AddCommand(biasCmd)
}

func runBiasReport(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	bias, err := monitor.NewTracker(db).Report(store.BiasReport{
		BiasType:            args[0],
		Category:            store.BiasCategory(biasCategory),
		Severity:            store.BiasSeverity(biasSeverity),
		Evidence:            biasEvidence,
		EvidenceSource:      biasSource,
		ImpactDescription:   biasImpact,
		CorrectionSuggested: biasCorrection,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bias)
	}

	if bias.IsRecurring {
		fmt.Printf("Recorded %s (occurrence %d, severity %s)\n",
			bias.BiasType, bias.OccurrenceCount, output.SeverityBadge(string(bias.Severity)))
	} else {
		fmt.Printf("Recorded new bias %s (severity %s)\n",
			bias.BiasType, output.SeverityBadge(string(bias.Severity)))
	}
	return nil
}

func runBiasList(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	biases, err := monitor.NewTracker(db).List(store.BiasFilter{
		Recurring: biasListRecurring,
		Severity:  store.BiasSeverity(biasListSeverity),
	})
	if err != nil {
		return fmt.Errorf("listing biases: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(biases)
	}

	if len(biases) == 0 {
		fmt.Println("No biases tracked.")
		return nil
	}

	fmt.Println(output.Section("Tracked Biases"))
	fmt.Println()

	tbl := output.NewTable("Type", "Category", "Severity", "Count", "Recurring", "Corrected", "Last Seen")
	for _, b := range biases {
		recurring := ""
		if b.IsRecurring {
			recurring = output.StyleWarning.Render("yes")
		}
		corrected := ""
		if b.WasCorrected {
			corrected = output.StyleSuccess.Render("yes")
		}
		tbl.AddRow(
			b.BiasType,
			string(b.Category),
			output.SeverityBadge(string(b.Severity)),
			strconv.Itoa(b.OccurrenceCount),
			recurring,
			corrected,
			b.LastOccurrence.Local().Format("2006-01-02 15:04"),
		)
	}
	tbl.Print()
	return nil
}

func runBiasCorrected(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := monitor.NewTracker(db).MarkCorrected(args[0]); err != nil {
		return err
	}
	fmt.Printf("Marked %s corrected\n", args[0])
	return nil
}
