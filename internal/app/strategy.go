package app

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/selfwatch/internal/monitor"
	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/store"
)

var (
	strategyCategory    string
	strategyDescription string
	strategyBestFor     string
	strategyAvoidIn     string

	strategySortBy string

	strategyInactive bool
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Register strategies and report outcomes",
	Long: `Maintain a ledger of corrective strategies and their effectiveness.
Outcomes are counted as success, partial, or failure; the success rate
weights partials at half a success.

Examples:
  selfwatch strategy register perspective-shift --category reasoning \
      --description "restate the problem from the user's view"
  selfwatch strategy outcome perspective-shift success
  selfwatch strategy list --sort success_rate`,
}

var strategyRegisterCmd = &cobra.Command{
	Use:   "register <name> --category <category>",
	Short: "Register a new strategy",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategyRegister,
}

var strategyOutcomeCmd = &cobra.Command{
	Use:   "outcome <name> <success|partial|failure>",
	Short: "Report one use of a strategy",
	Args:  cobra.ExactArgs(2),
	RunE:  runStrategyOutcome,
}

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List strategies",
	Args:  cobra.NoArgs,
	RunE:  runStrategyList,
}

var strategyLessonCmd = &cobra.Command{
	Use:   "lesson <name> <lesson>",
	Short: "Append a lesson to a strategy",
	Args:  cobra.ExactArgs(2),
	RunE:  runStrategyLesson,
}

var strategyActiveCmd = &cobra.Command{
	Use:   "active <name>",
	Short: "Set whether a strategy is active",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategyActive,
}

func init() {
	strategyRegisterCmd.Flags().StringVar(&strategyCategory, "category", "", "Strategy category (reasoning, emotional, learning, self_correction, bias_mitigation, memory_enhancement, communication)")
	strategyRegisterCmd.Flags().StringVar(&strategyDescription, "description", "", "What the strategy does")
	strategyRegisterCmd.Flags().StringVar(&strategyBestFor, "best-for", "", "Contexts it works in (comma separated)")
	strategyRegisterCmd.Flags().StringVar(&strategyAvoidIn, "avoid-in", "", "Contexts to avoid it in (comma separated)")
	strategyListCmd.Flags().StringVar(&strategySortBy, "sort", "success_rate", "Sort order (success_rate, times_used)")
	strategyActiveCmd.Flags().BoolVar(&strategyInactive, "off", false, "Deactivate instead of activate")
	strategyCmd.AddCommand(strategyRegisterCmd)
	strategyCmd.AddCommand(strategyOutcomeCmd)
	strategyCmd.AddCommand(strategyListCmd)
	strategyCmd.AddCommand(strategyLessonCmd)
	strategyCmd.AddCommand(strategyActiveCmd)
	rootCmd.AddCommand(strategyCmd)
}

func runStrategyRegister(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	strategy, err := monitor.NewLedger(db).Register(
		args[0],
		store.StrategyCategory(strategyCategory),
		strategyDescription,
		splitList(strategyBestFor),
		splitList(strategyAvoidIn),
	)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(strategy)
	}
	fmt.Printf("Registered strategy %s (%s)\n", strategy.Name, strategy.Category)
	return nil
}

func runStrategyOutcome(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	strategy, err := monitor.NewLedger(db).ReportOutcome(args[0], store.StrategyOutcome(args[1]))
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(strategy)
	}
	fmt.Printf("%s: %d uses, success rate %.0f%%\n",
		strategy.Name, strategy.TimesUsed, strategy.SuccessRate*100)
	return nil
}

func runStrategyList(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var sortBy store.StrategySort
	switch strategySortBy {
	case "success_rate", "":
		sortBy = store.SortBySuccessRate
	case "times_used":
		sortBy = store.SortByTimesUsed
	default:
		return fmt.Errorf("unknown sort order %q", strategySortBy)
	}

	strategies, err := monitor.NewLedger(db).List(sortBy)
	if err != nil {
		return fmt.Errorf("listing strategies: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(strategies)
	}

	if len(strategies) == 0 {
		fmt.Println("No strategies registered.")
		return nil
	}

	fmt.Println(output.Section("Strategy Ledger"))
	fmt.Println()

	tbl := output.NewTable("Name", "Category", "Used", "S/P/F", "Success Rate", "Active")
	for _, s := range strategies {
		active := output.StyleSuccess.Render("yes")
		if !s.IsActive {
			active = output.StyleMuted.Render("no")
		}
		tbl.AddRow(
			s.Name,
			string(s.Category),
			strconv.Itoa(s.TimesUsed),
			fmt.Sprintf("%d/%d/%d", s.SuccessCount, s.PartialSuccessCount, s.FailureCount),
			fmt.Sprintf("%.0f%%", s.SuccessRate*100),
			active,
		)
	}
	tbl.Print()
	return nil
}

func runStrategyLesson(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := monitor.NewLedger(db).AddLesson(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Recorded lesson for %s\n", args[0])
	return nil
}

func runStrategyActive(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := monitor.NewLedger(db).SetActive(args[0], !strategyInactive); err != nil {
		return err
	}
	state := "active"
	if strategyInactive {
		state = "inactive"
	}
	fmt.Printf("Marked %s %s\n", args[0], state)
	return nil
}

// splitList parses a comma separated flag value, dropping empty entries.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
