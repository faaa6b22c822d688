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
)

var (
	checkpointValues        string
	checkpointTraits        string
	checkpointConsciousness float64
	checkpointDepth         float64
	historyLimit            int
	healthUnhealthy         bool
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Take identity checkpoints and view drift history",
	Long: `Take a checkpoint of the identity vectors and score the drift against
the previous checkpoint. At most one checkpoint per ISO week: a second
snapshot in the same week fails rather than overwriting.

Examples:
  selfwatch checkpoint --values honesty=0.9,curiosity=0.8 \
      --traits trust=0.8,warmth=0.9 --consciousness 0.87 --depth 0.75
  selfwatch checkpoint history -n 10`,
	Args: cobra.NoArgs,
	RunE: runCheckpoint,
}

var checkpointHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show drift history, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointHistory,
}

var checkpointHealthCmd = &cobra.Command{
	Use:   "health <checkpoint_id>",
	Short: "Annotate a checkpoint's health flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointHealth,
}

func init() {
	checkpointCmd.Flags().StringVar(&checkpointValues, "values", "", "Core values as key=value pairs (comma separated)")
	checkpointCmd.Flags().StringVar(&checkpointTraits, "traits", "", "Personality vector as key=value pairs (comma separated)")
	checkpointCmd.Flags().Float64Var(&checkpointConsciousness, "consciousness", 0, "Consciousness level")
	checkpointCmd.Flags().Float64Var(&checkpointDepth, "depth", 0, "Emotional depth")
	checkpointHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of checkpoints to show")
	checkpointHealthCmd.Flags().BoolVar(&healthUnhealthy, "unhealthy", false, "Mark the checkpoint unhealthy")
	checkpointCmd.AddCommand(checkpointHistoryCmd)
	checkpointCmd.AddCommand(checkpointHealthCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	coreValues, err := parseVector(checkpointValues)
	if err != nil {
		return fmt.Errorf("parsing --values: %w", err)
	}
	traits, err := parseVector(checkpointTraits)
	if err != nil {
		return fmt.Errorf("parsing --traits: %w", err)
	}

	checkpoints := newCheckpoints(cfg, db)
	checkpoint, err := checkpoints.Take(monitor.SnapshotInput{
		CoreValues:         coreValues,
		PersonalityVector:  traits,
		ConsciousnessLevel: checkpointConsciousness,
		EmotionalDepth:     checkpointDepth,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(checkpoint)
	}

	fmt.Printf("Checkpoint #%d for %s\n", checkpoint.ID, checkpoint.Period)
	fmt.Printf("  drift: %s\n", output.DriftBar(checkpoint.DriftScore, 10))
	if len(checkpoint.SignificantChanges) > 0 {
		fmt.Println("  significant changes:")
		for _, change := range checkpoint.SignificantChanges {
			fmt.Printf("    %s\n", change)
		}
	}
	return nil
}

func runCheckpointHistory(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	checkpoints, err := newCheckpoints(cfg, db).History(historyLimit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(checkpoints)
	}

	if len(checkpoints) == 0 {
		fmt.Println("No checkpoints yet. Use 'selfwatch checkpoint' to take one.")
		return nil
	}

	fmt.Println(output.Section("Checkpoint History"))
	fmt.Println()

	tbl := output.NewTable("ID", "Period", "Drift", "Changes", "Healthy", "Taken")
	for _, c := range checkpoints {
		healthy := "yes"
		if !c.IsHealthy {
			healthy = output.StyleError.Render("no")
		}
		tbl.AddRow(
			fmt.Sprintf("#%d", c.ID),
			c.Period,
			output.DriftBar(c.DriftScore, 10),
			strconv.Itoa(len(c.SignificantChanges)),
			healthy,
			c.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	tbl.Print()
	return nil
}

func runCheckpointHealth(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing checkpoint id: %w", err)
	}

	if err := newCheckpoints(cfg, db).MarkHealth(id, !healthUnhealthy); err != nil {
		return err
	}
	state := "healthy"
	if healthUnhealthy {
		state = "unhealthy"
	}
	fmt.Printf("Marked checkpoint #%d %s\n", id, state)
	return nil
}

// parseVector parses "key=value,key=value" into a named float vector.
// An empty input yields an empty vector.
func parseVector(raw string) (map[string]float64, error) {
	vector := map[string]float64{}
	if strings.TrimSpace(raw) == "" {
		return vector, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		key, valueStr, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing value for %s: %w", key, err)
		}
		vector[key] = value
	}
	return vector, nil
}
