package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/store"
)

var (
	predictContext    string
	predictConfidence float64
	predictReasoning  string
	predictExpires    string

	reconcileScore float64

	predictListType string
	predictListOpen bool
	predictListN    int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Create, reconcile, and calibrate self-predictions",
	Long: `Record predictions about future behavior and reconcile them against
observed outcomes. Each prediction is reconciled at most once; accuracy
per prediction type feeds the calibration report.

Examples:
  selfwatch predict create behavioral "user asks about weekend plans" \
      "suggest a hike" --confidence 0.8
  selfwatch predict reconcile 3f2a9c1d "suggested a movie" --score 0.2
  selfwatch predict calibration`,
}

var predictCreateCmd = &cobra.Command{
	Use:   "create <type> <context> <predicted_value>",
	Short: "Record a new prediction",
	Args:  cobra.ExactArgs(3),
	RunE:  runPredictCreate,
}

var predictReconcileCmd = &cobra.Command{
	Use:   "reconcile <prediction_id> <outcome_value>",
	Short: "Attach the observed outcome to a prediction",
	Args:  cobra.ExactArgs(2),
	RunE:  runPredictReconcile,
}

var predictLessonCmd = &cobra.Command{
	Use:   "lesson <prediction_id> <lesson>",
	Short: "Attach a lesson to a reconciled prediction",
	Args:  cobra.ExactArgs(2),
	RunE:  runPredictLesson,
}

var predictCalibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Show accuracy statistics per prediction type",
	Args:  cobra.NoArgs,
	RunE:  runPredictCalibration,
}

var predictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List predictions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runPredictList,
}

func init() {
	predictCreateCmd.Flags().Float64Var(&predictConfidence, "confidence", 0.5, "Confidence in [0,1]")
	predictCreateCmd.Flags().StringVar(&predictReasoning, "reasoning", "", "Why this prediction was made")
	predictCreateCmd.Flags().StringVar(&predictExpires, "expires", "", "Expiry timestamp (RFC3339)")
	predictReconcileCmd.Flags().Float64Var(&reconcileScore, "score", 0, "Accuracy score in [0,1]")
	predictListCmd.Flags().StringVar(&predictListType, "type", "", "Only predictions of this type")
	predictListCmd.Flags().BoolVar(&predictListOpen, "open", false, "Only unreconciled predictions")
	predictListCmd.Flags().IntVarP(&predictListN, "limit", "n", 20, "Number of predictions to show")
	predictCmd.AddCommand(predictCreateCmd)
	predictCmd.AddCommand(predictReconcileCmd)
	predictCmd.AddCommand(predictLessonCmd)
	predictCmd.AddCommand(predictCalibrationCmd)
	predictCmd.AddCommand(predictListCmd)
	rootCmd.AddCommand(predictCmd)
}

func runPredictCreate(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var expiresAt *time.Time
	if predictExpires != "" {
		t, err := time.Parse(time.RFC3339, predictExpires)
		if err != nil {
			return fmt.Errorf("parsing --expires: %w", err)
		}
		expiresAt = &t
	}

	prediction, err := newValidator(cfg, db).Create(
		store.PredictionType(args[0]), args[1], args[2],
		predictConfidence, predictReasoning, expiresAt,
	)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prediction)
	}

	fmt.Printf("Recorded prediction %s (%s, confidence %.2f)\n",
		prediction.ID[:8], prediction.PredictionType, prediction.PredictedConfidence)
	return nil
}

func runPredictReconcile(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	id, err := expandPredictionID(db, args[0])
	if err != nil {
		return err
	}

	prediction, err := newValidator(cfg, db).Reconcile(id, args[1], reconcileScore)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prediction)
	}

	verdict := output.StyleError.Render("inaccurate")
	if prediction.WasAccurate != nil && *prediction.WasAccurate {
		verdict = output.StyleSuccess.Render("accurate")
	}
	fmt.Printf("Reconciled %s: %s (score %.2f)\n", prediction.ID[:8], verdict, reconcileScore)
	return nil
}

func runPredictLesson(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	id, err := expandPredictionID(db, args[0])
	if err != nil {
		return err
	}
	if err := newValidator(cfg, db).AddLesson(id, args[1]); err != nil {
		return err
	}
	fmt.Printf("Recorded lesson for %s\n", id[:8])
	return nil
}

func runPredictCalibration(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	stats, err := db.AccuracyByType()
	if err != nil {
		return fmt.Errorf("computing calibration: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	if len(stats) == 0 {
		fmt.Println("No predictions recorded.")
		return nil
	}

	fmt.Println(output.Section("Prediction Calibration"))
	fmt.Println()

	tbl := output.NewTable("Type", "Total", "Reconciled", "Mean Accuracy", "Hit Rate")
	for _, s := range stats {
		tbl.AddRow(
			string(s.PredictionType),
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Reconciled),
			fmt.Sprintf("%.2f", s.MeanAccuracy),
			fmt.Sprintf("%.0f%%", s.HitRate*100),
		)
	}
	tbl.Print()
	return nil
}

func runPredictList(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	predictions, err := db.ListPredictions(store.PredictionFilter{
		Type:         store.PredictionType(predictListType),
		Unreconciled: predictListOpen,
		Limit:        predictListN,
	})
	if err != nil {
		return fmt.Errorf("listing predictions: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(predictions)
	}

	if len(predictions) == 0 {
		fmt.Println("No predictions recorded.")
		return nil
	}

	fmt.Println(output.Section("Predictions"))
	fmt.Println()

	tbl := output.NewTable("ID", "Type", "Predicted", "Conf", "Outcome", "Score", "When")
	for _, p := range predictions {
		outcome := output.StyleMuted.Render("open")
		score := ""
		if p.Reconciled() {
			outcome = truncate(*p.OutcomeValue, 24)
			if p.AccuracyScore != nil {
				score = fmt.Sprintf("%.2f", *p.AccuracyScore)
			}
		}
		tbl.AddRow(
			p.ID[:8],
			string(p.PredictionType),
			truncate(p.PredictedValue, 24),
			fmt.Sprintf("%.2f", p.PredictedConfidence),
			outcome,
			score,
			p.PredictedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	tbl.Print()
	return nil
}

// expandPredictionID resolves a unique id prefix to a full prediction id.
func expandPredictionID(db *store.DB, prefix string) (string, error) {
	if len(prefix) >= 36 {
		return prefix, nil
	}
	predictions, err := db.ListPredictions(store.PredictionFilter{})
	if err != nil {
		return "", fmt.Errorf("resolving prediction id: %w", err)
	}
	var match string
	for _, p := range predictions {
		if len(p.ID) >= len(prefix) && p.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("prediction id prefix %q is ambiguous", prefix)
			}
			match = p.ID
		}
	}
	if match == "" {
		return "", store.ErrNotFound
	}
	return match, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
