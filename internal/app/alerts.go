package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meridian-labs/selfwatch/internal/config"
	"github.com/meridian-labs/selfwatch/internal/output"
	"github.com/meridian-labs/selfwatch/internal/watcher"
)

var (
	alertsNotify    bool
	alertsStatePath string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Diff the stores against the last run and report notable changes",
	Long: `Compare the current state of the self-model stores against the snapshot
saved by the previous run and report what changed: new anomalies, drift
jumps, recurring biases, calibration drops. The first run only records a
baseline. Designed to be invoked externally (e.g. from cron); there is no
built-in loop.`,
	Args: cobra.NoArgs,
	RunE: runAlerts,
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Send a desktop notification per alert")
	alertsCmd.Flags().StringVar(&alertsStatePath, "state", "", "State file path (default: <config dir>/watchstate.json)")
	rootCmd.AddCommand(alertsCmd)
}

func runAlerts(cmd *cobra.Command, args []string) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	statePath := alertsStatePath
	if statePath == "" {
		statePath = filepath.Join(config.ConfigDir(), "watchstate.json")
	}

	alerts, err := watcher.New(db, statePath).Check()
	if err != nil {
		return err
	}

	if alertsNotify {
		for _, a := range alerts {
			_ = watcher.Notify(a)
		}
	}

	if flagJSON {
		if alerts == nil {
			alerts = []watcher.Alert{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	}

	if len(alerts) == 0 {
		fmt.Println("No changes since last run.")
		return nil
	}
	for _, a := range alerts {
		fmt.Printf("%s %s: %s\n", output.SeverityBadge(a.Level), a.Title, a.Message)
	}
	return nil
}
