package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireServer(); err != nil {
			return err
		}
		a, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.engine.SyncNow(cmd.Context())
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(res)
		}

		if !res.Ran() {
			fmt.Printf("Sync skipped: %s\n", res.Skipped)
			if res.Error != "" {
				fmt.Printf("  %s\n", res.Error)
			}
			return nil
		}
		fmt.Printf("Synced %d, failed %d in %v\n", res.SyncedCount, res.FailedCount, res.Duration.Round(time.Millisecond))
		for _, e := range res.Errors {
			fmt.Printf("  %s [%s] %s\n", e.LocalID, e.Kind, e.Reason)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queued workouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.store.GetAll(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Queue: %s\n", a.store.Path())
		fmt.Printf("Connectivity: %s\n", a.monitor.Current())
		fmt.Printf("Pending: %d\n", len(records))
		for _, rec := range records {
			captured := time.UnixMilli(rec.CapturedAt).UTC().Format(time.RFC3339)
			fmt.Printf("  %s  %-9s captured %s  retries %d\n", rec.LocalID, rec.Kind, captured, rec.RetryCount)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove queued workouts older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.engine.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d workout(s) older than %v\n", removed, cfg.Retention)
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("json", false, "Print the pass result as JSON")
	rootCmd.AddCommand(syncCmd, statusCmd, sweepCmd)
}
