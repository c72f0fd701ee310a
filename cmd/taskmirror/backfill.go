package main

import (
	"fmt"

	"github.com/kmorehouse/taskmirror/internal/settings"
	"github.com/kmorehouse/taskmirror/internal/ui"
	"github.com/spf13/cobra"
)

var backfillForce bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run the one-time backfill jobs",
	Long: `Run the full backfill and due-date backfill jobs.

Both jobs are gated by persisted per-user completion flags and normally run
once from the daemon. --force clears the flags first so the jobs run again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if backfillForce {
			if err := a.flags.SetBool(a.cfg.UserID, settings.KeyFullBackfillComplete, false); err != nil {
				return err
			}
			if err := a.flags.SetBool(a.cfg.UserID, settings.KeyDueDateBackfillComplete, false); err != nil {
				return err
			}
		}

		r := a.backfillRunner()
		if err := r.FullBackfill(cmd.Context()); err != nil {
			return fmt.Errorf("full backfill failed: %w", err)
		}
		if err := r.DueDateBackfill(cmd.Context()); err != nil {
			return fmt.Errorf("due-date backfill failed: %w", err)
		}

		fmt.Printf("%s Backfill complete\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillForce, "force", false, "clear completion flags and re-run")
	rootCmd.AddCommand(backfillCmd)
}
