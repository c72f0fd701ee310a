package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/kmorehouse/taskmirror/internal/engine"
	"github.com/kmorehouse/taskmirror/internal/logging"
	"github.com/kmorehouse/taskmirror/internal/ui"
	"github.com/kmorehouse/taskmirror/internal/visibility"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the synchronization daemon",
	Long: `Run the engine continuously:

  1. Loads all three partitions (cache-first, then remote-confirmed)
  2. Refreshes loaded partitions on a fixed interval
  3. Subscribes to the scoring channel for visibility updates
  4. Runs the one-time backfill jobs if their flags are unset`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := logging.New("[daemon] ")
		logger.Println("Starting daemon")

		for _, p := range engine.Partitions {
			if err := a.eng.Load(ctx, p); err != nil {
				logger.Printf("Initial load failed for %s: %v", p, err)
			}
		}

		a.eng.SetActive(true)
		go a.eng.RunRefresh(ctx)

		if a.cfg.ScoringURL != "" {
			sub := visibility.NewSubscriber(a.cfg.ScoringURL, a.cfg.Token, logging.New("[visibility] "))
			go sub.Run(ctx)
			go a.eng.RunVisibility(ctx, sub.Updates())
		}

		go a.backfillRunner().RunAll(ctx)

		fmt.Printf("%s Daemon running (ctrl-c to stop)\n", ui.RenderAccent("●"))
		<-ctx.Done()

		logger.Println("Shutdown signal received")
		a.eng.SetActive(false)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
