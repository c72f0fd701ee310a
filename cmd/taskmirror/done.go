package main

import (
	"fmt"

	"github.com/kmorehouse/taskmirror/internal/engine"
	"github.com/kmorehouse/taskmirror/internal/ui"
	"github.com/spf13/cobra"
)

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Toggle a task's completion",
	Long: `Toggle a task between incomplete and completed.

The toggle is remote-confirmed: the task only moves once the server accepts
the update. On failure the task stays where it was.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		// The toggle needs the task in a loaded page.
		_ = a.eng.Load(ctx, engine.PartitionIncomplete)
		_ = a.eng.Load(ctx, engine.PartitionCompleted)

		if err := a.eng.ToggleCompletion(ctx, args[0]); err != nil {
			return err
		}

		fmt.Printf("%s Toggled %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doneCmd)
}
