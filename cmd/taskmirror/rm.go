package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/kmorehouse/taskmirror/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rmYes bool

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Soft-delete tasks",
	Long: `Soft-delete one or more tasks.

Deletion is optimistic-local-first: the task disappears from the cache and
the lists immediately, and the remote soft-delete runs in the background. A
remote failure never resurrects the task locally.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 && !rmYes && term.IsTerminal(int(os.Stdin.Fd())) {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete %d tasks?", len(args))).
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.eng.DeleteBulk(cmd.Context(), args); err != nil {
			return err
		}

		fmt.Printf("%s Deleted %d task(s)\n", ui.RenderPass("✓"), len(args))
		return nil
	},
}

func init() {
	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(rmCmd)
}
