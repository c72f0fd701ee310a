package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/kmorehouse/taskmirror/internal/ui"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var (
	addDue  string
	addTags []string
)

var addCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Create a task",
	Long: `Create a task on the remote store.

Creation is remote-confirmed: the command waits for the server-assigned task
and inserts it at the head of the incomplete list. The --due flag accepts
natural language, e.g. --due "tomorrow 5pm" or --due "next friday".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		var dueAt *time.Time
		if addDue != "" {
			due, err := parseDue(addDue)
			if err != nil {
				return err
			}
			dueAt = due
		}

		var metadata map[string]any
		if len(addTags) > 0 {
			metadata = map[string]any{"tags": addTags}
		}

		created, err := a.eng.Create(cmd.Context(), strings.Join(args, " "), dueAt, metadata)
		if err != nil {
			return err
		}

		fmt.Printf("%s Created %s\n", ui.RenderPass("✓"), ui.RenderTaskLine(created))
		return nil
	},
}

// parseDue interprets a natural-language due expression relative to now.
func parseDue(text string) (*time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return nil, fmt.Errorf("could not understand due date %q", text)
	}
	return &r.Time, nil
}

func init() {
	addCmd.Flags().StringVar(&addDue, "due", "", "due date in natural language")
	addCmd.Flags().StringSliceVar(&addTags, "tag", nil, "tags stored in task metadata")
	rootCmd.AddCommand(addCmd)
}
