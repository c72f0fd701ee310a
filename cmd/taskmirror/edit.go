package main

import (
	"fmt"
	"time"

	"github.com/kmorehouse/taskmirror/internal/remote"
	"github.com/kmorehouse/taskmirror/internal/ui"
	"github.com/spf13/cobra"
)

var (
	editDesc     string
	editDue      string
	editPriority string
	editTags     []string
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a task",
	Long: `Edit a task's fields.

Only the flags you pass are sent as a changed-fields payload; everything else,
including unrelated metadata such as tags set elsewhere, is preserved by
server-side merge. The edit is remote-confirmed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := remote.Fields{}
		if cmd.Flags().Changed("desc") {
			fields["description"] = editDesc
		}
		if cmd.Flags().Changed("due") {
			if editDue == "" {
				fields["due_at"] = nil
			} else {
				due, err := parseDue(editDue)
				if err != nil {
					return err
				}
				fields["due_at"] = due.UTC().Format(time.RFC3339)
			}
		}
		if cmd.Flags().Changed("priority") {
			fields["priority"] = editPriority
		}
		if cmd.Flags().Changed("tag") {
			fields["metadata"] = map[string]any{"tags": editTags}
		}
		if len(fields) == 0 {
			return fmt.Errorf("nothing to edit; pass at least one of --desc, --due, --priority, --tag")
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		updated, err := a.eng.Edit(cmd.Context(), args[0], fields)
		if err != nil {
			return err
		}

		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderTaskLine(updated))
		return nil
	},
}

func init() {
	editCmd.Flags().StringVar(&editDesc, "desc", "", "new description")
	editCmd.Flags().StringVar(&editDue, "due", "", "new due date in natural language (empty clears it)")
	editCmd.Flags().StringVar(&editPriority, "priority", "", "priority (low, medium, high, urgent)")
	editCmd.Flags().StringSliceVar(&editTags, "tag", nil, "replace tags in task metadata")
	rootCmd.AddCommand(editCmd)
}
