package main

import (
	"fmt"

	"github.com/kmorehouse/taskmirror/internal/engine"
	"github.com/kmorehouse/taskmirror/internal/ui"
	"github.com/spf13/cobra"
)

var (
	listPartition string
	listSections  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks from one partition.

The cached page is shown immediately; the remote store is then confirmed and
the merged result printed. With --sections, the incomplete partition is
grouped into overdue, due-today, and no-due-date sections.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		p, err := parsePartition(listPartition)
		if err != nil {
			return err
		}

		if err := a.eng.Load(cmd.Context(), p); err != nil {
			// A cache-backed page may still have been published.
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}

		snap := a.eng.Snapshot()

		if listSections && p == engine.PartitionIncomplete {
			fmt.Print(ui.RenderList("Overdue", snap.Overdue()))
			fmt.Print(ui.RenderList("Due today", snap.DueToday()))
			fmt.Print(ui.RenderList("No due date", snap.NoDueDate()))
			counts := snap.Counts()
			fmt.Printf("%d incomplete, %d overdue, %d due today\n",
				counts.Incomplete, counts.Overdue, counts.DueToday)
			return nil
		}

		view := snap.Incomplete
		switch p {
		case engine.PartitionCompleted:
			view = snap.Completed
		case engine.PartitionDeleted:
			view = snap.Deleted
		}

		if len(view.Tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}
		for _, t := range view.Tasks {
			fmt.Println(ui.RenderTaskLine(t))
		}
		if view.HasMore {
			fmt.Println(ui.RenderAccent("(more available)"))
		}
		return nil
	},
}

func parsePartition(s string) (engine.Partition, error) {
	switch s {
	case "", "incomplete":
		return engine.PartitionIncomplete, nil
	case "completed", "done":
		return engine.PartitionCompleted, nil
	case "deleted", "trash":
		return engine.PartitionDeleted, nil
	}
	return 0, fmt.Errorf("unknown partition %q (want incomplete, completed, or deleted)", s)
}

func init() {
	listCmd.Flags().StringVarP(&listPartition, "partition", "p", "incomplete", "partition to list (incomplete, completed, deleted)")
	listCmd.Flags().BoolVar(&listSections, "sections", false, "group the incomplete list into due-date sections")
	rootCmd.AddCommand(listCmd)
}
