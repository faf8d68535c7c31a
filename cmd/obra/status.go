package main

import (
	"sort"

	"github.com/spf13/cobra"

	"obra/internal/types"
)

var statusProjectID int64

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a project's progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()
		ctx := cmd.Context()

		project, err := mgr.GetProject(ctx, statusProjectID)
		if err != nil {
			return err
		}
		items, err := mgr.ListWorkItems(ctx, statusProjectID)
		if err != nil {
			return err
		}

		cmd.Printf("Project %d: %s [%s]\n", project.ID, project.Name, project.Status)
		cmd.Printf("Workdir: %s\n\n", project.WorkDir)

		byStatus := make(map[types.WorkItemStatus]int)
		open := 0
		for _, it := range items {
			byStatus[it.Status]++
			bps, err := mgr.OpenBreakpoints(ctx, it.ID)
			if err != nil {
				return err
			}
			open += len(bps)
		}

		statuses := make([]string, 0, len(byStatus))
		for s := range byStatus {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		cmd.Printf("Work items (%d total):\n", len(items))
		for _, s := range statuses {
			cmd.Printf("  %-12s %d\n", s, byStatus[types.WorkItemStatus(s)])
		}
		if open > 0 {
			cmd.Printf("\nOpen breakpoints: %d (resolve with 'obra breakpoint resolve')\n", open)
		}

		ready, err := mgr.ReadyWorkItems(ctx, statusProjectID)
		if err != nil {
			return err
		}
		if len(ready) > 0 {
			cmd.Printf("Ready to run: %s\n", joinIDs(ready))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Int64Var(&statusProjectID, "project", 0, "project id (required)")
	statusCmd.MarkFlagRequired("project")
}
