package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"obra/internal/state"
	"obra/internal/types"
)

var (
	itemProjectID int64
	itemKind      string
	itemTitle     string
	itemDesc      string
	itemPriority  int
	itemParent    int64
	itemEpic      int64
	itemStory     int64
	itemDeps      string
	itemMaxRetry  int
	itemExecutor  string
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage work items",
}

var itemAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a work item",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()

		deps, err := parseIDList(itemDeps)
		if err != nil {
			return err
		}
		spec := state.CreateWorkItemSpec{
			Kind:        types.WorkItemKind(itemKind),
			ProjectID:   itemProjectID,
			Title:       itemTitle,
			Description: itemDesc,
			Priority:    itemPriority,
			Deps:        deps,
			MaxRetries:  itemMaxRetry,
			Executor:    itemExecutor,
			ParentID:    optionalID(itemParent),
			EpicID:      optionalID(itemEpic),
			StoryID:     optionalID(itemStory),
		}
		id, err := mgr.CreateWorkItem(cmd.Context(), spec)
		if err != nil {
			return err
		}
		cmd.Printf("Created %s %d\n", itemKind, id)
		return nil
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's work items",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := mgr.ListWorkItems(cmd.Context(), itemProjectID)
		if err != nil {
			return err
		}
		for _, it := range items {
			deps := ""
			if len(it.DependencyIDs) > 0 {
				deps = " deps=" + joinIDs(it.DependencyIDs)
			}
			cmd.Printf("%5d  %-8s %-12s p%-3d %s%s\n", it.ID, it.Kind, it.Status, it.Priority, it.Title, deps)
		}
		return nil
	},
}

var itemDepCmd = &cobra.Command{
	Use:   "add-dep <item-id> <depends-on-id>",
	Short: "Add a dependency edge between two work items",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseID(args[0])
		if err != nil {
			return err
		}
		to, err := parseID(args[1])
		if err != nil {
			return err
		}
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()
		return mgr.AddDependency(cmd.Context(), from, to)
	},
}

func init() {
	itemAddCmd.Flags().Int64Var(&itemProjectID, "project", 0, "project id (required)")
	itemAddCmd.Flags().StringVar(&itemKind, "kind", "task", "epic, story, task, or subtask")
	itemAddCmd.Flags().StringVar(&itemTitle, "title", "", "title (required)")
	itemAddCmd.Flags().StringVar(&itemDesc, "description", "", "description")
	itemAddCmd.Flags().IntVar(&itemPriority, "priority", 0, "priority, higher wins")
	itemAddCmd.Flags().Int64Var(&itemParent, "parent", 0, "parent item id (subtasks)")
	itemAddCmd.Flags().Int64Var(&itemEpic, "epic", 0, "epic id (stories and tasks)")
	itemAddCmd.Flags().Int64Var(&itemStory, "story", 0, "story id (tasks)")
	itemAddCmd.Flags().StringVar(&itemDeps, "deps", "", "comma-separated dependency item ids")
	itemAddCmd.Flags().IntVar(&itemMaxRetry, "max-retries", 0, "retry budget (default from config)")
	itemAddCmd.Flags().StringVar(&itemExecutor, "executor", "", "assigned executor name")
	itemAddCmd.MarkFlagRequired("project")
	itemAddCmd.MarkFlagRequired("title")

	itemListCmd.Flags().Int64Var(&itemProjectID, "project", 0, "project id (required)")
	itemListCmd.MarkFlagRequired("project")

	itemCmd.AddCommand(itemAddCmd)
	itemCmd.AddCommand(itemListCmd)
	itemCmd.AddCommand(itemDepCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, types.Errorf(types.KindInvariantViolation, "cli.parseID", "invalid id %q", s)
	}
	return id, nil
}

func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		id, err := parseID(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func optionalID(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
