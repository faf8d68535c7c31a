package main

import (
	"github.com/spf13/cobra"

	"obra/internal/types"
)

var (
	bpItemID     int64
	bpResolution string
	bpFeedback   string
)

var breakpointCmd = &cobra.Command{
	Use:   "breakpoint",
	Short: "Inspect and resolve escalation breakpoints",
}

var breakpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open breakpoints for a work item",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()

		bps, err := mgr.OpenBreakpoints(cmd.Context(), bpItemID)
		if err != nil {
			return err
		}
		for _, bp := range bps {
			cmd.Printf("%5d  [%s] opened %s: %s\n", bp.ID, bp.Severity,
				bp.OpenedAt.Format("2006-01-02 15:04:05"), bp.Reason)
		}
		return nil
	},
}

var breakpointResolveCmd = &cobra.Command{
	Use:   "resolve <breakpoint-id>",
	Short: "Resolve a breakpoint (continue, retry, modify, cancel)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()
		return mgr.ResolveBreakpoint(cmd.Context(), id, types.Resolution(bpResolution), bpFeedback)
	},
}

func init() {
	breakpointListCmd.Flags().Int64Var(&bpItemID, "item", 0, "work item id (required)")
	breakpointListCmd.MarkFlagRequired("item")
	breakpointResolveCmd.Flags().StringVar(&bpResolution, "resolution", "continue", "continue, retry, modify, or cancel")
	breakpointResolveCmd.Flags().StringVar(&bpFeedback, "feedback", "", "guidance injected into the next prompt")
	breakpointCmd.AddCommand(breakpointListCmd)
	breakpointCmd.AddCommand(breakpointResolveCmd)
}
