package main

import (
	"github.com/spf13/cobra"
)

var (
	cpProjectID int64
	cpReason    string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Snapshot and restore project state",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the whole project atomically",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := mgr.Snapshot(cmd.Context(), cpProjectID, cpReason)
		if err != nil {
			return err
		}
		cmd.Printf("Created checkpoint %d\n", id)
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Rewrite project state to a snapshot",
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
		if err := mgr.RestoreCheckpoint(cmd.Context(), id); err != nil {
			return err
		}
		cmd.Printf("Restored checkpoint %d\n", id)
		return nil
	},
}

func init() {
	checkpointCreateCmd.Flags().Int64Var(&cpProjectID, "project", 0, "project id (required)")
	checkpointCreateCmd.Flags().StringVar(&cpReason, "reason", "manual", "why the snapshot was taken")
	checkpointCreateCmd.MarkFlagRequired("project")
	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
}
