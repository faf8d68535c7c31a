package main

import (
	"github.com/spf13/cobra"

	"obra/internal/types"
)

var (
	projectName string
	projectDesc string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project over the current workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := mgr.CreateProject(cmd.Context(), projectName, projectDesc, resolveWorkspace())
		if err != nil {
			return err
		}
		cmd.Printf("Created project %d (%s)\n", id, projectName)
		return nil
	},
}

var projectStatusCmd = &cobra.Command{
	Use:   "set-status <project-id> <active|paused|completed|archived>",
	Short: "Flip a project's status",
	Args:  cobra.ExactArgs(2),
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
		return mgr.SetProjectStatus(cmd.Context(), id, types.ProjectStatus(args[1]))
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectName, "name", "", "project name (required)")
	projectCreateCmd.Flags().StringVar(&projectDesc, "description", "", "project description")
	projectCreateCmd.MarkFlagRequired("name")
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectStatusCmd)
}
