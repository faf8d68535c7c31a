package main

import (
	"time"

	"github.com/spf13/cobra"

	"obra/internal/types"
)

var (
	msProjectID  int64
	msName       string
	msDesc       string
	msTargetDate string
	msEpics      string
	msVersion    string
)

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Manage milestones",
}

var milestoneAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a milestone gated on epics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, mgr, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()

		epics, err := parseIDList(msEpics)
		if err != nil {
			return err
		}
		ms := &types.Milestone{
			ProjectID:       msProjectID,
			Name:            msName,
			Description:     msDesc,
			RequiredEpicIDs: epics,
			Version:         msVersion,
		}
		if msTargetDate != "" {
			t, err := time.Parse("2006-01-02", msTargetDate)
			if err != nil {
				return types.Errorf(types.KindInvariantViolation, "cli.milestoneAdd",
					"target date must be YYYY-MM-DD, got %q", msTargetDate)
			}
			ms.TargetDate = &t
		}
		id, err := mgr.CreateMilestone(cmd.Context(), ms)
		if err != nil {
			return err
		}
		cmd.Printf("Created milestone %d (%s)\n", id, msName)
		return nil
	},
}

func init() {
	milestoneAddCmd.Flags().Int64Var(&msProjectID, "project", 0, "project id (required)")
	milestoneAddCmd.Flags().StringVar(&msName, "name", "", "milestone name (required)")
	milestoneAddCmd.Flags().StringVar(&msDesc, "description", "", "description")
	milestoneAddCmd.Flags().StringVar(&msTargetDate, "target-date", "", "target date, YYYY-MM-DD")
	milestoneAddCmd.Flags().StringVar(&msEpics, "epics", "", "comma-separated required epic ids")
	milestoneAddCmd.Flags().StringVar(&msVersion, "version", "", "version string")
	milestoneAddCmd.MarkFlagRequired("project")
	milestoneAddCmd.MarkFlagRequired("name")
	milestoneCmd.AddCommand(milestoneAddCmd)
}
