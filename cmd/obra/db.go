package main

import (
	"sort"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Store maintenance",
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats()
		if err != nil {
			return err
		}
		tables := make([]string, 0, len(stats))
		for t := range stats {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			cmd.Printf("%-14s %d\n", t, stats[t])
		}
		return nil
	},
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim space from soft-deleted rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openState()
		if err != nil {
			return err
		}
		defer st.Close()
		return st.Vacuum()
	},
}

func init() {
	dbCmd.AddCommand(dbStatsCmd)
	dbCmd.AddCommand(dbVacuumCmd)
}
