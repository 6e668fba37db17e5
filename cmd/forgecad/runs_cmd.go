package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"forgecad/internal/config"
	"forgecad/internal/runstore"
)

var (
	runsLimit int
	runID     string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List logged agent runs, or part results for one pipeline run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, err := runstore.Open(cfg.RunLogPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if runID != "" {
			rows, err := db.ListPartResults(runID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("no part results for run", runID)
				return nil
			}
			for _, r := range rows {
				fmt.Printf("%-24s %-8s attempts=%d  %s\n", r.PartKey, r.Status, r.Attempts, r.ArtifactPath)
			}
			return nil
		}

		rows, err := db.ListAgentRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("no runs logged")
			return nil
		}
		for _, r := range rows {
			fmt.Printf("%s  %-20s %-20s steps=%-3d artifacts=%d\n",
				r.CreatedAt, r.SessionID, r.State, r.Steps, r.Artifacts)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum agent runs to list")
	runsCmd.Flags().StringVar(&runID, "run", "", "Show part results for one pipeline run id")
	rootCmd.AddCommand(runsCmd)
}
