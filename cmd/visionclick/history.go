package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dreamup/visionclick/internal/agent"
	"github.com/dreamup/visionclick/internal/db"
	"github.com/spf13/cobra"
)

var (
	historyStatus string
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous locate runs recorded in --history-db",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "all", "Filter by status (resolved, acted, failed, all)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of runs to skip")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.HistoryDB == "" {
		return agent.NewConfigError("--history-db (or VISIONCLICK_HISTORY_DB) is required")
	}

	history, err := db.New(cfg.HistoryDB)
	if err != nil {
		return agent.NewStorageError("failed to open history database", err)
	}
	defer history.Close()

	runs, err := history.ListRuns(historyStatus, historyLimit, historyOffset)
	if err != nil {
		return agent.NewStorageError("failed to list runs", err)
	}
	total, err := history.CountRuns(historyStatus)
	if err != nil {
		return agent.NewStorageError("failed to count runs", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSTATUS\tTARGET\tX,Y\tACTION\tMODEL")
	for _, run := range runs {
		point := "-"
		if run.X != nil && run.Y != nil {
			point = fmt.Sprintf("%d,%d", *run.X, *run.Y)
		}
		action := run.Action
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.CreatedAt.Format("2006-01-02 15:04:05"), run.Status, run.Target, point, action, run.Model)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d of %d runs\n", len(runs), total)
	return nil
}
