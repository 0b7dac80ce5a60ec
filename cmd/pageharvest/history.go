package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pageharvest/pkg/journal"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recent harvest runs",
	Long: `List recent runs recorded in the journal. With a run id (or a unique
prefix of one), list the items that run attempted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Journal.Path); errors.Is(err, os.ErrNotExist) {
		ui.PrintWarning("No journal yet", cfg.Journal.Path)
		return nil
	}

	j, err := journal.Open(cfg.Journal.Path, logger.GetLogger())
	if err != nil {
		return err
	}
	defer j.Close()

	if len(args) == 1 {
		runID, err := j.FindRun(args[0])
		if err != nil {
			return err
		}
		items, err := j.Items(runID)
		if err != nil {
			return err
		}
		ui.PrintInfo("Run", runID)
		fmt.Fprintln(ui.Out, ui.ItemsTable(items))
		return nil
	}

	runs, err := j.Runs(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.PrintWarning("No runs recorded")
		return nil
	}
	fmt.Fprintln(ui.Out, ui.HistoryTable(runs))
	return nil
}
