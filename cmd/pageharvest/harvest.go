package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pageharvest/pkg/browser"
	"pageharvest/pkg/config"
	"pageharvest/pkg/harvester"
	"pageharvest/pkg/journal"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/planner"
	"pageharvest/pkg/session"
	"pageharvest/pkg/ui"
)

var (
	// Harvest flags
	manifestPath string
	idField      string
	artifactsDir string
	sessionPath  string
	headful      bool
	maxFailures  int
	dryRun       bool
	noJournal    bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Fetch every manifest item that has no artifact yet",
	Long: `Load the manifest and saved session, skip items whose artifact already
exists, then fetch the rest one at a time with a random pause between items.

Per-item failures are reported and skipped; rerunning retries them. After
harvest.max_consecutive_failures failures in a row the run stops early and
reports how many items were left.`,
	Example: `  # Harvest with defaults from .pageharvest.yaml
  pageharvest harvest

  # Use another manifest and watch the browser
  pageharvest harvest --manifest data/orders.json --headful

  # Show what would be fetched
  pageharvest harvest --dry-run`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)
	addHarvestFlags(harvestCmd)
}

func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "work manifest (JSON or YAML)")
	cmd.Flags().StringVar(&idField, "id-field", "", "manifest field holding the item id")
	cmd.Flags().StringVarP(&artifactsDir, "artifacts", "o", "", "artifact output directory")
	cmd.Flags().StringVarP(&sessionPath, "session", "s", "", "saved session file")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	cmd.Flags().IntVar(&maxFailures, "max-failures", 0, "stop after this many consecutive failures (0 disables)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without fetching")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record this run in the journal")
}

// harvestFlags collects only the flags the user actually set
func harvestFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if manifestPath != "" {
		flags["manifest"] = manifestPath
	}
	if idField != "" {
		flags["id-field"] = idField
	}
	if artifactsDir != "" {
		flags["artifacts"] = artifactsDir
	}
	if sessionPath != "" {
		flags["session"] = sessionPath
	}
	if headful {
		flags["headless"] = false
	}
	if cmd.Flags().Changed("max-failures") {
		flags["max-failures"] = maxFailures
	}
	if noJournal || dryRun {
		flags["no-journal"] = true
	}
	return flags
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, harvestFlags(cmd))
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	pipeline := harvester.NewPipeline(cfg, store, browser.Factory(cfg, log), log).
		WithReporter(ui.NewProgress(os.Stdout, verbose))

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, log)
		if err != nil {
			log.WithError(err).Warn("Journal unavailable, continuing without run history")
		} else {
			defer j.Close()
			pipeline.WithJournal(j)
		}
	}

	if !dryRun {
		ui.PrintBanner()
		ui.PrintInfo("Manifest", cfg.Manifest.Path)
		ui.PrintInfo("Artifacts", cfg.Artifacts.Directory)
	}

	var report *harvester.Report
	if dryRun {
		report, err = pipeline.Plan(ctx)
	} else {
		report, err = pipeline.Execute(ctx)
	}
	if err != nil {
		return err
	}

	printReport(cfg, report)
	return nil
}

func printReport(cfg *config.Config, report *harvester.Report) {
	if report.Outcome != planner.OutcomeWork {
		ui.PrintSuccess(report.Outcome.Message())
		return
	}

	if report.DryRun {
		fmt.Fprintln(ui.Out, ui.PlanTable(report.Plan, cfg.ItemURL))
		ui.PrintInfo("Pending", fmt.Sprintf("%d of %d items", len(report.Plan), report.ManifestSize))
		return
	}

	s := report.Summary
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, ui.SummaryTable(*s))
	if table := ui.FailuresTable(s.Failures); table != "" {
		fmt.Fprintln(ui.Out, table)
	}

	switch {
	case s.Cancelled:
		ui.PrintWarning(fmt.Sprintf("Run interrupted, %d items left; run again to resume", s.Remaining))
	case s.Aborted:
		ui.PrintWarning(fmt.Sprintf("Too many consecutive failures, %d items left; run again to resume", s.Remaining))
	case s.Failed > 0:
		ui.PrintWarning(fmt.Sprintf("%d items failed; run again to retry them", s.Failed))
	default:
		ui.PrintSuccess("All planned items harvested")
	}
}
