package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"pageharvest/pkg/config"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	verbose    bool
)

// rootCmd runs a harvest when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pageharvest",
	Short: "Incrementally harvest authenticated detail pages",
	Long: `pageharvest fetches one detail page per manifest item from an authenticated
web application and stores the rendered HTML, skipping every item that already
has an artifact on disk.

Typical workflow:
  1. pageharvest login      capture a browser session once
  2. pageharvest plan       see which items are still missing
  3. pageharvest            fetch them, politely, one at a time

Running again after an interruption resumes where the last run stopped.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
	},
	RunE: runHarvest,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportFatal(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.pageharvest.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show logs and error details alongside progress")

	addHarvestFlags(rootCmd)

	rootCmd.SetVersionTemplate(`pageharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges file, environment and flags, then sets up logging.
// Without --verbose the console only shows warnings so progress lines stay
// readable.
func loadConfig(cmd *cobra.Command, flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	switch {
	case logLevel != "":
		flags["log-level"] = logLevel
	case !verbose:
		flags["log-level"] = "warn"
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, &configError{err: err}
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, &configError{err: err}
	}
	logger.WithField("version", version).Debug("pageharvest starting")
	return cfg, nil
}
