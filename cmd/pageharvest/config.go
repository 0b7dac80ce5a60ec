package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pageharvest/pkg/config"
	"pageharvest/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage pageharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (PAGEHARVEST_*)
  - .env file
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as '.pageharvest.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Show the effective configuration after merging every source.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load and validate the configuration, then check that the manifest and
session exist and the artifact directory is writable.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# pageharvest configuration
#
# Every value can also be set with a PAGEHARVEST_* environment variable,
# for example PAGEHARVEST_MANIFEST or PAGEHARVEST_MAX_DELAY=8s.

# Ordered list of work items (JSON array or YAML sequence)
manifest:
  path: "data/manifest.json"
  # Field holding the item id in each record
  id_field: "id"

# Saved browser session written by 'pageharvest login'
session:
  path: "session/session.json"
  # Encrypt the session file; the key comes from PAGEHARVEST_PASSPHRASE or
  # the system keychain
  encrypt: false

# One file per item: <directory>/<id><extension>
artifacts:
  directory: "artifacts"
  extension: ".html"

target:
  # {id} is replaced by the escaped item id
  url_template: "https://sellercentral.amazon.com/orders-v3/order/{id}"
  login_url: "https://sellercentral.amazon.com"

browser:
  headless: true
  stealth: true
  # Connect to a running browser instead of launching one
  remote_url: ""
  # Browser executable; empty downloads or finds one automatically
  bin: ""
  navigation_timeout: 90s
  # fixed: wait 'settle' after load
  # poll: wait until content stops changing, at most 'settle'
  settle_mode: fixed
  settle: 5s
  poll_interval: 500ms
  stable_polls: 3
  launch_attempts: 3

# Random pause between items
politeness:
  min_delay: 2s
  max_delay: 5s
  # Cap on page loads per rolling hour, 0 for none
  max_per_hour: 0

harvest:
  # Stop after this many failures in a row, 0 never stops
  max_consecutive_failures: 5
  # Save a screenshot of failed pages here, empty disables
  error_screenshots_dir: ""

# Run history for 'pageharvest history'
journal:
  enabled: true
  path: "data/journal.db"

logging:
  # debug, info, warn, error
  level: "info"
  # Also log to this file
  file: ""
  # Write the log file as JSON lines
  json: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".pageharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Fprintln(ui.Out, "\nTo overwrite, first remove the existing file:")
		fmt.Fprintf(ui.Out, "  rm %s\n", configPath)
		return errors.New("refusing to overwrite configuration")
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Fprintln(ui.Out, "\nNext steps:")
	fmt.Fprintln(ui.Out, "1. Set target.url_template and target.login_url")
	fmt.Fprintln(ui.Out, "2. Run 'pageharvest login' to capture a session")
	fmt.Fprintln(ui.Out, "3. Run 'pageharvest plan', then 'pageharvest'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, string(data))
	return nil
}

// validationReport lists problems that do not stop config loading
type validationReport struct {
	warnings []string
	errors   []string
}

func checkEnvironment(cfg *config.Config) validationReport {
	var r validationReport

	if _, err := os.Stat(cfg.Manifest.Path); err != nil {
		r.warnings = append(r.warnings, fmt.Sprintf("manifest not found at %s", cfg.Manifest.Path))
	}
	if _, err := os.Stat(cfg.Session.Path); err != nil {
		r.warnings = append(r.warnings, fmt.Sprintf("no saved session at %s; run 'pageharvest login'", cfg.Session.Path))
	}
	if err := os.MkdirAll(cfg.Artifacts.Directory, 0755); err != nil {
		r.errors = append(r.errors, fmt.Sprintf("cannot create artifact directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			r.errors = append(r.errors, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if cfg.Harvest.ErrorScreenshotsDir != "" {
		if err := os.MkdirAll(cfg.Harvest.ErrorScreenshotsDir, 0755); err != nil {
			r.errors = append(r.errors, fmt.Sprintf("cannot create screenshot directory: %v", err))
		}
	}
	return r
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	r := checkEnvironment(cfg)
	if len(r.errors) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, e := range r.errors {
			fmt.Fprintf(ui.Out, "  - %s\n", e)
		}
		return errors.New("configuration is not usable")
	}

	if len(r.warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range r.warnings {
			fmt.Fprintf(ui.Out, "  - %s\n", w)
		}
		fmt.Fprintln(ui.Out)
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Fprintln(ui.Out, "\nConfiguration summary:")
	fmt.Fprintf(ui.Out, "  Manifest: %s (id field %q)\n", cfg.Manifest.Path, cfg.Manifest.IDField)
	fmt.Fprintf(ui.Out, "  Artifacts: %s/*%s\n", cfg.Artifacts.Directory, cfg.Artifacts.Extension)
	fmt.Fprintf(ui.Out, "  Navigation timeout: %s, settle: %s (%s)\n", cfg.Browser.NavigationTimeout, cfg.Browser.Settle, cfg.Browser.SettleMode)
	fmt.Fprintf(ui.Out, "  Delay between items: %s to %s\n", cfg.Politeness.MinDelay, cfg.Politeness.MaxDelay)
	fmt.Fprintf(ui.Out, "  Breaker: %d consecutive failures\n", cfg.Harvest.MaxConsecutiveFailures)
	fmt.Fprintf(ui.Out, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
