package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for a harvest run
type Config struct {
	// Work manifest location
	Manifest ManifestConfig `yaml:"manifest" json:"manifest"`

	// Saved authentication context
	Session SessionConfig `yaml:"session" json:"session"`

	// Where artifacts are written
	Artifacts ArtifactsConfig `yaml:"artifacts" json:"artifacts"`

	// Remote application addressing
	Target TargetConfig `yaml:"target" json:"target"`

	// Headless browser settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Delay between items
	Politeness PolitenessConfig `yaml:"politeness" json:"politeness"`

	// Harvest loop behaviour
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`

	// Run history database
	Journal JournalConfig `yaml:"journal" json:"journal"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ManifestConfig locates the ordered list of work items
type ManifestConfig struct {
	Path    string `yaml:"path" json:"path"`
	IDField string `yaml:"id_field" json:"id_field"`
}

// SessionConfig locates the saved authentication context
type SessionConfig struct {
	Path    string `yaml:"path" json:"path"`
	Encrypt bool   `yaml:"encrypt" json:"encrypt"`
}

// ArtifactsConfig controls artifact naming and placement
type ArtifactsConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	Extension string `yaml:"extension" json:"extension"`
}

// TargetConfig describes the remote application
type TargetConfig struct {
	// URLTemplate is the detail page URL; {id} is replaced by the item id
	URLTemplate string `yaml:"url_template" json:"url_template"`
	LoginURL    string `yaml:"login_url" json:"login_url"`
}

// BrowserConfig holds browser launch and page synchronisation settings
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	Stealth           bool          `yaml:"stealth" json:"stealth"`
	RemoteURL         string        `yaml:"remote_url" json:"remote_url"`
	Bin               string        `yaml:"bin" json:"bin"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	SettleMode        string        `yaml:"settle_mode" json:"settle_mode"`
	Settle            time.Duration `yaml:"settle" json:"settle"`
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
	StablePolls       int           `yaml:"stable_polls" json:"stable_polls"`
	LaunchAttempts    int           `yaml:"launch_attempts" json:"launch_attempts"`
}

// PolitenessConfig holds the randomised inter-item delay bounds
type PolitenessConfig struct {
	MinDelay time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	// MaxPerHour caps page loads per rolling hour; 0 means no cap
	MaxPerHour int `yaml:"max_per_hour" json:"max_per_hour"`
}

// HarvestConfig holds loop behaviour settings
type HarvestConfig struct {
	// MaxConsecutiveFailures abandons the remaining plan after this many
	// failures in a row; 0 disables the breaker
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	ErrorScreenshotsDir    string `yaml:"error_screenshots_dir" json:"error_screenshots_dir"`
}

// JournalConfig holds run history settings
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	JSON  bool   `yaml:"json" json:"json"`
}

// Settle modes
const (
	SettleFixed = "fixed"
	SettlePoll  = "poll"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Manifest: ManifestConfig{
			Path:    filepath.Join("data", "manifest.json"),
			IDField: "id",
		},
		Session: SessionConfig{
			Path:    filepath.Join("session", "session.json"),
			Encrypt: false,
		},
		Artifacts: ArtifactsConfig{
			Directory: "artifacts",
			Extension: ".html",
		},
		Target: TargetConfig{
			URLTemplate: "https://sellercentral.amazon.com/orders-v3/order/{id}",
			LoginURL:    "https://sellercentral.amazon.com",
		},
		Browser: BrowserConfig{
			Headless:          true,
			Stealth:           true,
			NavigationTimeout: 90 * time.Second,
			SettleMode:        SettleFixed,
			Settle:            5 * time.Second,
			PollInterval:      500 * time.Millisecond,
			StablePolls:       3,
			LaunchAttempts:    3,
		},
		Politeness: PolitenessConfig{
			MinDelay:   2 * time.Second,
			MaxDelay:   5 * time.Second,
			MaxPerHour: 0,
		},
		Harvest: HarvestConfig{
			MaxConsecutiveFailures: 5,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join("data", "journal.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from PAGEHARVEST_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("PAGEHARVEST_MANIFEST", &c.Manifest.Path)
	setString("PAGEHARVEST_ID_FIELD", &c.Manifest.IDField)
	setString("PAGEHARVEST_SESSION", &c.Session.Path)
	setBool("PAGEHARVEST_SESSION_ENCRYPT", &c.Session.Encrypt)
	setString("PAGEHARVEST_ARTIFACTS_DIR", &c.Artifacts.Directory)
	setString("PAGEHARVEST_URL_TEMPLATE", &c.Target.URLTemplate)
	setString("PAGEHARVEST_LOGIN_URL", &c.Target.LoginURL)
	setBool("PAGEHARVEST_HEADLESS", &c.Browser.Headless)
	setString("PAGEHARVEST_BROWSER_URL", &c.Browser.RemoteURL)
	setString("PAGEHARVEST_BROWSER_BIN", &c.Browser.Bin)
	setDuration("PAGEHARVEST_NAVIGATION_TIMEOUT", &c.Browser.NavigationTimeout)
	setDuration("PAGEHARVEST_SETTLE", &c.Browser.Settle)
	setDuration("PAGEHARVEST_MIN_DELAY", &c.Politeness.MinDelay)
	setDuration("PAGEHARVEST_MAX_DELAY", &c.Politeness.MaxDelay)
	setInt("PAGEHARVEST_MAX_FAILURES", &c.Harvest.MaxConsecutiveFailures)
	setString("PAGEHARVEST_JOURNAL", &c.Journal.Path)
	setString("PAGEHARVEST_LOG_LEVEL", &c.Logging.Level)
	setString("PAGEHARVEST_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".pageharvest.yaml",
		".pageharvest.yml",
		filepath.Join(home, ".config", "pageharvest", "config.yaml"),
		filepath.Join(home, ".config", "pageharvest", "config.yml"),
		filepath.Join(home, ".pageharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Manifest.Path == "" {
		errs = append(errs, errors.New("manifest path is required"))
	}
	if c.Manifest.IDField == "" {
		errs = append(errs, errors.New("manifest id field is required"))
	}
	if c.Session.Path == "" {
		errs = append(errs, errors.New("session path is required"))
	}
	if c.Artifacts.Directory == "" {
		errs = append(errs, errors.New("artifacts directory is required"))
	}
	if c.Artifacts.Extension != "" && !strings.HasPrefix(c.Artifacts.Extension, ".") {
		errs = append(errs, errors.New("artifacts extension must start with a dot"))
	}
	if !strings.Contains(c.Target.URLTemplate, "{id}") {
		errs = append(errs, errors.New("target url template must contain {id}"))
	}

	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Browser.Settle < 0 {
		errs = append(errs, errors.New("settle interval cannot be negative"))
	}
	switch c.Browser.SettleMode {
	case SettleFixed:
	case SettlePoll:
		if c.Browser.PollInterval <= 0 {
			errs = append(errs, errors.New("poll interval must be positive in poll settle mode"))
		}
		if c.Browser.StablePolls < 1 {
			errs = append(errs, errors.New("stable polls must be at least 1 in poll settle mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid settle mode %q (want %s or %s)", c.Browser.SettleMode, SettleFixed, SettlePoll))
	}
	if c.Browser.LaunchAttempts < 1 {
		errs = append(errs, errors.New("launch attempts must be at least 1"))
	}

	if c.Politeness.MinDelay < 0 {
		errs = append(errs, errors.New("minimum delay cannot be negative"))
	}
	if c.Politeness.MaxDelay < c.Politeness.MinDelay {
		errs = append(errs, errors.New("maximum delay must not be below minimum delay"))
	}
	if c.Politeness.MaxPerHour < 0 {
		errs = append(errs, errors.New("max per hour cannot be negative"))
	}

	if c.Harvest.MaxConsecutiveFailures < 0 {
		errs = append(errs, errors.New("max consecutive failures cannot be negative"))
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, errors.New("journal path is required when the journal is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["manifest"].(string); ok && v != "" {
		c.Manifest.Path = v
	}
	if v, ok := flags["id-field"].(string); ok && v != "" {
		c.Manifest.IDField = v
	}
	if v, ok := flags["session"].(string); ok && v != "" {
		c.Session.Path = v
	}
	if v, ok := flags["artifacts"].(string); ok && v != "" {
		c.Artifacts.Directory = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["max-failures"].(int); ok && v >= 0 {
		c.Harvest.MaxConsecutiveFailures = v
	}
	if v, ok := flags["no-journal"].(bool); ok && v {
		c.Journal.Enabled = false
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// ItemURL expands the URL template for one item id
func (c *Config) ItemURL(id string) string {
	return strings.ReplaceAll(c.Target.URLTemplate, "{id}", url.PathEscape(id))
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".pageharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
