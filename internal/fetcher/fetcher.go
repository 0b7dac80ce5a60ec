package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pageharvest/pkg/config"
	herrors "pageharvest/pkg/errors"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/models"
	"pageharvest/pkg/ratelimit"
	"pageharvest/pkg/session"
)

const screenshotTimeout = 15 * time.Second

// Page is one isolated browser page bound to an auth context
type Page interface {
	Navigate(ctx context.Context, url string) error
	Content(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Browser opens isolated pages
type Browser interface {
	NewPage(ctx context.Context, auth *session.AuthContext) (Page, error)
	Close() error
}

// ArtifactWriter persists captured content
type ArtifactWriter interface {
	Write(id string, content []byte) error
}

// Settings control navigation and page synchronisation
type Settings struct {
	NavigationTimeout time.Duration
	SettleMode        string
	Settle            time.Duration
	PollInterval      time.Duration
	StablePolls       int
	ScreenshotDir     string
}

// SettingsFrom builds Settings from configuration
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		SettleMode:        cfg.Browser.SettleMode,
		Settle:            cfg.Browser.Settle,
		PollInterval:      cfg.Browser.PollInterval,
		StablePolls:       cfg.Browser.StablePolls,
		ScreenshotDir:     cfg.Harvest.ErrorScreenshotsDir,
	}
}

// Fetcher runs the open, navigate, settle, capture, write, close sequence
// for a single item
type Fetcher struct {
	browser  Browser
	store    ArtifactWriter
	urlFor   func(id string) string
	settings Settings
	sleep    ratelimit.Sleeper
	logger   logger.Logger
}

// New creates a Fetcher
func New(browser Browser, store ArtifactWriter, urlFor func(id string) string, settings Settings, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		browser:  browser,
		store:    store,
		urlFor:   urlFor,
		settings: settings,
		sleep:    ratelimit.Sleep,
		logger:   log,
	}
}

// WithSleeper replaces the settle sleep, for tests
func (f *Fetcher) WithSleeper(s ratelimit.Sleeper) *Fetcher {
	f.sleep = s
	return f
}

// URL returns the detail page address for id
func (f *Fetcher) URL(id string) string {
	return f.urlFor(id)
}

// Fetch harvests one item. The returned outcome is always terminal; err is
// the typed per-item failure, if any.
func (f *Fetcher) Fetch(ctx context.Context, item models.WorkItem, auth *session.AuthContext) (models.ItemOutcome, error) {
	start := time.Now()
	outcome := models.ItemOutcome{
		ItemID: item.ID,
		URL:    f.urlFor(item.ID),
		State:  models.StateFetching,
		At:     start,
	}
	log := f.logger.WithField("item_id", item.ID)

	size, err := f.fetch(ctx, item.ID, outcome.URL, auth, log)

	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.State = models.StateFailed
		outcome.ErrorType = string(herrors.TypeOf(err))
		outcome.Error = err.Error()
		return outcome, err
	}

	outcome.State = models.StateSucceeded
	outcome.Bytes = size
	return outcome, nil
}

func (f *Fetcher) fetch(ctx context.Context, id, url string, auth *session.AuthContext, log logger.Logger) (size int, err error) {
	page, err := f.browser.NewPage(ctx, auth)
	if err != nil {
		return 0, herrors.ForItem(herrors.ErrorTypeNavigation, id, "failed to open page", err)
	}
	defer func() {
		if err != nil {
			f.screenshot(ctx, id, page, log)
		}
		if cerr := page.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close page")
		}
	}()

	if err := f.navigate(ctx, page, id, url); err != nil {
		return 0, err
	}

	if err := f.settle(ctx, page); err != nil {
		return 0, herrors.ForItem(herrors.ErrorTypeCapture, id, "interrupted while settling", err)
	}

	content, err := page.Content(ctx)
	if err != nil {
		return 0, herrors.ForItem(herrors.ErrorTypeCapture, id, "failed to capture content", err)
	}

	if err := f.store.Write(id, []byte(content)); err != nil {
		if herrors.TypeOf(err) == herrors.ErrorTypeWrite {
			return 0, err
		}
		return 0, herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to write artifact", err)
	}

	log.DebugWithFields("Artifact written", map[string]interface{}{"bytes": len(content)})
	return len(content), nil
}

// navigate bounds the page load by the navigation timeout
func (f *Fetcher) navigate(ctx context.Context, page Page, id, url string) error {
	navCtx := ctx
	if f.settings.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, f.settings.NavigationTimeout)
		defer cancel()
	}

	err := page.Navigate(navCtx, url)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && navCtx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("%w after %s: %v", context.DeadlineExceeded, f.settings.NavigationTimeout, err)
	}
	return herrors.NavigationFailure(id, err)
}

// settle waits for client-side rendering to finish
func (f *Fetcher) settle(ctx context.Context, page Page) error {
	if f.settings.SettleMode != config.SettlePoll {
		return f.sleep(ctx, f.settings.Settle)
	}

	interval := f.settings.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	need := f.settings.StablePolls
	if need <= 0 {
		need = 1
	}
	maxPolls := int(f.settings.Settle / interval)
	if maxPolls < need {
		maxPolls = need
	}

	previous, err := page.Content(ctx)
	if err != nil {
		return err
	}
	stable := 0
	for i := 0; i < maxPolls && stable < need; i++ {
		if err := f.sleep(ctx, interval); err != nil {
			return err
		}
		current, err := page.Content(ctx)
		if err != nil {
			return err
		}
		if current == previous {
			stable++
		} else {
			stable = 0
			previous = current
		}
	}
	return nil
}

// screenshot saves the failed page for later inspection, best effort
func (f *Fetcher) screenshot(ctx context.Context, id string, page Page, log logger.Logger) {
	if f.settings.ScreenshotDir == "" {
		return
	}

	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	png, err := page.Screenshot(shotCtx)
	if err != nil {
		log.WithError(err).Warn("Failed to take error screenshot")
		return
	}
	if err := os.MkdirAll(f.settings.ScreenshotDir, 0755); err != nil {
		log.WithError(err).Warn("Failed to create screenshot directory")
		return
	}
	path := filepath.Join(f.settings.ScreenshotDir, id+".png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		log.WithError(err).Warn("Failed to save error screenshot")
		return
	}
	log.WithField("path", path).Info("Error screenshot saved")
}
