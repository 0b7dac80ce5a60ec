// Package browser is the go-rod backend for the harvester's Browser
// interface and for the interactive login capture.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"pageharvest/pkg/config"
	herrors "pageharvest/pkg/errors"
	"pageharvest/pkg/harvester"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/retry"
	"pageharvest/pkg/session"
)

// Options configure how Chrome is started
type Options struct {
	Headless  bool
	Stealth   bool
	RemoteURL string
	Bin       string
}

// OptionsFrom reads browser options from configuration
func OptionsFrom(cfg config.BrowserConfig) Options {
	return Options{
		Headless:  cfg.Headless,
		Stealth:   cfg.Stealth,
		RemoteURL: cfg.RemoteURL,
		Bin:       cfg.Bin,
	}
}

// Browser owns one Chrome process (or remote connection). Every page is
// opened in its own incognito context.
type Browser struct {
	opts     Options
	root     *rod.Browser
	launcher *launcher.Launcher
	logger   logger.Logger

	mu    sync.Mutex
	state map[*session.AuthContext]*session.StorageState
}

// Launch starts Chrome locally or connects to opts.RemoteURL
func Launch(ctx context.Context, opts Options, log logger.Logger) (*Browser, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "browser")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var wsURL string
	var l *launcher.Launcher

	if opts.RemoteURL != "" {
		wsURL = opts.RemoteURL
		log.WithField("url", wsURL).Info("Connecting to remote browser")
	} else {
		l = launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		wsURL = u
	}

	root := rod.New().ControlURL(wsURL)
	if err := root.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	logger.LogComponentStart(log, "browser", map[string]interface{}{
		"url":      wsURL,
		"remote":   opts.RemoteURL != "",
		"headless": opts.Headless,
		"stealth":  opts.Stealth,
	})

	return &Browser{
		opts:     opts,
		root:     root,
		launcher: l,
		logger:   log,
		state:    make(map[*session.AuthContext]*session.StorageState),
	}, nil
}

// Factory returns a harvester.BrowserFactory that retries the launch
func Factory(cfg *config.Config, log logger.Logger) harvester.BrowserFactory {
	return func(ctx context.Context) (harvester.Browser, error) {
		b, err := retry.Run(ctx, retry.LaunchPolicy(cfg.Browser.LaunchAttempts), log, "browser launch",
			func(ctx context.Context) (*Browser, error) {
				return Launch(ctx, OptionsFrom(cfg.Browser), log)
			})
		if err != nil {
			return nil, herrors.New(herrors.ErrorTypeBrowserLaunch, "cannot start browser", err)
		}
		return b, nil
	}
}

// NewPage opens an isolated page carrying the cookies and localStorage of auth
func (b *Browser) NewPage(ctx context.Context, auth *session.AuthContext) (harvester.Page, error) {
	state, err := b.decode(auth)
	if err != nil {
		return nil, err
	}

	incognito, err := b.root.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	if params := cookieParams(state.Cookies); len(params) > 0 {
		if err := incognito.SetCookies(params); err != nil {
			incognito.Close()
			return nil, fmt.Errorf("replay cookies: %w", err)
		}
	}

	var page *rod.Page
	if b.opts.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	script, err := localStorageScript(state.Origins)
	if err != nil {
		page.Close()
		incognito.Close()
		return nil, err
	}
	if script != "" {
		if _, err := page.EvalOnNewDocument(script); err != nil {
			page.Close()
			incognito.Close()
			return nil, fmt.Errorf("replay localStorage: %w", err)
		}
	}

	return &Page{page: page, context: incognito}, nil
}

// decode parses each AuthContext once
func (b *Browser) decode(auth *session.AuthContext) (*session.StorageState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state, ok := b.state[auth]; ok {
		return state, nil
	}
	state, err := session.Decode(auth)
	if err != nil {
		return nil, err
	}
	b.state[auth] = state
	return state, nil
}

// Close shuts the browser down
func (b *Browser) Close() error {
	var err error
	if b.root != nil {
		err = b.root.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
	reason := "closed"
	if err != nil {
		reason = err.Error()
	}
	logger.LogComponentStop(b.logger, "browser", reason)
	return err
}

// Page is a rod page inside its own incognito context
type Page struct {
	page    *rod.Page
	context *rod.Browser
}

// Navigate loads url and waits for DOMContentLoaded, bounded by ctx
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

// Content returns the rendered HTML
func (p *Page) Content(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// Screenshot captures the full page as PNG
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, nil)
}

// Close closes the page and disposes its browser context
func (p *Page) Close() error {
	err := p.page.Close()
	if cerr := p.context.Close(); err == nil {
		err = cerr
	}
	return err
}
