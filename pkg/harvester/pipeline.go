package harvester

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pageharvest/internal/fetcher"
	"pageharvest/pkg/config"
	herrors "pageharvest/pkg/errors"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/manifest"
	"pageharvest/pkg/models"
	"pageharvest/pkg/planner"
	"pageharvest/pkg/ratelimit"
	"pageharvest/pkg/session"
	"pageharvest/pkg/storage"
)

// Report is the result of one pipeline execution
type Report struct {
	RunID        string
	Outcome      planner.Outcome
	ManifestSize int
	Plan         []models.WorkItem
	DryRun       bool
	// Summary is nil when nothing was fetched
	Summary *Summary
}

// Pipeline wires the harvest end to end: load manifest and session, plan
// against the artifact store, launch the browser and run the loop
type Pipeline struct {
	cfg      *config.Config
	sessions session.Store
	manifest *manifest.Manifest
	launch   BrowserFactory
	reporter Reporter
	journal  Journal
	jitter   *ratelimit.Jitter
	settle   ratelimit.Sleeper
	logger   logger.Logger
}

// NewPipeline creates a pipeline for cfg
func NewPipeline(cfg *config.Config, sessions session.Store, launch BrowserFactory, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{
		cfg:      cfg,
		sessions: sessions,
		manifest: manifest.New(cfg.Manifest, log),
		launch:   launch,
		reporter: nopReporter{},
		jitter:   ratelimit.NewJitter(cfg.Politeness.MinDelay, cfg.Politeness.MaxDelay),
		logger:   log,
	}
}

// WithReporter sets the progress reporter
func (p *Pipeline) WithReporter(r Reporter) *Pipeline {
	if r != nil {
		p.reporter = r
	}
	return p
}

// WithJournal enables run history
func (p *Pipeline) WithJournal(j Journal) *Pipeline {
	p.journal = j
	return p
}

// WithJitter replaces the politeness delay source
func (p *Pipeline) WithJitter(j *ratelimit.Jitter) *Pipeline {
	p.jitter = j
	return p
}

// WithSettleSleeper replaces the settle wait, for tests
func (p *Pipeline) WithSettleSleeper(s ratelimit.Sleeper) *Pipeline {
	p.settle = s
	return p
}

// Plan loads inputs and computes pending work without fetching
func (p *Pipeline) Plan(ctx context.Context) (*Report, error) {
	return p.execute(ctx, true)
}

// Execute runs the full harvest
func (p *Pipeline) Execute(ctx context.Context) (*Report, error) {
	return p.execute(ctx, false)
}

func (p *Pipeline) execute(ctx context.Context, dryRun bool) (*Report, error) {
	runID := uuid.NewString()
	log := p.logger.WithField("run_id", runID)

	items, err := p.manifest.Load()
	if err != nil {
		return nil, err
	}

	// A dry run only reads the manifest and the artifact directory
	var auth *session.AuthContext
	if !dryRun {
		if auth, err = p.sessions.Load(); err != nil {
			return nil, err
		}
	}

	store, err := storage.NewArtifactStore(p.cfg.Artifacts)
	if err != nil {
		return nil, herrors.New(herrors.ErrorTypeWrite, "cannot open artifact directory", err)
	}

	if !dryRun {
		lock, err := store.AcquireRunLock()
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.WithError(err).Warn("Failed to release run lock")
			}
		}()

		if n, err := store.RemoveStaleTemp(); err != nil {
			log.WithError(err).Warn("Failed to clean partial artifacts")
		} else if n > 0 {
			log.WithField("removed", n).Info("Removed partial artifacts from an interrupted run")
		}
	}

	plan := planner.Plan(items, store)
	report := &Report{
		RunID:        runID,
		Outcome:      planner.Classify(len(items), len(plan)),
		ManifestSize: len(items),
		Plan:         plan,
		DryRun:       dryRun,
	}

	log.InfoWithFields("Plan computed", map[string]interface{}{
		"manifest_items": len(items),
		"pending":        len(plan),
		"harvested":      len(items) - len(plan),
	})

	if dryRun || report.Outcome != planner.OutcomeWork {
		if msg := report.Outcome.Message(); msg != "" {
			log.Info(msg)
		}
		return report, nil
	}

	browser, err := p.launch(ctx)
	if err != nil {
		if herrors.TypeOf(err) == herrors.ErrorTypeBrowserLaunch {
			return nil, err
		}
		return nil, herrors.New(herrors.ErrorTypeBrowserLaunch, "failed to start browser", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser")
		}
	}()

	if p.journal != nil {
		if err := p.journal.StartRun(RunInfo{
			RunID:        runID,
			StartedAt:    time.Now(),
			ManifestPath: p.manifest.Path(),
			ManifestSize: len(items),
			PlanSize:     len(plan),
		}); err != nil {
			log.WithError(err).Warn("Failed to record run start in journal")
		}
	}

	f := fetcher.New(browser, store, p.cfg.ItemURL, fetcher.SettingsFrom(p.cfg), log)
	if p.settle != nil {
		f.WithSleeper(p.settle)
	}

	h := New(f, Options{
		RunID:                  runID,
		MaxConsecutiveFailures: p.cfg.Harvest.MaxConsecutiveFailures,
		Jitter:                 p.jitter,
		Limiter:                ratelimit.PerHour(p.cfg.Politeness.MaxPerHour),
		Reporter:               p.reporter,
		Journal:                p.journal,
	}, p.logger)

	summary := h.Run(ctx, plan, auth)
	report.Summary = &summary

	if p.journal != nil {
		if err := p.journal.FinishRun(summary); err != nil {
			log.WithError(err).Warn("Failed to record run summary in journal")
		}
	}

	return report, nil
}
