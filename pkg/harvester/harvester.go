package harvester

import (
	"context"
	"time"

	"pageharvest/internal/fetcher"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/models"
	"pageharvest/pkg/ratelimit"
	"pageharvest/pkg/session"
)

// Summary reports what a run did
type Summary struct {
	RunID     string           `json:"run_id"`
	Planned   int              `json:"planned"`
	Attempted int              `json:"attempted"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Aborted   bool             `json:"aborted"`
	Cancelled bool             `json:"cancelled"`
	Remaining int              `json:"remaining"`
	Failures  []models.Failure `json:"failures,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
}

// Duration is the wall time of the run
func (s Summary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Options tune the loop
type Options struct {
	RunID string
	// MaxConsecutiveFailures abandons the plan after this many failures in a
	// row; 0 disables
	MaxConsecutiveFailures int
	Jitter                 *ratelimit.Jitter
	Limiter                ratelimit.Limiter
	Reporter               Reporter
	Journal                Journal
}

// Harvester fetches a plan one item at a time
type Harvester struct {
	fetcher *fetcher.Fetcher
	opts    Options
	logger  logger.Logger
}

// New creates a Harvester around f
func New(f *fetcher.Fetcher, opts Options, log logger.Logger) *Harvester {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Jitter == nil {
		opts.Jitter = ratelimit.NewJitter(0, 0)
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Harvester{fetcher: f, opts: opts, logger: log}
}

// Run attempts every item of plan in order, strictly one at a time. Per-item
// failures are counted and skipped; the run stops early only on
// cancellation or when the consecutive failure breaker trips.
func (h *Harvester) Run(ctx context.Context, plan []models.WorkItem, auth *session.AuthContext) Summary {
	log := h.logger
	if h.opts.RunID != "" {
		log = log.WithField("run_id", h.opts.RunID)
	}

	summary := Summary{
		RunID:     h.opts.RunID,
		Planned:   len(plan),
		StartedAt: time.Now(),
	}
	total := len(plan)
	consecutive := 0

	for i, item := range plan {
		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.Remaining = total - i
			break
		}
		if err := h.opts.Limiter.Wait(ctx); err != nil {
			summary.Cancelled = true
			summary.Remaining = total - i
			break
		}

		itemLog := log.WithField("item_id", item.ID)
		h.opts.Reporter.ItemStarted(i+1, total, item, h.fetcher.URL(item.ID))
		itemLog.WithField("url", h.fetcher.URL(item.ID)).Debug("Fetching item")

		outcome, err := h.fetcher.Fetch(ctx, item, auth)
		summary.Attempted++
		if err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, models.Failure{
				ItemID:    item.ID,
				ErrorType: outcome.ErrorType,
				Reason:    err.Error(),
			})
			consecutive++
		} else {
			summary.Succeeded++
			consecutive = 0
		}
		logger.LogItemOutcome(log, item.ID, err == nil, outcome.Duration, err)

		if h.opts.Journal != nil {
			if jerr := h.opts.Journal.RecordItem(h.opts.RunID, outcome); jerr != nil {
				itemLog.WithError(jerr).Warn("Failed to record item in journal")
			}
		}
		h.opts.Reporter.ItemFinished(i+1, total, outcome)

		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.Remaining = total - i - 1
			break
		}
		if i == total-1 {
			break
		}

		if h.opts.MaxConsecutiveFailures > 0 && consecutive >= h.opts.MaxConsecutiveFailures {
			summary.Aborted = true
			summary.Remaining = total - i - 1
			log.WarnWithFields("Too many consecutive failures, abandoning remaining items", map[string]interface{}{
				"consecutive_failures": consecutive,
				"remaining":            summary.Remaining,
			})
			h.opts.Reporter.Aborted(consecutive, summary.Remaining)
			break
		}

		delay := h.opts.Jitter.Next()
		h.opts.Reporter.Pausing(delay)
		if err := h.opts.Jitter.Sleep(ctx, delay); err != nil {
			summary.Cancelled = true
			summary.Remaining = total - i - 1
			break
		}
	}

	summary.EndedAt = time.Now()

	log.InfoWithFields("Run finished", map[string]interface{}{
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"aborted":   summary.Aborted,
		"cancelled": summary.Cancelled,
		"remaining": summary.Remaining,
	})
	return summary
}
