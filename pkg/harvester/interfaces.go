package harvester

import (
	"context"
	"time"

	"pageharvest/internal/fetcher"
	"pageharvest/pkg/models"
)

// Browser is the narrow browser handle the harvester drives. Tests pass a
// fake; production code passes the rod backend from pkg/browser.
type Browser = fetcher.Browser

// Page is one isolated page opened by a Browser
type Page = fetcher.Page

// BrowserFactory launches or connects to a browser
type BrowserFactory func(ctx context.Context) (Browser, error)

// Reporter receives progress events for display
type Reporter interface {
	ItemStarted(index, total int, item models.WorkItem, url string)
	ItemFinished(index, total int, outcome models.ItemOutcome)
	Pausing(d time.Duration)
	Aborted(consecutiveFailures, remaining int)
}

// Journal persists run history
type Journal interface {
	StartRun(run RunInfo) error
	RecordItem(runID string, outcome models.ItemOutcome) error
	FinishRun(summary Summary) error
}

// RunInfo describes a run at start
type RunInfo struct {
	RunID        string
	StartedAt    time.Time
	ManifestPath string
	ManifestSize int
	PlanSize     int
}

type nopReporter struct{}

func (nopReporter) ItemStarted(int, int, models.WorkItem, string) {}
func (nopReporter) ItemFinished(int, int, models.ItemOutcome)     {}
func (nopReporter) Pausing(time.Duration)                         {}
func (nopReporter) Aborted(int, int)                              {}
