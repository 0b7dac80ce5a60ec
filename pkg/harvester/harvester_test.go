package harvester

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pageharvest/internal/fetcher"
	"pageharvest/pkg/config"
	herrors "pageharvest/pkg/errors"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/models"
	"pageharvest/pkg/planner"
	"pageharvest/pkg/ratelimit"
	"pageharvest/pkg/session"
	"pageharvest/pkg/storage"
)

const urlPrefix = "https://app.example.com/orders/"

// fakeBrowser serves pages whose behaviour depends on the navigated id
type fakeBrowser struct {
	mu        sync.Mutex
	failIDs   map[string]bool
	hangIDs   map[string]bool
	opened    int
	closed    int
	active    int
	maxActive int
	navigated []string
	onNav     func(id string)
}

func newFakeBrowser(failIDs ...string) *fakeBrowser {
	b := &fakeBrowser{failIDs: map[string]bool{}, hangIDs: map[string]bool{}}
	for _, id := range failIDs {
		b.failIDs[id] = true
	}
	return b
}

func (b *fakeBrowser) NewPage(ctx context.Context, auth *session.AuthContext) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}
	return &fakePage{browser: b}, nil
}

func (b *fakeBrowser) Close() error { return nil }

type fakePage struct {
	browser *fakeBrowser
	id      string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.id = strings.TrimPrefix(url, urlPrefix)
	p.browser.mu.Lock()
	p.browser.navigated = append(p.browser.navigated, p.id)
	fail, hang, onNav := p.browser.failIDs[p.id], p.browser.hangIDs[p.id], p.browser.onNav
	p.browser.mu.Unlock()

	if onNav != nil {
		onNav(p.id)
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("net::ERR_ABORTED")
	}
	return nil
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	return "<html>" + p.id + "</html>", nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Close() error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	p.browser.closed++
	p.browser.active--
	return nil
}

type recordingReporter struct {
	started []string
	pauses  []time.Duration
	aborted bool
}

func (r *recordingReporter) ItemStarted(i, n int, item models.WorkItem, url string) {
	r.started = append(r.started, item.ID)
}
func (r *recordingReporter) ItemFinished(int, int, models.ItemOutcome) {}
func (r *recordingReporter) Pausing(d time.Duration)                   { r.pauses = append(r.pauses, d) }
func (r *recordingReporter) Aborted(int, int)                          { r.aborted = true }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func planOf(ids ...string) []models.WorkItem {
	out := make([]models.WorkItem, len(ids))
	for i, id := range ids {
		out[i] = models.WorkItem{ID: id}
	}
	return out
}

func newStore(t *testing.T) *storage.ArtifactStore {
	t.Helper()
	store, err := storage.NewArtifactStore(config.ArtifactsConfig{Directory: t.TempDir(), Extension: ".html"})
	require.NoError(t, err)
	return store
}

func newHarvester(b Browser, store fetcher.ArtifactWriter, opts Options, s fetcher.Settings) *Harvester {
	f := fetcher.New(b, store, func(id string) string { return urlPrefix + id }, s, logger.NewNopLogger()).
		WithSleeper(noSleep)
	if opts.Jitter == nil {
		opts.Jitter = ratelimit.NewJitter(2*time.Second, 5*time.Second).WithSleeper(noSleep)
	}
	return New(f, opts, logger.NewNopLogger())
}

var testAuth = session.NewAuthContext([]byte(`{"cookies":[],"origins":[]}`), "test")

func TestRunPartialFailureIsolation(t *testing.T) {
	store := newStore(t)
	browser := newFakeBrowser("B")

	summary := newHarvester(browser, store, Options{}, fetcher.Settings{}).
		Run(context.Background(), planOf("A", "B", "C"), testAuth)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Aborted)
	assert.Equal(t, 0, summary.Remaining)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "B", summary.Failures[0].ItemID)
	assert.Equal(t, "navigation", summary.Failures[0].ErrorType)

	assert.True(t, store.Exists("A"))
	assert.False(t, store.Exists("B"))
	assert.True(t, store.Exists("C"))
}

func TestRunLogsEachItemUnderItsID(t *testing.T) {
	store := newStore(t)
	f := fetcher.New(newFakeBrowser("B"), store, func(id string) string { return urlPrefix + id }, fetcher.Settings{}, logger.NewNopLogger()).
		WithSleeper(noSleep)
	tl := logger.NewTestLogger()
	h := New(f, Options{RunID: "run-1", Jitter: ratelimit.NewJitter(0, 0).WithSleeper(noSleep)}, tl)

	h.Run(context.Background(), planOf("A", "B"), testAuth)

	assert.Equal(t, []string{"Fetching item", "Item harvested"}, tl.ItemMessages("A"))
	assert.Equal(t, []string{"Fetching item", "Item failed"}, tl.ItemMessages("B"))
	require.True(t, tl.HasMessage("Run finished"), tl.String())
	assert.Equal(t, "run-1", tl.EntriesAt("ERROR")[0].Fields["run_id"])
}

func TestRunStrictOrderNeverConcurrent(t *testing.T) {
	browser := newFakeBrowser()
	reporter := &recordingReporter{}

	newHarvester(browser, newStore(t), Options{Reporter: reporter}, fetcher.Settings{}).
		Run(context.Background(), planOf("E", "A", "D", "B"), testAuth)

	assert.Equal(t, []string{"E", "A", "D", "B"}, browser.navigated)
	assert.Equal(t, []string{"E", "A", "D", "B"}, reporter.started)
	assert.Equal(t, 1, browser.maxActive)
	assert.Equal(t, browser.opened, browser.closed, "every page must be closed")
}

func TestRunDelayNeverAfterLastAndWithinBounds(t *testing.T) {
	reporter := &recordingReporter{}
	var slept []time.Duration
	jitter := ratelimit.NewJitter(2*time.Second, 5*time.Second).WithSleeper(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	newHarvester(newFakeBrowser("B"), newStore(t), Options{Reporter: reporter, Jitter: jitter}, fetcher.Settings{}).
		Run(context.Background(), planOf("A", "B", "C"), testAuth)

	require.Len(t, slept, 2, "a delay follows every item but the last, failed or not")
	assert.Equal(t, slept, reporter.pauses)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestRunSingleItemHasNoDelay(t *testing.T) {
	reporter := &recordingReporter{}
	newHarvester(newFakeBrowser(), newStore(t), Options{Reporter: reporter}, fetcher.Settings{}).
		Run(context.Background(), planOf("A"), testAuth)
	assert.Empty(t, reporter.pauses)
}

func TestRunCircuitBreaker(t *testing.T) {
	browser := newFakeBrowser("A", "B", "C", "D", "E", "F")
	reporter := &recordingReporter{}

	summary := newHarvester(browser, newStore(t), Options{MaxConsecutiveFailures: 3, Reporter: reporter}, fetcher.Settings{}).
		Run(context.Background(), planOf("A", "B", "C", "D", "E", "F", "G"), testAuth)

	assert.True(t, summary.Aborted)
	assert.True(t, reporter.aborted)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, 4, summary.Remaining)
	assert.Equal(t, []string{"A", "B", "C"}, browser.navigated)
}

func TestRunBreakerResetsOnSuccess(t *testing.T) {
	browser := newFakeBrowser("A", "B", "D", "E")

	summary := newHarvester(browser, newStore(t), Options{MaxConsecutiveFailures: 3}, fetcher.Settings{}).
		Run(context.Background(), planOf("A", "B", "C", "D", "E", "F"), testAuth)

	assert.False(t, summary.Aborted)
	assert.Equal(t, 6, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
}

func TestRunBreakerDisabled(t *testing.T) {
	browser := newFakeBrowser("A", "B", "C", "D", "E", "F", "G", "H")

	summary := newHarvester(browser, newStore(t), Options{MaxConsecutiveFailures: 0}, fetcher.Settings{}).
		Run(context.Background(), planOf("A", "B", "C", "D", "E", "F", "G", "H"), testAuth)

	assert.False(t, summary.Aborted)
	assert.Equal(t, 8, summary.Failed)
}

func TestRunNavigationTimeoutClassified(t *testing.T) {
	browser := newFakeBrowser()
	browser.hangIDs["SLOW"] = true

	summary := newHarvester(browser, newStore(t), Options{}, fetcher.Settings{NavigationTimeout: 10 * time.Millisecond}).
		Run(context.Background(), planOf("SLOW", "FAST"), testAuth)

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, string(herrors.ErrorTypeNavigationTimeout), summary.Failures[0].ErrorType)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, browser.opened, browser.closed)
}

func TestRunCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	browser := newFakeBrowser()
	browser.onNav = func(id string) {
		if id == "B" {
			cancel()
		}
	}

	summary := newHarvester(browser, newStore(t), Options{}, fetcher.Settings{}).
		Run(ctx, planOf("A", "B", "C", "D"), testAuth)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed, "the in-flight item counts as failed")
	assert.Equal(t, 2, summary.Remaining)
	assert.Equal(t, []string{"A", "B"}, browser.navigated)
}

func TestRunCancellationDuringLastItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	browser := newFakeBrowser()
	browser.hangIDs["B"] = true
	browser.onNav = func(id string) {
		if id == "B" {
			cancel()
		}
	}

	summary := newHarvester(browser, newStore(t), Options{}, fetcher.Settings{}).
		Run(ctx, planOf("A", "B"), testAuth)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Remaining)
}

type memJournal struct {
	started  []RunInfo
	items    []models.ItemOutcome
	finished []Summary
}

func (j *memJournal) StartRun(r RunInfo) error { j.started = append(j.started, r); return nil }
func (j *memJournal) RecordItem(runID string, o models.ItemOutcome) error {
	j.items = append(j.items, o)
	return nil
}
func (j *memJournal) FinishRun(s Summary) error { j.finished = append(j.finished, s); return nil }

// pipeline fixtures

type fixture struct {
	cfg      *config.Config
	browser  *fakeBrowser
	launches int
}

func newFixture(t *testing.T, manifestJSON string) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Manifest.Path = filepath.Join(dir, "manifest.json")
	cfg.Session.Path = filepath.Join(dir, "session", "session.json")
	cfg.Artifacts.Directory = filepath.Join(dir, "artifacts")
	cfg.Target.URLTemplate = urlPrefix + "{id}"
	cfg.Politeness.MinDelay = 0
	cfg.Politeness.MaxDelay = 0

	if manifestJSON != "" {
		require.NoError(t, os.WriteFile(cfg.Manifest.Path, []byte(manifestJSON), 0644))
	}
	require.NoError(t, session.NewFileStore(cfg.Session.Path).Save(testAuth))

	return &fixture{cfg: cfg, browser: newFakeBrowser()}
}

func (f *fixture) pipeline() *Pipeline {
	launch := func(ctx context.Context) (Browser, error) {
		f.launches++
		return f.browser, nil
	}
	return NewPipeline(f.cfg, session.NewFileStore(f.cfg.Session.Path), launch, logger.NewNopLogger()).
		WithJitter(ratelimit.NewJitter(0, 0).WithSleeper(noSleep)).
		WithSettleSleeper(noSleep)
}

func TestPipelineIdempotence(t *testing.T) {
	f := newFixture(t, `[{"id": "A"}, {"id": "B"}, {"id": "C"}]`)

	first, err := f.pipeline().Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first.Summary)
	assert.Equal(t, 3, first.Summary.Succeeded)

	second, err := f.pipeline().Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, planner.OutcomeAllHarvested, second.Outcome)
	assert.Nil(t, second.Summary)
	assert.Equal(t, 1, f.launches, "no browser when there is no work")
	assert.Len(t, f.browser.navigated, 3)
}

func TestPipelineResumesFailedItems(t *testing.T) {
	f := newFixture(t, `[{"id": "A"}, {"id": "B"}, {"id": "C"}]`)
	f.browser.failIDs["B"] = true

	first, err := f.pipeline().Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Summary.Failed)

	f.browser.failIDs = map[string]bool{}
	second, err := f.pipeline().Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.WorkItem{{ID: "B"}}, second.Plan)
	assert.Equal(t, 1, second.Summary.Succeeded)
}

func TestPipelineZeroWorkOutcomes(t *testing.T) {
	f := newFixture(t, `[]`)
	report, err := f.pipeline().Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, planner.OutcomeEmptyManifest, report.Outcome)
	assert.Equal(t, 0, f.launches)
}

func TestPipelineFatalStartupErrors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		f := newFixture(t, "")
		_, err := f.pipeline().Execute(context.Background())
		assert.True(t, errors.Is(err, herrors.ErrMissingManifest))
	})

	t.Run("missing session", func(t *testing.T) {
		f := newFixture(t, `[{"id": "A"}]`)
		require.NoError(t, os.Remove(f.cfg.Session.Path))
		_, err := f.pipeline().Execute(context.Background())
		assert.True(t, errors.Is(err, herrors.ErrMissingSession))
		assert.Equal(t, 0, f.launches)
	})

	t.Run("browser launch", func(t *testing.T) {
		f := newFixture(t, `[{"id": "A"}]`)
		p := NewPipeline(f.cfg, session.NewFileStore(f.cfg.Session.Path), func(ctx context.Context) (Browser, error) {
			return nil, errors.New("chrome not found")
		}, logger.NewNopLogger())
		_, err := p.Execute(context.Background())
		assert.True(t, errors.Is(err, herrors.ErrBrowserLaunch))
		assert.True(t, herrors.IsFatalError(err))
	})

	t.Run("run lock held", func(t *testing.T) {
		f := newFixture(t, `[{"id": "A"}]`)
		store, err := storage.NewArtifactStore(f.cfg.Artifacts)
		require.NoError(t, err)
		lock, err := store.AcquireRunLock()
		require.NoError(t, err)
		defer lock.Release()

		_, err = f.pipeline().Execute(context.Background())
		assert.True(t, errors.Is(err, herrors.ErrRunInProgress))
	})
}

func TestPipelineDryRunFetchesNothing(t *testing.T) {
	f := newFixture(t, `[{"id": "A"}, {"id": "B"}]`)

	report, err := f.pipeline().Plan(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Len(t, report.Plan, 2)
	assert.Equal(t, 0, f.launches)
}

func TestPipelineDryRunNeedsNoSession(t *testing.T) {
	f := newFixture(t, `[{"id": "A"}]`)
	require.NoError(t, os.Remove(f.cfg.Session.Path))

	report, err := f.pipeline().Plan(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Plan, 1)
}

func TestPipelineJournal(t *testing.T) {
	f := newFixture(t, `[{"id": "A"}, {"id": "B"}]`)
	f.browser.failIDs["A"] = true
	j := &memJournal{}

	report, err := f.pipeline().WithJournal(j).Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, j.started, 1)
	assert.Equal(t, report.RunID, j.started[0].RunID)
	assert.Equal(t, 2, j.started[0].PlanSize)
	assert.Len(t, j.items, 2)
	require.Len(t, j.finished, 1)
	assert.Equal(t, report.RunID, j.finished[0].RunID)
}

func TestPipelineCleansInterruptedWrites(t *testing.T) {
	f := newFixture(t, `[{"id": "A"}]`)
	partialDir := filepath.Join(f.cfg.Artifacts.Directory, storage.PartialDirName)
	require.NoError(t, os.MkdirAll(partialDir, 0755))
	partial := filepath.Join(partialDir, "A.html.1234")
	require.NoError(t, os.WriteFile(partial, []byte("<html>"), 0644))

	report, err := f.pipeline().Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Succeeded)

	_, statErr := os.Stat(partial)
	assert.True(t, os.IsNotExist(statErr))
	content, err := os.ReadFile(filepath.Join(f.cfg.Artifacts.Directory, "A.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>A</html>", string(content))
}
