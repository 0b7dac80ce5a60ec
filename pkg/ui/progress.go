package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"pageharvest/pkg/harvester"
	"pageharvest/pkg/models"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// Progress prints one line per harvest event. It implements
// harvester.Reporter.
type Progress struct {
	mu        sync.Mutex
	out       io.Writer
	verbose   bool
	startTime time.Time
	done      int
	succeeded int
	failed    int
	bytes     int64
}

var _ harvester.Reporter = (*Progress)(nil)

// NewProgress creates a reporter writing to out
func NewProgress(out io.Writer, verbose bool) *Progress {
	return &Progress{
		out:       out,
		verbose:   verbose,
		startTime: time.Now(),
	}
}

// ItemStarted prints the navigation line
func (p *Progress) ItemStarted(index, total int, item models.WorkItem, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s Navigating to %s\n", Cyan(fmt.Sprintf("[%d/%d]", index, total)), url)
}

// ItemFinished prints the item outcome and the batch bar
func (p *Progress) ItemFinished(index, total int, outcome models.ItemOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	switch outcome.State {
	case models.StateSucceeded:
		p.succeeded++
		p.bytes += int64(outcome.Bytes)
		fmt.Fprintf(p.out, "  %s %s saved (%s, %s)\n",
			Green("✓"), outcome.ItemID, FormatBytes(int64(outcome.Bytes)), outcome.Duration.Round(time.Millisecond))
	default:
		p.failed++
		reason := outcome.ErrorType
		if p.verbose && outcome.Error != "" {
			reason = outcome.Error
		}
		fmt.Fprintf(p.out, "  %s %s failed: %s\n", Red("✗"), outcome.ItemID, reason)
	}

	if p.verbose {
		fmt.Fprintf(p.out, "  %s\n", Dim(Bar(index, total)))
	}
}

// Pausing announces the politeness delay
func (p *Progress) Pausing(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "  %s\n", Dim(fmt.Sprintf("Pausing for %.1fs", d.Seconds())))
}

// Aborted prints the circuit breaker line
func (p *Progress) Aborted(consecutiveFailures, remaining int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s\n", Red(fmt.Sprintf(
		"Stopping after %d consecutive failures, %d items left for the next run", consecutiveFailures, remaining)))
}

// Counts returns succeeded and failed totals seen so far
func (p *Progress) Counts() (succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.succeeded, p.failed
}

// Rate returns items finished per minute
func (p *Progress) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime).Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(p.done) / elapsed
}

// Bar renders a fixed width progress bar for done out of total
func Bar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = done * barWidth / total
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

// FormatBytes formats bytes in human-readable form
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
