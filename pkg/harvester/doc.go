// Package harvester drives the incremental harvest.
//
// A Pipeline loads the manifest and the saved session once, takes the run
// lock on the artifact directory, plans the items that still lack an
// artifact and hands that plan to a Harvester. The Harvester attempts each
// item strictly in order through internal/fetcher, pausing a random
// politeness delay between items (never after the last one).
//
// Failure policy:
//   - Startup problems (missing manifest or session, lock held, browser
//     launch) are returned as fatal errors before any item is attempted
//   - A failed item is logged, counted and skipped; it is not retried in
//     the same run and will be planned again next run
//   - After MaxConsecutiveFailures failures in a row the rest of the plan
//     is abandoned and the Summary is marked Aborted
//
// Usage:
//
//	p := harvester.NewPipeline(cfg, sessions, browser.Factory(cfg, log), log).
//	    WithReporter(progress).
//	    WithJournal(j)
//	report, err := p.Execute(ctx)
package harvester
