// Package retry retries transient startup steps such as launching or
// connecting to the browser, with exponential backoff and jitter.
//
// Page fetches are never retried within a run; a failed item is picked up
// by the next run instead.
//
//	b, err := retry.Run(ctx, retry.LaunchPolicy(3), log, "browser launch",
//		func(ctx context.Context) (*Browser, error) {
//			return Launch(ctx, opts, log)
//		})
package retry
