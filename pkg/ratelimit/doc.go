// Package ratelimit paces page loads against the remote application.
//
// Two mechanisms are provided:
//
// Jitter:
//   - Draws a uniformly random delay in [min, max] between items
//   - The sleep is injectable so tests never wait in real time
//
// Sliding Window:
//   - Tracks requests within a moving time window
//   - Used as an optional hard cap on page loads per hour
//
// Usage:
//
//	jitter := ratelimit.NewJitter(2*time.Second, 5*time.Second)
//	limiter := ratelimit.PerHour(cfg.Politeness.MaxPerHour)
//
//	for i, item := range plan {
//	    if err := limiter.Wait(ctx); err != nil {
//	        return err
//	    }
//	    fetch(item)
//	    if i < len(plan)-1 {
//	        d := jitter.Next()
//	        reporter.Pausing(d)
//	        if err := jitter.Sleep(ctx, d); err != nil {
//	            return err
//	        }
//	    }
//	}
package ratelimit
