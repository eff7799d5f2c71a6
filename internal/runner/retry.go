package runner

import (
	"context"
	"time"

	"github.com/netloom/flowengine/pkg/models"
)

// attemptResult is what one device attempt produces, before validation.
type attemptResult struct {
	success bool
	data    map[string]any
	err     error
}

// runWithRetry drives up to retry.Attempts() calls to attempt, pausing
// retry.TimeBetweenRetries seconds between tries.
// A retry fires only when the attempt reports failure and validation does
// not reclassify it as success; the caller passes in an already-validated
// success flag via isSuccess so this function stays retry-policy-only.
//
// The run's stop flag is checked before every attempt, so a stop that lands
// during a retry wait takes effect once the wait ends, before the next
// attempt; only ctx cancellation cuts the wait itself short.
func runWithRetry(ctx context.Context, run *models.Run, retry models.RetryPolicy, attempt func(ctx context.Context) attemptResult, isSuccess func(attemptResult) bool) attemptResult {
	attempts := retry.Attempts()
	delay := time.Duration(retry.TimeBetweenRetries) * time.Second

	var last attemptResult
	for i := 0; i < attempts; i++ {
		if run.Stopped() {
			return attemptResult{success: false, err: errAborted}
		}
		last = attempt(ctx)
		if isSuccess(last) {
			return last
		}
		if i == attempts-1 {
			break
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attemptResult{success: false, err: ctx.Err()}
		case <-timer.C:
		}
	}
	return last
}
