package usdm

import (
	"context"
	"time"

	"futures-llm-agent/internal/common"
	"futures-llm-agent/internal/errs"

	"github.com/rs/zerolog/log"
)

// WithRetry runs op, retrying with the fixed backoff schedule
// (15s/30s/60s/120s, spec.md §7) as long as the returned error classifies
// as Transient. Business and Validation errors return immediately. Up to
// DefaultMaxRetryAttempts total attempts are made (the initial attempt
// plus DefaultMaxRetryAttempts-1 retries), for a total wall time of
// ~225s in the worst case.
func WithRetry(ctx context.Context, component string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < common.DefaultMaxRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !errs.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == common.DefaultMaxRetryAttempts-1 {
			break
		}

		delay := backoffFor(attempt)
		log.Warn().
			Err(lastErr).
			Str("component", component).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("transient error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return errs.Wrap(errs.KindTransientNetwork, component, "exhausted retry attempts", lastErr)
}

func backoffFor(attempt int) time.Duration {
	schedule := common.DefaultRetryBackoffSeconds
	if attempt >= len(schedule) {
		attempt = len(schedule) - 1
	}
	return time.Duration(schedule[attempt]) * time.Second
}
