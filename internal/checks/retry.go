package checks

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"uplight/internal/storage"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds WithRetry. Timeout applies to each attempt.
type RetryPolicy struct {
	Timeout      time.Duration
	MaxRetries   int
	InitialDelay time.Duration
}

// Markers of transient network errors, matched case-insensitively.
var retriableMarkers = []string{
	"econnreset",
	"econnrefused",
	"etimedout",
	"fetch failed",
	"network",
	"dns",
	"connection reset",
	"connection refused",
	"no such host",
	"i/o timeout",
}

// IsRetriable reports whether another attempt might turn r into a success.
// Timeouts always are; errors only when the message names a transient
// network fault; failures never.
func IsRetriable(r Result) bool {
	switch r.Outcome {
	case storage.OutcomeTimeout:
		return true
	case storage.OutcomeError:
		msg := strings.ToLower(r.ErrorMessage)
		for _, marker := range retriableMarkers {
			if strings.Contains(msg, marker) {
				return true
			}
		}
	}
	return false
}

// BackoffDelay returns the wait before the given attempt (1-based):
// initial * 2^(attempt-1) plus up to 10% jitter.
func BackoffDelay(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := initial << (attempt - 1)
	if jitter := int64(delay / 10); jitter > 0 {
		delay += time.Duration(rand.Int64N(jitter + 1))
	}
	return delay
}

// WithRetry runs probe once, then up to MaxRetries more times while the
// result is retriable. The returned RetryCount is the number of extra attempts.
func WithRetry(ctx context.Context, policy RetryPolicy, probe func(ctx context.Context) Result) Result {
	var result Result

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := BackoffDelay(policy.InitialDelay, attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				result.RetryCount = attempt - 1
				return result
			case <-timer.C:
			}
		}

		result = runAttempt(ctx, policy.Timeout, probe)
		result.RetryCount = attempt

		if result.Outcome == storage.OutcomeSuccess || !IsRetriable(result) {
			return result
		}

		if attempt < policy.MaxRetries {
			log.Debug().
				Int64("monitor_id", result.MonitorID).
				Str("outcome", string(result.Outcome)).
				Int("attempt", attempt+1).
				Str("error", result.ErrorMessage).
				Msg("Retrying probe")
		}
	}

	return result
}

func runAttempt(ctx context.Context, timeout time.Duration, probe func(ctx context.Context) Result) Result {
	if timeout <= 0 {
		return probe(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return probe(attemptCtx)
}
