package checks

import (
	"context"
	"testing"
	"time"

	"uplight/internal/storage"
)

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		expected bool
	}{
		{"timeout is always retriable", Result{Outcome: storage.OutcomeTimeout}, true},
		{"ECONNRESET error is retriable", Result{Outcome: storage.OutcomeError, ErrorMessage: "ECONNRESET"}, true},
		{"refused connection is retriable", Result{Outcome: storage.OutcomeError, ErrorMessage: "Connection refused: dial tcp"}, true},
		{"DNS error is retriable", Result{Outcome: storage.OutcomeError, ErrorMessage: "DNS resolution failed for example.com"}, true},
		{"fetch failed is retriable", Result{Outcome: storage.OutcomeError, ErrorMessage: "fetch failed"}, true},
		{"unknown error is terminal", Result{Outcome: storage.OutcomeError, ErrorMessage: "invalid content-type"}, false},
		{"failure is terminal", Result{Outcome: storage.OutcomeFailure, ErrorMessage: "network"}, false},
		{"success is not retried", Result{Outcome: storage.OutcomeSuccess}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetriable(tt.result); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	initial := 100 * time.Millisecond
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond} {
		for i := 0; i < 20; i++ {
			delay := BackoffDelay(initial, attempt)
			if delay < base || delay > base+base/10 {
				t.Fatalf("Attempt %d: expected delay in [%v, %v], got %v", attempt, base, base+base/10, delay)
			}
		}
	}
}

func TestWithRetry(t *testing.T) {
	policy := RetryPolicy{Timeout: time.Second, MaxRetries: 3, InitialDelay: time.Millisecond}

	t.Run("First-attempt success runs once", func(t *testing.T) {
		calls := 0
		result := WithRetry(context.Background(), policy, func(ctx context.Context) Result {
			calls++
			return Result{Outcome: storage.OutcomeSuccess}
		})
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
		if result.RetryCount != 0 {
			t.Errorf("Expected retry count 0, got %d", result.RetryCount)
		}
	})

	t.Run("Retriable outcome exhausts at most maxRetries+1 attempts", func(t *testing.T) {
		calls := 0
		result := WithRetry(context.Background(), policy, func(ctx context.Context) Result {
			calls++
			return Result{Outcome: storage.OutcomeTimeout, Cause: storage.CauseTimeout}
		})
		if calls != 4 {
			t.Errorf("Expected 4 calls, got %d", calls)
		}
		if result.RetryCount != 3 {
			t.Errorf("Expected retry count 3, got %d", result.RetryCount)
		}
		if result.Outcome != storage.OutcomeTimeout {
			t.Errorf("Expected last outcome to be returned, got %s", result.Outcome)
		}
	})

	t.Run("Recovery stops retrying", func(t *testing.T) {
		calls := 0
		result := WithRetry(context.Background(), policy, func(ctx context.Context) Result {
			calls++
			if calls < 3 {
				return Result{Outcome: storage.OutcomeError, ErrorMessage: "ECONNRESET"}
			}
			return Result{Outcome: storage.OutcomeSuccess}
		})
		if calls != 3 {
			t.Errorf("Expected 3 calls, got %d", calls)
		}
		if result.RetryCount != 2 || result.Outcome != storage.OutcomeSuccess {
			t.Errorf("Expected success after 2 retries, got %s after %d", result.Outcome, result.RetryCount)
		}
	})

	t.Run("Non-retriable outcome stops immediately", func(t *testing.T) {
		calls := 0
		WithRetry(context.Background(), policy, func(ctx context.Context) Result {
			calls++
			return Result{Outcome: storage.OutcomeFailure, Cause: storage.CauseHTTP5xx}
		})
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
	})

	t.Run("Each attempt gets its own deadline", func(t *testing.T) {
		short := RetryPolicy{Timeout: 20 * time.Millisecond, MaxRetries: 0}
		WithRetry(context.Background(), short, func(ctx context.Context) Result {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Error("Expected attempt context to carry a deadline")
			} else if time.Until(deadline) > 20*time.Millisecond {
				t.Errorf("Expected deadline within 20ms, got %v", time.Until(deadline))
			}
			return Result{Outcome: storage.OutcomeSuccess}
		})
	})

	t.Run("Cancelled context ends the backoff wait", func(t *testing.T) {
		slow := RetryPolicy{Timeout: time.Second, MaxRetries: 3, InitialDelay: time.Hour}
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		done := make(chan Result)
		go func() {
			done <- WithRetry(ctx, slow, func(ctx context.Context) Result {
				calls++
				return Result{Outcome: storage.OutcomeTimeout}
			})
		}()
		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case result := <-done:
			if calls != 1 || result.RetryCount != 0 {
				t.Errorf("Expected a single attempt, got %d calls and retry count %d", calls, result.RetryCount)
			}
		case <-time.After(time.Second):
			t.Fatal("Expected WithRetry to return after cancellation")
		}
	})
}
