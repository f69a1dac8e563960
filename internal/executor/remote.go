package executor

import (
	"context"
	"fmt"
	"time"

	"uplight/internal/checks"
	"uplight/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Remote posts check requests to a regional node. Consecutive transport
// failures open a per-region circuit breaker so an unreachable region fails
// fast instead of holding a worker for the full timeout.
type Remote struct {
	location string
	client   *resty.Client
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	padding  time.Duration
}

// NewRemote creates the executor for one region.
func NewRemote(location string, region config.RegionConfig, cfg config.DispatchConfig) *Remote {
	client := resty.New().
		SetBaseURL(region.Endpoint).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "executor-" + location,
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Executor circuit breaker state changed")
		},
	})

	return &Remote{
		location: location,
		client:   client,
		breaker:  breaker,
		timeout:  region.Timeout,
		padding:  cfg.TimeoutPadding,
	}
}

// Execute sends req and decodes the node's result.
func (r *Remote) Execute(ctx context.Context, req checks.CheckRequest) (checks.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.requestTimeout(&req))
	defer cancel()

	out, err := r.breaker.Execute(func() (interface{}, error) {
		var result checks.Result
		resp, err := r.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&result).
			Post(CheckPath)
		if err != nil {
			return nil, fmt.Errorf("executor %s unreachable: %w", r.location, err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return nil, fmt.Errorf("executor %s returned status %d", r.location, resp.StatusCode())
		}
		if result.Outcome == "" {
			return nil, fmt.Errorf("executor %s returned an empty result", r.location)
		}
		return &result, nil
	})
	if err != nil {
		return checks.Result{}, err
	}

	result := *out.(*checks.Result)
	result.MonitorID = req.MonitorID
	result.Location = req.Location
	if result.CheckedAt.IsZero() {
		result.CheckedAt = time.Now().UTC()
	}
	return result, nil
}

// requestTimeout is the region's configured timeout, or the probe timeout
// plus padding for the node's retries.
func (r *Remote) requestTimeout(req *checks.CheckRequest) time.Duration {
	if r.timeout > 0 {
		return r.timeout
	}
	return req.TimeoutDuration() + r.padding
}

// State exposes the breaker state for health reporting.
func (r *Remote) State() string {
	return r.breaker.State().String()
}
