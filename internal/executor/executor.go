// Package executor runs check requests for a region, either in-process or
// on a remote regional node reached over HTTP.
package executor

import (
	"context"
	"sort"

	"uplight/internal/checks"
	"uplight/internal/config"

	"github.com/rs/zerolog/log"
)

// CheckPath is the route a regional node serves check requests on.
const CheckPath = "/internal/v1/check"

// Executor runs one check request. A non-nil error means the request never
// produced a probe result (transport, decode or breaker failure).
type Executor interface {
	Execute(ctx context.Context, req checks.CheckRequest) (checks.Result, error)
}

// Local probes from the current process.
type Local struct {
	manager *checks.Manager
}

// NewLocal wraps a check manager.
func NewLocal(manager *checks.Manager) *Local {
	return &Local{manager: manager}
}

// Execute never fails; probe errors are carried in the result.
func (l *Local) Execute(ctx context.Context, req checks.CheckRequest) (checks.Result, error) {
	return l.manager.Execute(ctx, &req), nil
}

// Registry maps a location code to the executor that serves it.
type Registry struct {
	local   Executor
	remotes map[string]Executor
}

// NewRegistry builds a remote executor for every region with an endpoint.
// All other regions fall back to local.
func NewRegistry(local Executor, cfg config.DispatchConfig) *Registry {
	r := &Registry{local: local, remotes: make(map[string]Executor)}

	for code, region := range cfg.Regions {
		if region.Endpoint == "" {
			continue
		}
		r.remotes[code] = NewRemote(code, region, cfg)
		log.Info().Str("location", code).Str("endpoint", region.Endpoint).Msg("Remote executor configured")
	}

	return r
}

// For returns the executor for location.
func (r *Registry) For(location string) Executor {
	if remote, ok := r.remotes[location]; ok {
		return remote
	}
	return r.local
}

// RemoteLocations lists regions served by a remote node, sorted.
func (r *Registry) RemoteLocations() []string {
	codes := make([]string, 0, len(r.remotes))
	for code := range r.remotes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// BreakerStates reports the circuit breaker state of each remote region.
func (r *Registry) BreakerStates() map[string]string {
	states := make(map[string]string, len(r.remotes))
	for code, exec := range r.remotes {
		if remote, ok := exec.(*Remote); ok {
			states[code] = remote.State()
		}
	}
	return states
}
