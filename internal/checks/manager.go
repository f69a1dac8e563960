// Package checks provides the probe implementations of the Uplight engine.
//
// Each probe type implements the Checker interface; the Manager routes a
// CheckRequest to its checker, runs the optional DNS pre-check and wraps the
// probe in the retry policy.
//
// Supported check types:
//   - HTTP/HTTPS: status, content and TLS classification
//   - TCP: connect probes
//
// Example usage:
//
//	manager := checks.NewManager(cfg.Checks)
//	result := manager.Execute(ctx, &req)
package checks

import (
	"context"
	"fmt"
	"sort"

	"uplight/internal/config"
	"uplight/internal/storage"

	"github.com/rs/zerolog/log"
)

// Checker defines the interface that all check types must implement.
type Checker interface {
	// Check runs one probe attempt. Implementations must honor ctx's deadline
	// and never panic on network failures.
	Check(ctx context.Context, req *CheckRequest) Result

	// Type returns the monitor type the checker serves.
	Type() storage.MonitorType
}

// Manager routes check requests to the checker for their monitor type.
type Manager struct {
	checkers map[storage.MonitorType]Checker
	dns      *DNSChecker
	retry    config.RetryConfig
}

// NewManager creates a new check manager with all available checkers.
func NewManager(cfg config.ChecksConfig) *Manager {
	manager := &Manager{
		checkers: make(map[storage.MonitorType]Checker),
		dns:      NewDNSChecker(cfg),
		retry:    cfg.Retry,
	}

	manager.Register(NewHTTPChecker(cfg))
	manager.Register(NewTCPChecker())

	return manager
}

// Register adds or replaces the checker for its type.
func (m *Manager) Register(checker Checker) {
	m.checkers[checker.Type()] = checker
	log.Debug().Str("type", string(checker.Type())).Msg("Checker registered")
}

// Execute runs the DNS pre-check when requested, then the probe under the
// retry policy. It always returns a result stamped with the request's
// monitor and location.
func (m *Manager) Execute(ctx context.Context, req *CheckRequest) Result {
	checker, exists := m.checkers[req.Type]
	if !exists {
		return ErrorResult(req, fmt.Sprintf("unsupported monitor type: %s", req.Type))
	}

	if req.CheckDNS {
		if err := m.dns.Resolve(ctx, req.Hostname()); err != nil {
			log.Debug().Int64("monitor_id", req.MonitorID).Str("location", req.Location).Err(err).Msg("DNS pre-check failed")
			return DNSFailureResult(req)
		}
	}

	policy := RetryPolicy{
		Timeout:      req.TimeoutDuration(),
		MaxRetries:   m.retry.MaxRetries,
		InitialDelay: m.retry.InitialDelay,
	}

	result := WithRetry(ctx, policy, func(ctx context.Context) Result {
		r := checker.Check(ctx, req)
		r.MonitorID = req.MonitorID
		r.Location = req.Location
		return r
	})

	log.Debug().
		Int64("monitor_id", req.MonitorID).
		Str("location", req.Location).
		Str("outcome", string(result.Outcome)).
		Int("retry_count", result.RetryCount).
		Msg("Check completed")

	return result
}

// SupportedTypes returns the registered monitor types, sorted.
func (m *Manager) SupportedTypes() []string {
	types := make([]string, 0, len(m.checkers))
	for checkType := range m.checkers {
		types = append(types, string(checkType))
	}
	sort.Strings(types)
	return types
}
