package checks

import (
	"context"
	"fmt"
	"net"
	"time"

	"uplight/internal/config"
	"uplight/internal/storage"
)

// DNSChecker resolves a target hostname before the main probe runs.
type DNSChecker struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewDNSChecker uses the system resolver, or the configured server when
// checks.dns_server is set.
func NewDNSChecker(cfg config.ChecksConfig) *DNSChecker {
	resolver := net.DefaultResolver
	if cfg.DNSServer != "" {
		server := cfg.DNSServer
		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, server)
			},
		}
	}

	timeout := cfg.DNSTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &DNSChecker{resolver: resolver, timeout: timeout}
}

// Resolve returns an error unless host has at least one address.
// IP literals resolve to themselves.
func (d *DNSChecker) Resolve(ctx context.Context, host string) error {
	if host == "" {
		return fmt.Errorf("empty hostname")
	}
	if net.ParseIP(host) != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no addresses for %s", host)
	}
	return nil
}

// DNSFailureResult is the short-circuit result of a failed pre-check.
func DNSFailureResult(req *CheckRequest) Result {
	return Result{
		MonitorID:    req.MonitorID,
		Location:     req.Location,
		Outcome:      storage.OutcomeError,
		Cause:        storage.CauseDNSFailure,
		ErrorMessage: fmt.Sprintf("DNS resolution failed for %s", req.Hostname()),
		CheckedAt:    time.Now().UTC(),
	}
}
