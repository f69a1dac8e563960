package checks

import (
	"context"
	"fmt"
	"net"
	"time"

	"uplight/internal/storage"
)

// TCPChecker implements raw TCP connect probes.
type TCPChecker struct {
	*BaseChecker
	dialer net.Dialer
}

// NewTCPChecker creates a new TCP checker instance.
func NewTCPChecker() *TCPChecker {
	return &TCPChecker{BaseChecker: NewBaseChecker()}
}

// Type returns the checker type identifier.
func (t *TCPChecker) Type() storage.MonitorType {
	return storage.MonitorTypeTCP
}

// Check opens and immediately closes a connection to host:port.
func (t *TCPChecker) Check(ctx context.Context, req *CheckRequest) Result {
	timeout := req.TimeoutDuration()

	start := time.Now()
	conn, err := t.dialer.DialContext(ctx, "tcp", req.Address())
	elapsed := time.Since(start)

	if err != nil {
		message := err.Error()
		switch {
		case isTimeout(ctx, err):
			return t.CreateErrorResult(storage.OutcomeTimeout, storage.CauseTimeout,
				fmt.Sprintf("TCP connection timed out: %s", message), elapsed, nil)
		case isConnectionRefused(err):
			return t.CreateErrorResult(storage.OutcomeError, storage.CauseConnectionRefused,
				fmt.Sprintf("Connection refused: %s", message), elapsed, nil)
		default:
			return t.CreateErrorResult(storage.OutcomeError, storage.CauseTCPFailure, message, elapsed, nil)
		}
	}
	_ = conn.Close()

	if elapsed > timeout {
		return t.CreateErrorResult(storage.OutcomeTimeout, storage.CauseTimeout,
			fmt.Sprintf("Connection took %dms, exceeding timeout of %dms", elapsed.Milliseconds(), timeout.Milliseconds()), elapsed, nil)
	}

	return t.CreateSuccessResult(elapsed, nil)
}
