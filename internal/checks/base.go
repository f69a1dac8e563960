package checks

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"uplight/internal/storage"
)

// BaseChecker holds the result constructors and error classification shared
// by the probe implementations.
type BaseChecker struct{}

// NewBaseChecker creates a new base checker instance.
func NewBaseChecker() *BaseChecker {
	return &BaseChecker{}
}

// CreateErrorResult creates a non-success result with elapsed time in milliseconds.
func (b *BaseChecker) CreateErrorResult(outcome storage.Outcome, cause storage.Cause, message string, elapsed time.Duration, statusCode *int) Result {
	return Result{
		Outcome:      outcome,
		Cause:        cause,
		ErrorMessage: message,
		ResponseTime: elapsed.Milliseconds(),
		StatusCode:   statusCode,
		CheckedAt:    time.Now().UTC(),
	}
}

// CreateSuccessResult creates a success result with elapsed time in milliseconds.
func (b *BaseChecker) CreateSuccessResult(elapsed time.Duration, statusCode *int) Result {
	return Result{
		Outcome:      storage.OutcomeSuccess,
		ResponseTime: elapsed.Milliseconds(),
		StatusCode:   statusCode,
		CheckedAt:    time.Now().UTC(),
	}
}

// isTimeout reports deadline expiry, from the context or the network stack.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timed out") || strings.Contains(msg, "etimedout")
}

func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "refused") || strings.Contains(msg, "econnrefused")
}

func isTLSError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
		recordHeaderErr  tls.RecordHeaderError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert) || errors.As(err, &verifyErr) || errors.As(err, &recordHeaderErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"ssl", "tls", "x509", "certificate", "cert"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such host")
}

// isNetworkError matches faults of an established path: resets, unreachable
// networks and broken pipes.
func isNetworkError(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "network is unreachable", "no route to host", "broken pipe"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
