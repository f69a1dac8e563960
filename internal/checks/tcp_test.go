package checks

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"uplight/internal/storage"
)

func tcpRequest(t *testing.T, addr string) *CheckRequest {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("Bad address %q: %v", addr, err)
	}
	port, _ := strconv.Atoi(portStr)
	return &CheckRequest{
		MonitorID: 3,
		Location:  "apac",
		Type:      storage.MonitorTypeTCP,
		Timeout:   2,
		Host:      host,
		Port:      port,
	}
}

func TestTCPChecker(t *testing.T) {
	checker := NewTCPChecker()

	t.Run("Open port is a success", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Failed to listen: %v", err)
		}
		defer listener.Close()
		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}()

		result := checker.Check(context.Background(), tcpRequest(t, listener.Addr().String()))
		if result.Outcome != storage.OutcomeSuccess {
			t.Errorf("Expected success, got %s (%s)", result.Outcome, result.ErrorMessage)
		}
		if result.StatusCode != nil {
			t.Error("Expected no status code for tcp")
		}
	})

	t.Run("Closed port is connection refused", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Failed to listen: %v", err)
		}
		addr := listener.Addr().String()
		listener.Close()

		result := checker.Check(context.Background(), tcpRequest(t, addr))
		if result.Outcome != storage.OutcomeError {
			t.Fatalf("Expected error, got %s", result.Outcome)
		}
		if result.Cause != storage.CauseConnectionRefused {
			t.Errorf("Expected connection_refused, got %s", result.Cause)
		}
		if !strings.HasPrefix(result.ErrorMessage, "Connection refused: ") {
			t.Errorf("Unexpected message: %q", result.ErrorMessage)
		}
	})

	t.Run("Unresolvable host is a tcp failure", func(t *testing.T) {
		req := &CheckRequest{Type: storage.MonitorTypeTCP, Timeout: 2, Host: "uplight-does-not-exist.invalid", Port: 80}
		result := checker.Check(context.Background(), req)
		if result.Outcome == storage.OutcomeSuccess {
			t.Fatal("Expected a non-success outcome")
		}
		if result.Outcome == storage.OutcomeError && result.Cause != storage.CauseTCPFailure {
			t.Errorf("Expected tcp_failure, got %s", result.Cause)
		}
	})

	t.Run("Type identifier", func(t *testing.T) {
		if checker.Type() != storage.MonitorTypeTCP {
			t.Errorf("Expected tcp, got %s", checker.Type())
		}
	})
}
