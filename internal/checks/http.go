package checks

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"uplight/internal/config"
	"uplight/internal/storage"
)

// HTTPChecker implements HTTP/HTTPS probes.
type HTTPChecker struct {
	*BaseChecker
	cfg config.ChecksConfig

	// Two shared transports so connection pools survive across probes;
	// the insecure one backs monitors with verify_ssl disabled.
	secure   *http.Transport
	insecure *http.Transport
}

// NewHTTPChecker creates a new HTTP checker instance.
//
// Parameters:
//   - cfg: Probe settings (user agent, body caps, redirect limit)
//
// Returns:
//   - *HTTPChecker: Initialized HTTP checker
func NewHTTPChecker(cfg config.ChecksConfig) *HTTPChecker {
	base := http.DefaultTransport.(*http.Transport)

	secure := base.Clone()
	secure.DisableKeepAlives = true

	insecure := base.Clone()
	insecure.DisableKeepAlives = true
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per monitor

	return &HTTPChecker{
		BaseChecker: NewBaseChecker(),
		cfg:         cfg,
		secure:      secure,
		insecure:    insecure,
	}
}

// Type returns the checker type identifier.
func (h *HTTPChecker) Type() storage.MonitorType {
	return storage.MonitorTypeHTTP
}

// Check issues one request and classifies the response. The caller's context
// carries the probe deadline.
func (h *HTTPChecker) Check(ctx context.Context, req *CheckRequest) Result {
	httpReq, err := h.createRequest(ctx, req)
	if err != nil {
		return h.CreateErrorResult(storage.OutcomeError, "", fmt.Sprintf("Invalid request: %v", err), 0, nil)
	}

	start := time.Now()
	resp, err := h.client(req).Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return h.classifyError(ctx, req, err, elapsed)
	}
	defer resp.Body.Close()

	return h.validateResponse(req, resp, elapsed)
}

func (h *HTTPChecker) client(req *CheckRequest) *http.Client {
	transport := h.secure
	if !req.VerifySSL {
		transport = h.insecure
	}

	maxRedirects := h.cfg.MaxRedirects
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if !req.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// createRequest builds the outbound request. A body is only sent for
// POST, PUT and PATCH; basic auth only when both credentials are present.
func (h *HTTPChecker) createRequest(ctx context.Context, req *CheckRequest) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", h.cfg.UserAgent)
	}
	if req.Username != "" && req.Password != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}

	return httpReq, nil
}

func (h *HTTPChecker) validateResponse(req *CheckRequest, resp *http.Response, elapsed time.Duration) Result {
	statusCode := resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodyBytes))

	expected := req.ExpectedStatusCodes
	if len(expected) == 0 {
		expected = []int{http.StatusOK}
	}

	if !slices.Contains(expected, statusCode) {
		codes := make([]string, len(expected))
		for i, code := range expected {
			codes[i] = strconv.Itoa(code)
		}
		message := fmt.Sprintf("Expected status %s, got %d", strings.Join(codes, ", "), statusCode)
		result := h.CreateErrorResult(storage.OutcomeFailure, statusCause(statusCode), message, elapsed, &statusCode)
		return h.capture(result, resp, body)
	}

	if cc := req.ContentCheck; cc != nil {
		found := strings.Contains(string(body), cc.Content)
		if (cc.Mode == "contains") != found {
			message := fmt.Sprintf("Content check failed: %s %q", cc.Mode, cc.Content)
			result := h.CreateErrorResult(storage.OutcomeFailure, storage.CauseContentMismatch, message, elapsed, &statusCode)
			return h.capture(result, resp, body)
		}
	}

	return h.CreateSuccessResult(elapsed, &statusCode)
}

// capture attaches response headers and a truncated body to a non-success result.
func (h *HTTPChecker) capture(result Result, resp *http.Response, body []byte) Result {
	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}
	result.ResponseHeaders = headers
	result.ResponseBody = truncate(string(body), h.cfg.BodyTruncate)
	return result
}

func (h *HTTPChecker) classifyError(ctx context.Context, req *CheckRequest, err error, elapsed time.Duration) Result {
	// url.Error prefixes the method and URL; classify on the underlying error
	// so a hostname never reads as an error marker.
	inner := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		inner = urlErr.Err
	}
	message := inner.Error()

	switch {
	case isTimeout(ctx, inner):
		return h.CreateErrorResult(storage.OutcomeTimeout, storage.CauseTimeout,
			fmt.Sprintf("Request timed out after %dms", req.TimeoutDuration().Milliseconds()), elapsed, nil)
	case isDNSError(inner):
		return h.CreateErrorResult(storage.OutcomeError, storage.CauseDNSFailure,
			fmt.Sprintf("DNS resolution failed: %s", message), elapsed, nil)
	case isConnectionRefused(inner):
		return h.CreateErrorResult(storage.OutcomeError, storage.CauseConnectionRefused,
			fmt.Sprintf("Connection refused: %s", message), elapsed, nil)
	case isTLSError(inner):
		return h.CreateErrorResult(storage.OutcomeError, storage.CauseSSLError,
			fmt.Sprintf("SSL error: %s", message), elapsed, nil)
	case isNetworkError(inner):
		return h.CreateErrorResult(storage.OutcomeError, storage.CauseNetworkError,
			fmt.Sprintf("Network error: %s", message), elapsed, nil)
	default:
		return h.CreateErrorResult(storage.OutcomeError, "", message, elapsed, nil)
	}
}

// statusCause maps an unexpected status code to its cause by magnitude.
// Anything below 400 counts as http_3xx.
func statusCause(code int) storage.Cause {
	switch {
	case code >= 500:
		return storage.CauseHTTP5xx
	case code >= 400:
		return storage.CauseHTTP4xx
	default:
		return storage.CauseHTTP3xx
	}
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
