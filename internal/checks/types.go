package checks

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"uplight/internal/storage"
)

// CheckRequest is everything an executor needs to probe one monitor from one
// region. Executors never consult the database, so the request is self-contained.
type CheckRequest struct {
	MonitorID    int64                 `json:"monitorId"`
	Location     string                `json:"location"`
	Type         storage.MonitorType   `json:"type"`
	Timeout      int                   `json:"timeout"` // seconds
	CheckDNS     bool                  `json:"checkDNS"`
	ContentCheck *storage.ContentCheck `json:"contentCheck,omitempty"`

	// HTTP
	URL                 string            `json:"url,omitempty"`
	Method              string            `json:"method,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	Body                string            `json:"body,omitempty"`
	Username            string            `json:"username,omitempty"`
	Password            string            `json:"password,omitempty"`
	ExpectedStatusCodes []int             `json:"expectedStatusCodes,omitempty"`
	FollowRedirects     bool              `json:"followRedirects"`
	VerifySSL           bool              `json:"verifySSL"`

	// TCP
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// NewCheckRequest maps a stored monitor onto the request for one region.
func NewCheckRequest(m *storage.Monitor, location string) CheckRequest {
	req := CheckRequest{
		MonitorID:    m.ID,
		Location:     location,
		Type:         m.Type,
		Timeout:      m.Timeout,
		CheckDNS:     m.CheckDNS,
		ContentCheck: m.ContentCheck(),
	}

	switch m.Type {
	case storage.MonitorTypeHTTP:
		req.URL = deref(m.URL)
		req.Method = strings.ToUpper(deref(m.Method))
		if req.Method == "" {
			req.Method = "GET"
		}
		req.Headers = m.Headers()
		req.Body = deref(m.Body)
		req.Username = deref(m.Username)
		req.Password = deref(m.Password)
		req.ExpectedStatusCodes = m.ExpectedStatusCodes()
		req.FollowRedirects = m.FollowRedirects
		req.VerifySSL = m.VerifySSL
	case storage.MonitorTypeTCP:
		req.Host = deref(m.Host)
		if m.Port != nil {
			req.Port = *m.Port
		}
	}

	return req
}

// TimeoutDuration returns the probe deadline.
func (r *CheckRequest) TimeoutDuration() time.Duration {
	if r.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.Timeout) * time.Second
}

// Hostname returns the host the probe resolves: the URL host for http,
// the configured host for tcp.
func (r *CheckRequest) Hostname() string {
	if r.Type == storage.MonitorTypeTCP {
		return r.Host
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Address returns host:port for tcp probes.
func (r *CheckRequest) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Result is one probe outcome as produced by an executor.
//
// Cause is empty for success, degraded, maintenance and for unclassified errors.
type Result struct {
	MonitorID       int64             `json:"monitorId"`
	Location        string            `json:"location"`
	Outcome         storage.Outcome   `json:"result"`
	ResponseTime    int64             `json:"responseTime"`
	StatusCode      *int              `json:"statusCode,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	Cause           storage.Cause     `json:"cause,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	RetryCount      int               `json:"retryCount"`
	CheckedAt       time.Time         `json:"checkedAt"`
}

// ErrorResult builds the synthetic result used when a probe never produced one.
func ErrorResult(req *CheckRequest, message string) Result {
	return Result{
		MonitorID:    req.MonitorID,
		Location:     req.Location,
		Outcome:      storage.OutcomeError,
		ErrorMessage: message,
		CheckedAt:    time.Now().UTC(),
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
