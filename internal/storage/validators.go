package storage

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

var validMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// ValidateMonitor checks a monitor before it is inserted and fills defaults
// (method GET, expected status [200], status initializing).
func ValidateMonitor(m *Monitor) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if m.Interval < 1000 {
		return fmt.Errorf("interval must be at least 1000ms")
	}
	if m.Timeout <= 0 || m.Timeout > 300 {
		return fmt.Errorf("timeout must be between 1 and 300 seconds")
	}
	if m.ResponseTimeThreshold != nil && *m.ResponseTimeThreshold <= 0 {
		return fmt.Errorf("response_time_threshold must be positive")
	}

	locations := m.Locations()
	if len(locations) == 0 {
		return fmt.Errorf("at least one location is required")
	}
	for _, loc := range locations {
		if !slices.Contains(Locations, loc) {
			return fmt.Errorf("unknown location: %s", loc)
		}
	}

	if m.ContentCheckJSON != nil && *m.ContentCheckJSON != "" {
		cc := m.ContentCheck()
		if cc == nil || (cc.Mode != "contains" && cc.Mode != "not_contains") {
			return fmt.Errorf("content_check must have mode contains or not_contains and a non-empty content")
		}
	}

	switch m.Type {
	case MonitorTypeHTTP:
		if err := validateHTTPMonitor(m); err != nil {
			return err
		}
	case MonitorTypeTCP:
		if m.Host == nil || strings.TrimSpace(*m.Host) == "" {
			return fmt.Errorf("host is required for tcp monitors")
		}
		if m.Port == nil || *m.Port < 1 || *m.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("unsupported monitor type: %s", m.Type)
	}

	if m.Status == "" {
		m.Status = MonitorStatusInitializing
	}
	return nil
}

func validateHTTPMonitor(m *Monitor) error {
	if m.URL == nil {
		return fmt.Errorf("url is required for http monitors")
	}
	u, err := url.Parse(*m.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}

	if m.Method == nil || *m.Method == "" {
		method := "GET"
		m.Method = &method
	}
	upper := strings.ToUpper(*m.Method)
	if !slices.Contains(validMethods, upper) {
		return fmt.Errorf("invalid HTTP method: %s", *m.Method)
	}
	m.Method = &upper

	for _, code := range m.ExpectedStatusCodes() {
		if code < 100 || code > 599 {
			return fmt.Errorf("invalid expected status code: %d (must be between 100-599)", code)
		}
	}
	if m.ExpectedStatusCodesJSON == nil {
		codes := "[200]"
		m.ExpectedStatusCodesJSON = &codes
	}

	if (m.Username == nil) != (m.Password == nil) {
		return fmt.Errorf("username and password must be set together")
	}
	return nil
}

// ValidateHeartbeat checks a heartbeat before insert.
func ValidateHeartbeat(h *Heartbeat) error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if h.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive")
	}
	if h.Status == "" {
		h.Status = HeartbeatStatusInitializing
	}
	return nil
}

// ValidateMaintenance checks a maintenance window before insert.
func ValidateMaintenance(m *Maintenance) error {
	if m.MonitorID <= 0 {
		return fmt.Errorf("monitor_id is required")
	}
	if !m.EndsAt.After(m.StartsAt) {
		return fmt.Errorf("ends_at must be after starts_at")
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
