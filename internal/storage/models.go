// Package storage defines the data models and sqlite persistence for Uplight.
//
// All models use struct tags to define database column mappings.
// The ORM uses these tags for query generation and result mapping.
//
// Struct Tag Format:
//
//	`db:"column_name,constraint1,constraint2"`
//
// Supported constraints:
//   - primary: Marks the field as primary key
//   - auto_increment: Skipped on insert, filled from LastInsertId
package storage

import (
	"encoding/json"
	"time"
)

// MonitorType identifies the probe protocol of a monitor.
type MonitorType string

const (
	MonitorTypeHTTP MonitorType = "http"
	MonitorTypeTCP  MonitorType = "tcp"
)

// MonitorStatus is the resolved health of a monitor.
//
// MonitorStatusDowngraded is the mixed tier: some regions healthy, some not,
// or slow responses anywhere.
type MonitorStatus string

const (
	MonitorStatusUp           MonitorStatus = "up"
	MonitorStatusDown         MonitorStatus = "down"
	MonitorStatusDowngraded   MonitorStatus = "downgraded"
	MonitorStatusMaintenance  MonitorStatus = "maintenance"
	MonitorStatusPaused       MonitorStatus = "paused"
	MonitorStatusInitializing MonitorStatus = "initializing"
)

// Outcome is the classification of one probe.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeDegraded    Outcome = "degraded"
	OutcomeFailure     Outcome = "failure"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
	OutcomeMaintenance Outcome = "maintenance"
)

// Healthy reports whether the outcome counts as a reachable, working target.
func (o Outcome) Healthy() bool {
	return o == OutcomeSuccess || o == OutcomeDegraded
}

// Failing reports whether the outcome counts against the target.
func (o Outcome) Failing() bool {
	return o == OutcomeFailure || o == OutcomeTimeout || o == OutcomeError
}

// Cause is the failure classification used to deduplicate incidents.
type Cause string

const (
	CauseHTTP5xx           Cause = "http_5xx"
	CauseHTTP4xx           Cause = "http_4xx"
	CauseHTTP3xx           Cause = "http_3xx"
	CauseTimeout           Cause = "timeout"
	CauseConnectionRefused Cause = "connection_refused"
	CauseDNSFailure        Cause = "dns_failure"
	CauseSSLError          Cause = "ssl_error"
	CauseContentMismatch   Cause = "content_mismatch"
	CauseTCPFailure        Cause = "tcp_failure"
	CauseNetworkError      Cause = "network_error"
	CauseHeartbeatMissed   Cause = "heartbeat_missed"
)

// IncidentStatus tracks an incident from open to resolved.
type IncidentStatus string

const (
	IncidentStatusActive       IncidentStatus = "active"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusFixing       IncidentStatus = "fixing"
	IncidentStatusResolved     IncidentStatus = "resolved"
)

// Severity is the AI-assigned impact of an incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HeartbeatStatus mirrors MonitorStatus for dead man's switches.
type HeartbeatStatus string

const (
	HeartbeatStatusUp           HeartbeatStatus = "up"
	HeartbeatStatusDown         HeartbeatStatus = "down"
	HeartbeatStatusPaused       HeartbeatStatus = "paused"
	HeartbeatStatusInitializing HeartbeatStatus = "initializing"
)

const (
	HeartbeatIncidentOngoing  = "ongoing"
	HeartbeatIncidentResolved = "resolved"
)

// Locations lists every region code an executor can run in.
var Locations = []string{"wnam", "enam", "sam", "weur", "eeur", "apac", "oc", "afr", "me"}

// ContentCheck is a literal body match applied after a successful status code.
type ContentCheck struct {
	Mode    string `json:"mode"` // contains or not_contains
	Content string `json:"content"`
}

// Monitor is a probed target.
//
// Locations, Headers, ExpectedStatusCodes and ContentCheck are JSON text
// columns; use the accessor methods to read them.
type Monitor struct {
	ID     int64       `db:"id,primary,auto_increment" json:"id"`
	TeamID int64       `db:"team_id" json:"team_id"`
	Name   string      `db:"name" json:"name"`
	Type   MonitorType `db:"type" json:"type"`

	// Interval is the time between rounds, in milliseconds.
	Interval int64 `db:"interval_ms" json:"interval"`

	// Timeout is the per-probe deadline, in seconds.
	Timeout int `db:"timeout_seconds" json:"timeout"`

	// ResponseTimeThreshold downgrades slow successes to degraded, in milliseconds.
	ResponseTimeThreshold *int64 `db:"response_time_threshold" json:"response_time_threshold,omitempty"`

	LocationsJSON    string  `db:"locations" json:"-"`
	ContentCheckJSON *string `db:"content_check" json:"-"`

	// HTTP
	URL                     *string `db:"url" json:"url,omitempty"`
	Method                  *string `db:"method" json:"method,omitempty"`
	HeadersJSON             *string `db:"headers" json:"-"`
	Body                    *string `db:"body" json:"body,omitempty"`
	Username                *string `db:"username" json:"-"`
	Password                *string `db:"password" json:"-"`
	ExpectedStatusCodesJSON *string `db:"expected_status_codes" json:"-"`
	FollowRedirects         bool    `db:"follow_redirects" json:"follow_redirects"`
	VerifySSL               bool    `db:"verify_ssl" json:"verify_ssl"`
	CheckDNS                bool    `db:"check_dns" json:"check_dns"`

	// TCP
	Host *string `db:"host" json:"host,omitempty"`
	Port *int    `db:"port" json:"port,omitempty"`

	Status    MonitorStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`

	// UpdatedAt doubles as the time of the last completed round.
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (Monitor) TableName() string { return "monitors" }

// Locations decodes the configured regions. Malformed JSON yields nil.
func (m *Monitor) Locations() []string {
	var locations []string
	if err := json.Unmarshal([]byte(m.LocationsJSON), &locations); err != nil {
		return nil
	}
	return locations
}

// SetLocations encodes the configured regions.
func (m *Monitor) SetLocations(locations []string) {
	raw, _ := json.Marshal(locations)
	m.LocationsJSON = string(raw)
}

// Headers decodes the custom request headers.
func (m *Monitor) Headers() map[string]string {
	headers := map[string]string{}
	if m.HeadersJSON != nil && *m.HeadersJSON != "" {
		_ = json.Unmarshal([]byte(*m.HeadersJSON), &headers)
	}
	return headers
}

// ExpectedStatusCodes decodes the accepted status codes, defaulting to 200.
func (m *Monitor) ExpectedStatusCodes() []int {
	var codes []int
	if m.ExpectedStatusCodesJSON != nil && *m.ExpectedStatusCodesJSON != "" {
		_ = json.Unmarshal([]byte(*m.ExpectedStatusCodesJSON), &codes)
	}
	if len(codes) == 0 {
		return []int{200}
	}
	return codes
}

// ContentCheck decodes the optional body match rule.
func (m *Monitor) ContentCheck() *ContentCheck {
	if m.ContentCheckJSON == nil || *m.ContentCheckJSON == "" {
		return nil
	}
	var cc ContentCheck
	if err := json.Unmarshal([]byte(*m.ContentCheckJSON), &cc); err != nil || cc.Content == "" {
		return nil
	}
	return &cc
}

// Target returns the URL for http monitors and host:port for tcp monitors.
func (m *Monitor) Target() string {
	switch m.Type {
	case MonitorTypeHTTP:
		if m.URL != nil {
			return *m.URL
		}
	case MonitorTypeTCP:
		if m.Host != nil && m.Port != nil {
			return joinHostPort(*m.Host, *m.Port)
		}
	}
	return ""
}

// Maintenance is a window during which a monitor is not probed.
type Maintenance struct {
	ID        int64     `db:"id,primary,auto_increment" json:"id"`
	MonitorID int64     `db:"monitor_id" json:"monitor_id"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (Maintenance) TableName() string { return "maintenances" }

// Active reports whether now falls inside the window.
func (m *Maintenance) Active(now time.Time) bool {
	return !now.Before(m.StartsAt) && now.Before(m.EndsAt)
}

// CheckResult is one probe outcome for one monitor in one region.
// Rows are append-only.
type CheckResult struct {
	ID              int64     `db:"id,primary,auto_increment" json:"id"`
	MonitorID       int64     `db:"monitor_id" json:"monitor_id"`
	Location        string    `db:"location" json:"location"`
	Result          Outcome   `db:"result" json:"result"`
	ResponseTime    int64     `db:"response_time_ms" json:"response_time"`
	StatusCode      *int      `db:"status_code" json:"status_code,omitempty"`
	ErrorMessage    *string   `db:"error_message" json:"error_message,omitempty"`
	Cause           *Cause    `db:"cause" json:"cause,omitempty"`
	ResponseHeaders *string   `db:"response_headers" json:"response_headers,omitempty"`
	ResponseBody    *string   `db:"response_body" json:"response_body,omitempty"`
	RetryCount      int       `db:"retry_count" json:"retry_count"`
	CheckedAt       time.Time `db:"checked_at" json:"checked_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

func (CheckResult) TableName() string { return "check_results" }

// Incident is an open or closed failure episode for one (monitor, cause).
type Incident struct {
	ID             int64          `db:"id,primary,auto_increment" json:"id"`
	MonitorID      int64          `db:"monitor_id" json:"monitor_id"`
	Cause          Cause          `db:"cause" json:"cause"`
	Status         IncidentStatus `db:"status" json:"status"`
	Title          *string        `db:"title" json:"title,omitempty"`
	Description    *string        `db:"description" json:"description,omitempty"`
	Hint           *string        `db:"hint" json:"hint,omitempty"`
	Severity       *Severity      `db:"severity" json:"severity,omitempty"`
	StartedAt      time.Time      `db:"started_at" json:"started_at"`
	AcknowledgedAt *time.Time     `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	FixingAt       *time.Time     `db:"fixing_at" json:"fixing_at,omitempty"`
	ResolvedAt     *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

func (Incident) TableName() string { return "incidents" }

// IncidentPatch lists the incident columns an update may touch.
// Nil fields are left unchanged.
type IncidentPatch struct {
	Status         *IncidentStatus
	Title          *string
	Description    *string
	Hint           *string
	Severity       *Severity
	AcknowledgedAt *time.Time
	FixingAt       *time.Time
	ResolvedAt     *time.Time
}

// Heartbeat is a dead man's switch pinged by the monitored job.
type Heartbeat struct {
	ID     int64  `db:"id,primary,auto_increment" json:"id"`
	TeamID int64  `db:"team_id" json:"team_id"`
	Name   string `db:"name" json:"name"`
	Slug   string `db:"slug" json:"slug"`

	// GracePeriod is the allowed silence after the last ping, in seconds.
	GracePeriod int64 `db:"grace_period" json:"grace_period"`

	Status     HeartbeatStatus `db:"status" json:"status"`
	LastPingAt *time.Time      `db:"last_ping_at" json:"last_ping_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

func (Heartbeat) TableName() string { return "heartbeats" }

// HeartbeatIncident is a missed-ping episode. Its cause is always heartbeat_missed.
type HeartbeatIncident struct {
	ID          int64      `db:"id,primary,auto_increment" json:"id"`
	HeartbeatID int64      `db:"heartbeat_id" json:"heartbeat_id"`
	Status      string     `db:"status" json:"status"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

func (HeartbeatIncident) TableName() string { return "heartbeat_incidents" }
