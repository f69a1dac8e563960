// Package alert delivers incident and status-change notifications.
//
// Delivery is best effort: every Notify call runs in a tracked goroutine
// bounded by the configured timeout, sink failures are logged and counted,
// and nothing is retried.
package alert

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"uplight/internal/config"
	"uplight/internal/metrics"
	"uplight/internal/storage"

	"github.com/rs/zerolog/log"
)

// EventType names a notification; NATS subjects end with it.
type EventType string

const (
	EventIncidentCreated    EventType = "incident.created"
	EventIncidentResolved   EventType = "incident.resolved"
	EventStatusChanged      EventType = "status.changed"
	EventHeartbeatMissed    EventType = "heartbeat.missed"
	EventHeartbeatRecovered EventType = "heartbeat.recovered"
)

// IncidentEventType is the lifecycle step an incident went through in a round.
type IncidentEventType string

const (
	IncidentCreated  IncidentEventType = "created"
	IncidentResolved IncidentEventType = "resolved"
)

// IncidentEvent is emitted by the incident manager for each opened or closed incident.
// Duration is set for resolved incidents only.
type IncidentEvent struct {
	Type       IncidentEventType
	IncidentID int64
	Cause      storage.Cause
	Duration   time.Duration
}

// Notification is one monitor's round as seen by the notifier.
type Notification struct {
	MonitorID      int64
	MonitorName    string
	TeamID         int64
	OldStatus      storage.MonitorStatus
	NewStatus      storage.MonitorStatus
	Results        []storage.CheckResult
	IncidentEvents []IncidentEvent
}

// Event is the unit a sink delivers.
type Event struct {
	Type              EventType     `json:"type"`
	TeamID            int64         `json:"teamId"`
	MonitorID         int64         `json:"monitorId,omitempty"`
	HeartbeatID       int64         `json:"heartbeatId,omitempty"`
	Name              string        `json:"name"`
	IncidentID        int64         `json:"incidentId,omitempty"`
	Cause             storage.Cause `json:"cause,omitempty"`
	FromStatus        string        `json:"fromStatus,omitempty"`
	ToStatus          string        `json:"toStatus,omitempty"`
	AffectedLocations []string      `json:"affectedLocations,omitempty"`
	FirstError        string        `json:"firstError,omitempty"`
	DurationMs        int64         `json:"durationMs,omitempty"`
	Downtime          string        `json:"downtime,omitempty"`
	OccurredAt        time.Time     `json:"occurredAt"`
}

// Sink delivers events to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Manager fans events out to every configured sink.
type Manager struct {
	sinks   []Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewManager builds the sinks enabled in cfg. An enabled NATS sink that
// cannot connect is a start-up error.
func NewManager(cfg config.AlertConfig) (*Manager, error) {
	var sinks []Sink

	if cfg.Log.Enabled {
		sinks = append(sinks, NewLogSink())
	}

	if cfg.NATS.Enabled {
		sink, err := NewNATSSink(cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("failed to create nats sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	log.Info().Int("sinks", len(sinks)).Msg("Alert manager initialized")
	return NewManagerWithSinks(cfg.Timeout, sinks...), nil
}

// NewManagerWithSinks creates a manager over explicit sinks.
func NewManagerWithSinks(timeout time.Duration, sinks ...Sink) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{sinks: sinks, timeout: timeout}
}

// Notify turns a monitor round into events and delivers them in the
// background. It returns immediately.
func (m *Manager) Notify(n Notification) {
	m.Publish(BuildEvents(n, time.Now().UTC())...)
}

// Publish delivers events in the background. It returns immediately.
func (m *Manager) Publish(events ...Event) {
	if len(events) == 0 || len(m.sinks) == 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Notification delivery panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for _, event := range events {
			for _, sink := range m.sinks {
				if err := sink.Send(ctx, event); err != nil {
					metrics.NotificationFailed(sink.Name())
					log.Error().
						Str("sink", sink.Name()).
						Str("event", string(event.Type)).
						Int64("monitor_id", event.MonitorID).
						Err(err).
						Msg("Failed to deliver notification")
				}
			}
		}
	}()
}

// Close waits for in-flight deliveries and releases sink resources.
func (m *Manager) Close() {
	m.wg.Wait()
	for _, sink := range m.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Warn().Str("sink", sink.Name()).Err(err).Msg("Failed to close sink")
			}
		}
	}
}

// BuildEvents maps a round onto events: one per incident event, plus a
// status change when the monitor status moved.
func BuildEvents(n Notification, now time.Time) []Event {
	var failedLocations []string
	var firstError string
	for _, r := range n.Results {
		if r.Result == storage.OutcomeSuccess {
			continue
		}
		failedLocations = append(failedLocations, r.Location)
		if firstError == "" && r.ErrorMessage != nil {
			firstError = *r.ErrorMessage
		}
	}

	base := Event{
		TeamID:     n.TeamID,
		MonitorID:  n.MonitorID,
		Name:       n.MonitorName,
		OccurredAt: now,
	}

	var events []Event
	for _, ie := range n.IncidentEvents {
		event := base
		event.IncidentID = ie.IncidentID
		event.Cause = ie.Cause

		switch ie.Type {
		case IncidentCreated:
			event.Type = EventIncidentCreated
			event.AffectedLocations = failedLocations
			event.FirstError = firstError
		case IncidentResolved:
			event.Type = EventIncidentResolved
			event.DurationMs = ie.Duration.Milliseconds()
			event.Downtime = FormatDuration(ie.Duration)
		default:
			continue
		}
		events = append(events, event)
	}

	if n.OldStatus != n.NewStatus {
		event := base
		event.Type = EventStatusChanged
		event.FromStatus = string(n.OldStatus)
		event.ToStatus = string(n.NewStatus)
		events = append(events, event)
	}

	return events
}

// FormatDuration renders d as "1h 5m", "3m 20s" or "45s".
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
