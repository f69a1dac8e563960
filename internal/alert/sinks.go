package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"uplight/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// LogSink writes the email and Slack messages that would be sent as log lines.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, e Event) error {
	recipient := fmt.Sprintf("team-%d-owners@example.com", e.TeamID)

	switch e.Type {
	case EventIncidentCreated:
		log.Info().
			Str("channel", "email").
			Str("to", recipient).
			Str("subject", fmt.Sprintf("Monitor DOWN: %s", e.Name)).
			Int64("monitor_id", e.MonitorID).
			Int64("incident_id", e.IncidentID).
			Str("cause", string(e.Cause)).
			Strs("affected_locations", e.AffectedLocations).
			Str("first_error", e.FirstError).
			Msg("Would send alert email")
		log.Info().
			Str("channel", "slack").
			Str("slack_channel", "#alerts").
			Str("text", fmt.Sprintf("*%s* is DOWN", e.Name)).
			Str("cause", string(e.Cause)).
			Str("locations", strings.Join(e.AffectedLocations, ", ")).
			Msg("Would post Slack message")

	case EventIncidentResolved:
		log.Info().
			Str("channel", "email").
			Str("to", recipient).
			Str("subject", fmt.Sprintf("Monitor RECOVERED: %s", e.Name)).
			Int64("monitor_id", e.MonitorID).
			Int64("incident_id", e.IncidentID).
			Str("cause", string(e.Cause)).
			Str("downtime", e.Downtime).
			Msg("Would send recovery email")
		log.Info().
			Str("channel", "slack").
			Str("slack_channel", "#alerts").
			Str("text", fmt.Sprintf("*%s* is back UP", e.Name)).
			Str("cause", string(e.Cause)).
			Str("downtime", e.Downtime).
			Msg("Would post Slack message")

	case EventStatusChanged:
		log.Info().
			Int64("monitor_id", e.MonitorID).
			Str("name", e.Name).
			Str("from", e.FromStatus).
			Str("to", e.ToStatus).
			Msg("Monitor status changed")

	case EventHeartbeatMissed:
		log.Info().
			Str("channel", "email").
			Str("to", recipient).
			Str("subject", fmt.Sprintf("Heartbeat MISSED: %s", e.Name)).
			Int64("heartbeat_id", e.HeartbeatID).
			Msg("Would send alert email")

	case EventHeartbeatRecovered:
		log.Info().
			Str("channel", "email").
			Str("to", recipient).
			Str("subject", fmt.Sprintf("Heartbeat RECOVERED: %s", e.Name)).
			Int64("heartbeat_id", e.HeartbeatID).
			Msg("Would send recovery email")

	default:
		return fmt.Errorf("unknown event type: %s", e.Type)
	}

	return nil
}

// NATSSink publishes events as JSON on "<subject>.<event type>".
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the configured server.
func NewNATSSink(cfg config.NATSConfig) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("uplight"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return NewNATSSinkWithConn(conn, cfg.Subject), nil
}

// NewNATSSinkWithConn wraps an existing connection.
func NewNATSSinkWithConn(conn *nats.Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: strings.TrimSuffix(subject, ".")}
}

func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(t EventType) string {
	return s.subject + "." + string(t)
}

func (s *NATSSink) Send(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(e.Type), data)
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Drain()
	s.conn.Close()
	return err
}
