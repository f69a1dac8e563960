package core

import (
	"context"
	"time"

	"uplight/internal/alert"
	"uplight/internal/checks"
	"uplight/internal/executor"
	"uplight/internal/storage"
)

// Store is the persistence the engine needs. *storage.Storage implements it.
type Store interface {
	ListMonitors(ctx context.Context, filter storage.MonitorFilter) ([]storage.Monitor, error)
	GetMonitor(ctx context.Context, id int64) (*storage.Monitor, error)
	UpdateMonitorStatus(ctx context.Context, id int64, status storage.MonitorStatus) error
	ListActiveMaintenances(ctx context.Context, now time.Time) ([]storage.Maintenance, error)
	InsertCheckResults(ctx context.Context, rows []storage.CheckResult) error

	ListOpenIncidents(ctx context.Context, monitorID int64) ([]storage.Incident, error)
	GetIncident(ctx context.Context, id int64) (*storage.Incident, error)
	InsertIncident(ctx context.Context, inc *storage.Incident) error
	UpdateIncident(ctx context.Context, id int64, patch storage.IncidentPatch) error

	ListHeartbeats(ctx context.Context, excludePaused bool) ([]storage.Heartbeat, error)
	GetHeartbeatBySlug(ctx context.Context, slug string) (*storage.Heartbeat, error)
	UpdateHeartbeat(ctx context.Context, id int64, patch storage.HeartbeatPatch) error
	GetOngoingHeartbeatIncident(ctx context.Context, heartbeatID int64) (*storage.HeartbeatIncident, error)
	InsertHeartbeatIncident(ctx context.Context, inc *storage.HeartbeatIncident) error
	ResolveHeartbeatIncidents(ctx context.Context, heartbeatID int64, now time.Time) (int64, error)
}

// Notifier receives round outcomes and heartbeat events. Both calls must
// return without waiting for delivery.
type Notifier interface {
	Notify(n alert.Notification)
	Publish(events ...alert.Event)
	Close()
}

// ExecutorSource picks the executor for a location.
type ExecutorSource interface {
	For(location string) executor.Executor
}

var _ Store = (*storage.Storage)(nil)
var _ Notifier = (*alert.Manager)(nil)
var _ ExecutorSource = (*executor.Registry)(nil)

// toCheckResult converts a probe result into a row.
func toCheckResult(r checks.Result) storage.CheckResult {
	row := storage.CheckResult{
		MonitorID:    r.MonitorID,
		Location:     r.Location,
		Result:       r.Outcome,
		ResponseTime: r.ResponseTime,
		StatusCode:   r.StatusCode,
		RetryCount:   r.RetryCount,
		CheckedAt:    r.CheckedAt.UTC(),
	}
	if row.CheckedAt.IsZero() {
		row.CheckedAt = time.Now().UTC()
	}
	if r.ErrorMessage != "" {
		msg := r.ErrorMessage
		row.ErrorMessage = &msg
	}
	if r.Cause != "" {
		cause := r.Cause
		row.Cause = &cause
	}
	return row
}
