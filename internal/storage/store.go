package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MonitorFilter narrows ListMonitors.
type MonitorFilter struct {
	ExcludePaused bool
	TeamID        *int64
}

// ListMonitors returns monitors matching filter, ordered by id.
func (s *Storage) ListMonitors(ctx context.Context, filter MonitorFilter) ([]Monitor, error) {
	query := NewSelectBuilder[Monitor](s.orm).OrderBy("id ASC")
	if filter.ExcludePaused {
		query.Where("status != ?", MonitorStatusPaused)
	}
	if filter.TeamID != nil {
		query.Where("team_id = ?", *filter.TeamID)
	}
	return query.Execute(ctx)
}

// GetMonitor returns one monitor or ErrNotFound.
func (s *Storage) GetMonitor(ctx context.Context, id int64) (*Monitor, error) {
	return s.Monitors.GetByID(ctx, id)
}

// CreateMonitor validates and inserts a monitor.
func (s *Storage) CreateMonitor(ctx context.Context, m *Monitor) error {
	if err := ValidateMonitor(m); err != nil {
		return fmt.Errorf("invalid monitor: %w", err)
	}
	return s.Monitors.Create(ctx, m)
}

// UpdateMonitorStatus sets the monitor status and stamps updated_at, which
// the scheduler reads as the time of the last round.
func (s *Storage) UpdateMonitorStatus(ctx context.Context, id int64, status MonitorStatus) error {
	n, err := s.Monitors.UpdateColumns(ctx, map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}, "id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveMaintenances returns windows containing now.
func (s *Storage) ListActiveMaintenances(ctx context.Context, now time.Time) ([]Maintenance, error) {
	now = now.UTC()
	return s.Maintenances.Where(ctx, "starts_at <= ? AND ends_at > ?", now, now)
}

// CreateMaintenance validates and inserts a maintenance window.
func (s *Storage) CreateMaintenance(ctx context.Context, m *Maintenance) error {
	if err := ValidateMaintenance(m); err != nil {
		return fmt.Errorf("invalid maintenance: %w", err)
	}
	return s.Maintenances.Create(ctx, m)
}

// InsertCheckResults appends a batch of results in one transaction.
func (s *Storage) InsertCheckResults(ctx context.Context, rows []CheckResult) error {
	if len(rows) == 0 {
		return nil
	}
	return s.orm.InTx(ctx, func(tx *ORM) error {
		repo := NewRepository[CheckResult](tx)
		for i := range rows {
			if err := repo.Create(ctx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCheckResults returns the most recent results for a monitor, newest first.
func (s *Storage) ListCheckResults(ctx context.Context, monitorID int64, limit int) ([]CheckResult, error) {
	return NewSelectBuilder[CheckResult](s.orm).
		Where("monitor_id = ?", monitorID).
		OrderBy("checked_at DESC, id DESC").
		Limit(limit).
		Execute(ctx)
}

// ListOpenIncidents returns every non-resolved incident of a monitor.
func (s *Storage) ListOpenIncidents(ctx context.Context, monitorID int64) ([]Incident, error) {
	return s.Incidents.Where(ctx, "monitor_id = ? AND status != ?", monitorID, IncidentStatusResolved)
}

// GetIncident returns one incident or ErrNotFound.
func (s *Storage) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	return s.Incidents.GetByID(ctx, id)
}

// InsertIncident inserts an incident. A second open incident for the same
// (monitor, cause) fails with ErrDuplicate.
func (s *Storage) InsertIncident(ctx context.Context, inc *Incident) error {
	return s.Incidents.Create(ctx, inc)
}

// UpdateIncident applies the non-nil fields of patch.
func (s *Storage) UpdateIncident(ctx context.Context, id int64, patch IncidentPatch) error {
	set := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Hint != nil {
		set["hint"] = *patch.Hint
	}
	if patch.Severity != nil {
		set["severity"] = *patch.Severity
	}
	if patch.AcknowledgedAt != nil {
		set["acknowledged_at"] = *patch.AcknowledgedAt
	}
	if patch.FixingAt != nil {
		set["fixing_at"] = *patch.FixingAt
	}
	if patch.ResolvedAt != nil {
		set["resolved_at"] = *patch.ResolvedAt
	}

	n, err := s.Incidents.UpdateColumns(ctx, set, "id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHeartbeats returns heartbeats, optionally skipping paused ones.
func (s *Storage) ListHeartbeats(ctx context.Context, excludePaused bool) ([]Heartbeat, error) {
	if excludePaused {
		return s.Heartbeats.Where(ctx, "status != ?", HeartbeatStatusPaused)
	}
	return s.Heartbeats.Where(ctx, "1 = 1")
}

// GetHeartbeatBySlug resolves a ping URL to its heartbeat.
func (s *Storage) GetHeartbeatBySlug(ctx context.Context, slug string) (*Heartbeat, error) {
	return s.Heartbeats.First(ctx, "slug = ?", slug)
}

// CreateHeartbeat validates and inserts a heartbeat, generating a slug if none is set.
func (s *Storage) CreateHeartbeat(ctx context.Context, h *Heartbeat) error {
	if err := ValidateHeartbeat(h); err != nil {
		return fmt.Errorf("invalid heartbeat: %w", err)
	}
	if h.Slug == "" {
		h.Slug = uuid.NewString()
	}
	return s.Heartbeats.Create(ctx, h)
}

// HeartbeatPatch lists the heartbeat columns an update may touch.
type HeartbeatPatch struct {
	Status     *HeartbeatStatus
	LastPingAt *time.Time
}

// UpdateHeartbeat applies the non-nil fields of patch.
func (s *Storage) UpdateHeartbeat(ctx context.Context, id int64, patch HeartbeatPatch) error {
	set := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.LastPingAt != nil {
		set["last_ping_at"] = *patch.LastPingAt
	}

	n, err := s.Heartbeats.UpdateColumns(ctx, set, "id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOngoingHeartbeatIncident returns the open incident of a heartbeat or ErrNotFound.
func (s *Storage) GetOngoingHeartbeatIncident(ctx context.Context, heartbeatID int64) (*HeartbeatIncident, error) {
	return s.HeartbeatIncidents.First(ctx, "heartbeat_id = ? AND status = ?", heartbeatID, HeartbeatIncidentOngoing)
}

// InsertHeartbeatIncident opens a missed-ping incident. A second ongoing
// incident for the same heartbeat fails with ErrDuplicate.
func (s *Storage) InsertHeartbeatIncident(ctx context.Context, inc *HeartbeatIncident) error {
	if inc.Status == "" {
		inc.Status = HeartbeatIncidentOngoing
	}
	return s.HeartbeatIncidents.Create(ctx, inc)
}

// ResolveHeartbeatIncidents closes every ongoing incident of a heartbeat.
func (s *Storage) ResolveHeartbeatIncidents(ctx context.Context, heartbeatID int64, now time.Time) (int64, error) {
	return s.HeartbeatIncidents.UpdateColumns(ctx, map[string]any{
		"status":      HeartbeatIncidentResolved,
		"resolved_at": now,
	}, "heartbeat_id = ? AND status = ?", heartbeatID, HeartbeatIncidentOngoing)
}

// IsDuplicate reports whether err came from a unique index violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsNotFound reports whether err means no matching row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
