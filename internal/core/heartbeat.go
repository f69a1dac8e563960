package core

import (
	"context"
	"time"

	"uplight/internal/alert"
	"uplight/internal/storage"

	"github.com/rs/zerolog/log"
)

// HeartbeatMonitor is the dead man's switch for cron-style heartbeats.
type HeartbeatMonitor struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewHeartbeatMonitor(store Store, notifier Notifier) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Late reports whether no ping arrived within the grace period. A heartbeat
// that never pinged is never late.
func Late(h *storage.Heartbeat, now time.Time) bool {
	if h.LastPingAt == nil {
		return false
	}
	deadline := h.LastPingAt.Add(time.Duration(h.GracePeriod) * time.Second)
	return now.After(deadline)
}

// Check flips late heartbeats to down and opens their incident. Heartbeats
// already down are left alone, so a missed ping is reported once.
func (hm *HeartbeatMonitor) Check(ctx context.Context) error {
	heartbeats, err := hm.store.ListHeartbeats(ctx, true)
	if err != nil {
		return err
	}

	now := hm.now()
	missed := 0

	for i := range heartbeats {
		h := &heartbeats[i]
		if h.Status == storage.HeartbeatStatusInitializing || h.Status == storage.HeartbeatStatusDown {
			continue
		}
		if !Late(h, now) {
			continue
		}

		down := storage.HeartbeatStatusDown
		if err := hm.store.UpdateHeartbeat(ctx, h.ID, storage.HeartbeatPatch{Status: &down}); err != nil {
			log.Error().Int64("heartbeat_id", h.ID).Err(err).Msg("Failed to mark heartbeat down")
			continue
		}

		incidentID, err := hm.openIncident(ctx, h, now)
		if err != nil {
			log.Error().Int64("heartbeat_id", h.ID).Err(err).Msg("Failed to open heartbeat incident")
		}

		missed++
		log.Warn().Int64("heartbeat_id", h.ID).Str("slug", h.Slug).Time("last_ping_at", *h.LastPingAt).Msg("Heartbeat missed")

		hm.notifier.Publish(alert.Event{
			Type:        alert.EventHeartbeatMissed,
			TeamID:      h.TeamID,
			HeartbeatID: h.ID,
			Name:        h.Name,
			IncidentID:  incidentID,
			Cause:       storage.CauseHeartbeatMissed,
			FromStatus:  string(h.Status),
			ToStatus:    string(storage.HeartbeatStatusDown),
			OccurredAt:  now,
		})
	}

	log.Debug().Int("heartbeats", len(heartbeats)).Int("missed", missed).Msg("Heartbeat round completed")
	return nil
}

// openIncident inserts the ongoing incident unless one already exists.
func (hm *HeartbeatMonitor) openIncident(ctx context.Context, h *storage.Heartbeat, now time.Time) (int64, error) {
	existing, err := hm.store.GetOngoingHeartbeatIncident(ctx, h.ID)
	if err == nil {
		return existing.ID, nil
	}
	if !storage.IsNotFound(err) {
		return 0, err
	}

	inc := &storage.HeartbeatIncident{
		HeartbeatID: h.ID,
		Status:      storage.HeartbeatIncidentOngoing,
		StartedAt:   now,
	}
	if err := hm.store.InsertHeartbeatIncident(ctx, inc); err != nil {
		if storage.IsDuplicate(err) {
			return 0, nil
		}
		return 0, err
	}
	return inc.ID, nil
}

// RecordPing stores a ping. A down heartbeat recovers and its ongoing
// incidents are resolved; a paused one only records the time.
func (hm *HeartbeatMonitor) RecordPing(ctx context.Context, slug string) (*storage.Heartbeat, error) {
	h, err := hm.store.GetHeartbeatBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	now := hm.now()
	patch := storage.HeartbeatPatch{LastPingAt: &now}
	up := storage.HeartbeatStatusUp
	if h.Status != storage.HeartbeatStatusPaused {
		patch.Status = &up
	}

	if err := hm.store.UpdateHeartbeat(ctx, h.ID, patch); err != nil {
		return nil, err
	}

	previous := h.Status
	h.LastPingAt = &now
	if patch.Status != nil {
		h.Status = up
	}

	if previous == storage.HeartbeatStatusDown {
		resolved, err := hm.store.ResolveHeartbeatIncidents(ctx, h.ID, now)
		if err != nil {
			log.Error().Int64("heartbeat_id", h.ID).Err(err).Msg("Failed to resolve heartbeat incidents")
		}

		log.Info().Int64("heartbeat_id", h.ID).Int64("resolved", resolved).Msg("Heartbeat recovered")

		hm.notifier.Publish(alert.Event{
			Type:        alert.EventHeartbeatRecovered,
			TeamID:      h.TeamID,
			HeartbeatID: h.ID,
			Name:        h.Name,
			Cause:       storage.CauseHeartbeatMissed,
			FromStatus:  string(previous),
			ToStatus:    string(up),
			OccurredAt:  now,
		})
	}

	return h, nil
}
