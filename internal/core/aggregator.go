package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"uplight/internal/alert"
	"uplight/internal/checks"
	"uplight/internal/metrics"
	"uplight/internal/storage"

	"github.com/rs/zerolog/log"
)

// ResolveStatus derives a monitor's status from one round of results.
// It depends only on the multiset of outcomes, never on order or prior state.
//
//   - no results: initializing
//   - only maintenance: maintenance
//   - all success: up
//   - all failure, timeout or error: down
//   - anything else, including any degraded result: downgraded
func ResolveStatus(results []storage.CheckResult) storage.MonitorStatus {
	if len(results) == 0 {
		return storage.MonitorStatusInitializing
	}

	var healthy, degraded, failing, maintenance int
	for _, r := range results {
		switch {
		case r.Result == storage.OutcomeMaintenance:
			maintenance++
		case r.Result.Failing():
			failing++
		case r.Result.Healthy():
			healthy++
			if r.Result == storage.OutcomeDegraded {
				degraded++
			}
		}
	}

	switch {
	case maintenance == len(results):
		return storage.MonitorStatusMaintenance
	case healthy == len(results) && degraded == 0:
		return storage.MonitorStatusUp
	case failing == len(results):
		return storage.MonitorStatusDown
	default:
		return storage.MonitorStatusDowngraded
	}
}

// Reclassify converts a probe result into the row to persist. A success
// slower than the monitor's threshold becomes degraded. Headers and body are
// kept only for outcomes that are neither success nor degraded.
func Reclassify(m *storage.Monitor, r checks.Result) storage.CheckResult {
	row := toCheckResult(r)

	if row.Result == storage.OutcomeSuccess && m.ResponseTimeThreshold != nil && row.ResponseTime > *m.ResponseTimeThreshold {
		row.Result = storage.OutcomeDegraded
		if row.ErrorMessage == nil {
			msg := fmt.Sprintf("Response time %dms exceeds threshold of %dms", row.ResponseTime, *m.ResponseTimeThreshold)
			row.ErrorMessage = &msg
		}
	}

	if !row.Result.Healthy() {
		if len(r.ResponseHeaders) > 0 {
			if raw, err := json.Marshal(r.ResponseHeaders); err == nil {
				headers := string(raw)
				row.ResponseHeaders = &headers
			}
		}
		if r.ResponseBody != "" {
			body := r.ResponseBody
			row.ResponseBody = &body
		}
	}

	return row
}

// Aggregator turns a round of probe results into persisted history, monitor
// status, incidents and notifications.
type Aggregator struct {
	store     Store
	incidents *IncidentManager
	notifier  Notifier
}

func NewAggregator(store Store, incidents *IncidentManager, notifier Notifier) *Aggregator {
	return &Aggregator{store: store, incidents: incidents, notifier: notifier}
}

// ProcessResults handles each monitor's results in turn. For each monitor
// the rows are inserted before the status update, so history is durable
// even if the status write fails.
func (a *Aggregator) ProcessResults(ctx context.Context, monitors map[int64]*storage.Monitor, results []checks.Result) {
	grouped := make(map[int64][]checks.Result)
	for _, r := range results {
		grouped[r.MonitorID] = append(grouped[r.MonitorID], r)
	}

	ids := make([]int64, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m, ok := monitors[id]
		if !ok {
			var err error
			if m, err = a.store.GetMonitor(ctx, id); err != nil {
				log.Error().Int64("monitor_id", id).Err(err).Msg("Failed to load monitor for results")
				continue
			}
		}
		a.processMonitor(ctx, m, grouped[id])
	}
}

func (a *Aggregator) processMonitor(ctx context.Context, m *storage.Monitor, results []checks.Result) {
	rows := make([]storage.CheckResult, len(results))
	for i, r := range results {
		rows[i] = Reclassify(m, r)
	}

	if err := a.store.InsertCheckResults(ctx, rows); err != nil {
		log.Error().Int64("monitor_id", m.ID).Err(err).Msg("Failed to insert check results")
		return
	}
	for _, row := range rows {
		metrics.ObserveCheck(row.Location, string(row.Result), row.RetryCount)
	}

	oldStatus := m.Status
	newStatus := ResolveStatus(rows)
	if err := a.store.UpdateMonitorStatus(ctx, m.ID, newStatus); err != nil {
		log.Error().Int64("monitor_id", m.ID).Str("status", string(newStatus)).Err(err).Msg("Failed to update monitor status")
	}

	events := a.incidents.Manage(ctx, m, rows)

	if oldStatus != newStatus {
		log.Info().Int64("monitor_id", m.ID).Str("from", string(oldStatus)).Str("to", string(newStatus)).Msg("Monitor status changed")
	}

	a.notifier.Notify(alert.Notification{
		MonitorID:      m.ID,
		MonitorName:    m.Name,
		TeamID:         m.TeamID,
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		Results:        rows,
		IncidentEvents: events,
	})
}
