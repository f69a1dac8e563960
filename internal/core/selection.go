package core

import (
	"time"

	"uplight/internal/storage"
)

// DueWork is the classification of all non-paused monitors for one round.
type DueWork struct {
	// ToCheck are probed this round, including monitors leaving maintenance.
	ToCheck []storage.Monitor

	// InMaintenance have an active window, whether they just entered it or not.
	InMaintenance []storage.Monitor

	// ExitingMaintenance were in maintenance without an active window now.
	// They are also in ToCheck with status initializing.
	ExitingMaintenance []storage.Monitor
}

// SelectDueWork decides what a round does with each monitor. It performs no I/O.
//
// A monitor in an active window goes to maintenance regardless of status.
// A monitor still marked maintenance without a window leaves it and is due
// immediately. Initializing monitors are always due; the rest are due once
// a full interval has passed since the last round (UpdatedAt).
func SelectDueWork(monitors []storage.Monitor, inMaintenance map[int64]bool, now time.Time) DueWork {
	var work DueWork

	for _, m := range monitors {
		switch {
		case m.Status == storage.MonitorStatusPaused:
			continue
		case inMaintenance[m.ID]:
			work.InMaintenance = append(work.InMaintenance, m)
		case m.Status == storage.MonitorStatusMaintenance:
			work.ExitingMaintenance = append(work.ExitingMaintenance, m)
			m.Status = storage.MonitorStatusInitializing
			work.ToCheck = append(work.ToCheck, m)
		case m.Status == storage.MonitorStatusInitializing:
			work.ToCheck = append(work.ToCheck, m)
		default:
			next := m.UpdatedAt.Add(time.Duration(m.Interval) * time.Millisecond)
			if !now.Before(next) {
				work.ToCheck = append(work.ToCheck, m)
			}
		}
	}

	return work
}

// MaintenanceSet indexes active windows by monitor id.
func MaintenanceSet(windows []storage.Maintenance, now time.Time) map[int64]bool {
	set := make(map[int64]bool, len(windows))
	for i := range windows {
		if windows[i].Active(now) {
			set[windows[i].MonitorID] = true
		}
	}
	return set
}

// MaintenanceResults builds the synthetic rows recorded for a monitor in
// maintenance: one per configured location, no network call.
func MaintenanceResults(m *storage.Monitor, now time.Time) []storage.CheckResult {
	locations := m.Locations()
	rows := make([]storage.CheckResult, 0, len(locations))
	for _, loc := range locations {
		rows = append(rows, storage.CheckResult{
			MonitorID: m.ID,
			Location:  loc,
			Result:    storage.OutcomeMaintenance,
			CheckedAt: now.UTC(),
		})
	}
	return rows
}
