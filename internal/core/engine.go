// Package core runs the uptime engine: it picks the monitors due each
// round, dispatches probes to their regions, folds the results into monitor
// status and incidents, and watches heartbeats for missed pings.
//
// A round is driven by two periodic entry points:
//   - HandleMonitorChecks
//   - HandleHeartbeatChecks
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"uplight/internal/alert"
	"uplight/internal/annotator"
	"uplight/internal/config"
	"uplight/internal/metrics"
	"uplight/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	JobMonitorChecks   = "monitor_checks"
	JobHeartbeatChecks = "heartbeat_checks"
)

// Engine orchestrates scheduled rounds and the user-facing transitions
// that share their state.
type Engine struct {
	config     *config.Config
	store      Store
	notifier   Notifier
	lock       RoundLock
	scheduler  *Scheduler
	dispatcher *Dispatcher
	aggregator *Aggregator
	incidents  *IncidentManager
	heartbeats *HeartbeatMonitor

	now func() time.Time

	running bool
	mu      sync.RWMutex
}

// NewEngine wires the engine. A nil annotator disables annotation and a nil
// lock runs every round locally.
//
// Parameters:
//   - cfg: Application configuration
//   - store: Persistence for monitors, results, incidents and heartbeats
//   - executors: Picks the executor for each location
//   - notifier: Receives round outcomes and heartbeat events
//   - ann: Incident annotator
//   - lock: Cross-replica round lock
//
// Returns:
//   - *Engine: Initialized engine instance
func NewEngine(cfg *config.Config, store Store, executors ExecutorSource, notifier Notifier, ann annotator.Annotator, lock RoundLock) *Engine {
	if lock == nil {
		lock = NoopLock{}
	}

	incidents := NewIncidentManager(store, ann, cfg.Annotator.Timeout)

	return &Engine{
		config:     cfg,
		store:      store,
		notifier:   notifier,
		lock:       lock,
		scheduler:  NewScheduler(cfg.Scheduler),
		dispatcher: NewDispatcher(executors, cfg.Dispatch.MaxConcurrency),
		aggregator: NewAggregator(store, incidents, notifier),
		incidents:  incidents,
		heartbeats: NewHeartbeatMonitor(store, notifier),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start starts the scheduler and registers both periodic jobs.
//
// Parameters:
//   - ctx: Context bounding the engine's lifetime
//
// Returns:
//   - error: Any error that occurred during startup
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine is already running")
	}

	log.Info().Msg("Starting monitoring engine")

	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	jobs := []*ScheduledJob{
		{ID: JobMonitorChecks, Interval: e.config.Scheduler.MonitorInterval, Task: e.roundTask(e.HandleMonitorChecks)},
		{ID: JobHeartbeatChecks, Interval: e.config.Scheduler.HeartbeatInterval, Task: e.roundTask(e.HandleHeartbeatChecks)},
	}
	for _, job := range jobs {
		if err := e.scheduler.AddJob(job); err != nil {
			e.scheduler.Stop()
			return fmt.Errorf("failed to schedule %s: %w", job.ID, err)
		}
	}

	e.running = true
	log.Info().
		Dur("monitor_interval", e.config.Scheduler.MonitorInterval).
		Dur("heartbeat_interval", e.config.Scheduler.HeartbeatInterval).
		Msg("Monitoring engine started successfully")

	return nil
}

// roundTask detaches a round from the scheduler's cancellation so a round
// that has started always reaches its writes; Stop waits for it.
func (e *Engine) roundTask(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return fn(context.WithoutCancel(ctx))
	}
}

// IsRunning returns whether the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop stops the scheduler, waits for running rounds and flushes
// notifications.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	log.Info().Msg("Stopping monitoring engine")

	e.scheduler.Stop()
	e.notifier.Close()

	e.running = false
	log.Info().Msg("Monitoring engine stopped")
}

// HandleMonitorChecks runs one monitor round:
//  1. select due monitors and apply maintenance transitions
//  2. dispatch one probe per (monitor, location)
//  3. persist results, update status, manage incidents, notify
//
// Probe failures never fail the round. An error means the round could not
// load its work.
func (e *Engine) HandleMonitorChecks(ctx context.Context) error {
	start := time.Now()
	roundID := uuid.NewString()
	logger := log.With().Str("round_id", roundID).Str("job_id", JobMonitorChecks).Logger()

	release, ok := e.acquire(ctx, JobMonitorChecks)
	if !ok {
		logger.Debug().Msg("Round lock held elsewhere, skipping round")
		return nil
	}
	defer release()

	now := e.now()

	monitors, err := e.store.ListMonitors(ctx, storage.MonitorFilter{ExcludePaused: true})
	if err != nil {
		return fmt.Errorf("failed to list monitors: %w", err)
	}
	windows, err := e.store.ListActiveMaintenances(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list maintenances: %w", err)
	}

	work := SelectDueWork(monitors, MaintenanceSet(windows, now), now)

	for i := range work.InMaintenance {
		e.recordMaintenance(ctx, &work.InMaintenance[i], now)
	}

	for _, m := range work.ExitingMaintenance {
		if err := e.store.UpdateMonitorStatus(ctx, m.ID, storage.MonitorStatusInitializing); err != nil {
			logger.Error().Int64("monitor_id", m.ID).Err(err).Msg("Failed to end maintenance")
			continue
		}
		logger.Info().Int64("monitor_id", m.ID).Msg("Monitor left maintenance")
	}

	if len(work.ToCheck) > 0 {
		results := e.dispatcher.Dispatch(ctx, work.ToCheck)

		byID := make(map[int64]*storage.Monitor, len(work.ToCheck))
		for i := range work.ToCheck {
			byID[work.ToCheck[i].ID] = &work.ToCheck[i]
		}
		e.aggregator.ProcessResults(ctx, byID, results)
	}

	elapsed := time.Since(start)
	metrics.ObserveRound(JobMonitorChecks, elapsed)
	logger.Info().
		Int("monitors", len(monitors)).
		Int("checked", len(work.ToCheck)).
		Int("maintenance", len(work.InMaintenance)).
		Dur("duration", elapsed).
		Msg("Monitor round completed")

	return nil
}

// recordMaintenance flips a monitor into maintenance on first sight and
// records one synthetic row per location. No probe runs.
func (e *Engine) recordMaintenance(ctx context.Context, m *storage.Monitor, now time.Time) {
	if m.Status != storage.MonitorStatusMaintenance {
		if err := e.store.UpdateMonitorStatus(ctx, m.ID, storage.MonitorStatusMaintenance); err != nil {
			log.Error().Int64("monitor_id", m.ID).Err(err).Msg("Failed to enter maintenance")
			return
		}
		log.Info().Int64("monitor_id", m.ID).Str("from", string(m.Status)).Msg("Monitor entered maintenance")

		e.notifier.Notify(alert.Notification{
			MonitorID:   m.ID,
			MonitorName: m.Name,
			TeamID:      m.TeamID,
			OldStatus:   m.Status,
			NewStatus:   storage.MonitorStatusMaintenance,
		})
	}

	if err := e.store.InsertCheckResults(ctx, MaintenanceResults(m, now)); err != nil {
		log.Error().Int64("monitor_id", m.ID).Err(err).Msg("Failed to record maintenance results")
	}
}

// HandleHeartbeatChecks runs one heartbeat lateness pass.
func (e *Engine) HandleHeartbeatChecks(ctx context.Context) error {
	start := time.Now()

	release, ok := e.acquire(ctx, JobHeartbeatChecks)
	if !ok {
		log.Debug().Str("job_id", JobHeartbeatChecks).Msg("Round lock held elsewhere, skipping round")
		return nil
	}
	defer release()

	if err := e.heartbeats.Check(ctx); err != nil {
		return fmt.Errorf("failed to check heartbeats: %w", err)
	}

	metrics.ObserveRound(JobHeartbeatChecks, time.Since(start))
	return nil
}

// acquire takes the round lock. A lock backend failure does not stop the
// round; only a lock held by another replica does.
func (e *Engine) acquire(ctx context.Context, name string) (func(), bool) {
	release, ok, err := e.lock.Acquire(ctx, name)
	if err != nil {
		log.Warn().Str("job_id", name).Err(err).Msg("Round lock unavailable, running without it")
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return release, true
}

// RecordHeartbeatPing records a ping for the heartbeat behind slug.
func (e *Engine) RecordHeartbeatPing(ctx context.Context, slug string) (*storage.Heartbeat, error) {
	return e.heartbeats.RecordPing(ctx, slug)
}

// UpdateIncidentStatus applies a user transition to an open incident.
func (e *Engine) UpdateIncidentStatus(ctx context.Context, id int64, status storage.IncidentStatus) (*storage.Incident, error) {
	return e.incidents.UpdateStatus(ctx, id, status)
}

// Status is the engine's view for health reporting.
type Status struct {
	Running bool             `json:"running"`
	Jobs    int              `json:"jobs"`
	Skipped map[string]int64 `json:"skipped_ticks,omitempty"`
}

// Status reports whether the engine runs and how many ticks each job dropped.
func (e *Engine) Status() Status {
	return Status{
		Running: e.IsRunning(),
		Jobs:    e.scheduler.GetJobCount(),
		Skipped: e.scheduler.skippedTicks(),
	}
}
