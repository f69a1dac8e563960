package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"uplight/internal/config"

	"github.com/rs/zerolog/log"
)

// ScheduledJob is a task run on a fixed interval.
type ScheduledJob struct {
	ID       string
	Interval time.Duration
	Task     func(context.Context) error

	stop     context.CancelFunc
	inFlight atomic.Bool
	skipped  atomic.Int64
}

// Skipped returns how many ticks were dropped because the previous run
// was still in progress or no worker was free.
func (j *ScheduledJob) Skipped() int64 {
	return j.skipped.Load()
}

// Scheduler runs periodic jobs on a bounded worker pool. Each job is
// single-flight: a tick that arrives while the previous run is still in
// progress is skipped, never queued.
type Scheduler struct {
	config config.SchedulerConfig

	jobs   map[string]*ScheduledJob
	jobsMu sync.RWMutex

	// workers holds one token per free worker.
	workers chan struct{}

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. A worker count below one is raised to one.
//
// Parameters:
//   - cfg: Scheduler configuration
//
// Returns:
//   - *Scheduler: Initialized scheduler instance
func NewScheduler(cfg config.SchedulerConfig) *Scheduler {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Scheduler{
		config:  cfg,
		jobs:    make(map[string]*ScheduledJob),
		workers: make(chan struct{}, cfg.WorkerCount),
	}
}

// Start fills the worker pool. Jobs added afterwards live until Stop or
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for len(s.workers) < cap(s.workers) {
		s.workers <- struct{}{}
	}

	s.running = true
	log.Info().Int("worker_count", s.config.WorkerCount).Msg("Scheduler started")
	return nil
}

// Stop cancels every job and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info().Msg("Stopping scheduler")
	s.cancel()

	s.jobsMu.Lock()
	s.jobs = make(map[string]*ScheduledJob)
	s.jobsMu.Unlock()

	s.wg.Wait()

	s.running = false
	log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job and runs it immediately, then on every tick.
//
// Parameters:
//   - job: Job to add and schedule
//
// Returns:
//   - error: If the scheduler is stopped, the ID is taken or the interval is invalid
func (s *Scheduler) AddJob(job *ScheduledJob) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s has non-positive interval", job.ID)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}

	jobCtx, stop := context.WithCancel(s.ctx)
	job.stop = stop
	s.jobs[job.ID] = job

	s.wg.Add(1)
	go s.loop(jobCtx, job)

	log.Debug().Str("job_id", job.ID).Dur("interval", job.Interval).Msg("Job added")
	return nil
}

// RemoveJob stops a job. A run already in progress finishes on its own.
func (s *Scheduler) RemoveJob(jobID string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job with ID %s not found", jobID)
	}

	job.stop()
	delete(s.jobs, jobID)

	log.Debug().Str("job_id", jobID).Msg("Job removed")
	return nil
}

// GetJobCount returns the number of scheduled jobs.
func (s *Scheduler) GetJobCount() int {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return len(s.jobs)
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// skippedTicks snapshots the drop counters of jobs that dropped any.
func (s *Scheduler) skippedTicks() map[string]int64 {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	var out map[string]int64
	for id, job := range s.jobs {
		if n := job.Skipped(); n > 0 {
			if out == nil {
				out = make(map[string]int64)
			}
			out[id] = n
		}
	}
	return out
}

// loop fires the job once right away and then on every tick until ctx ends.
func (s *Scheduler) loop(ctx context.Context, job *ScheduledJob) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	log.Debug().Str("job_id", job.ID).Msg("Job started")
	s.fire(ctx, job)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("job_id", job.ID).Msg("Job stopped")
			return
		case <-ticker.C:
			s.fire(ctx, job)
		}
	}
}

// fire starts one run on a free worker. The tick is dropped when the job
// is still running or the pool is exhausted.
func (s *Scheduler) fire(ctx context.Context, job *ScheduledJob) {
	if !job.inFlight.CompareAndSwap(false, true) {
		job.skipped.Add(1)
		log.Warn().Str("job_id", job.ID).Msg("Previous run still in progress, skipping tick")
		return
	}

	select {
	case <-s.workers:
	default:
		job.inFlight.Store(false)
		job.skipped.Add(1)
		log.Warn().Str("job_id", job.ID).Msg("No workers available, skipping job execution")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer job.inFlight.Store(false)
		defer func() { s.workers <- struct{}{} }()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("job_id", job.ID).Interface("panic", r).Msg("Job panicked")
			}
		}()

		s.executeWithRetry(ctx, job)
	}()
}

// executeWithRetry re-runs a failed task up to MaxRetries times, waiting
// one more second before each attempt.
func (s *Scheduler) executeWithRetry(ctx context.Context, job *ScheduledJob) {
	maxRetries := s.config.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}

		err := job.Task(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info().Str("job_id", job.ID).Int("attempt", attempt+1).Msg("Job succeeded after retry")
			}
			return
		}

		if attempt < maxRetries {
			log.Warn().Str("job_id", job.ID).Int("attempt", attempt+1).Err(err).Msg("Job failed, retrying")
		} else {
			log.Error().Str("job_id", job.ID).Int("attempts", attempt+1).Err(err).Msg("Job failed after all retries")
		}
	}
}
