package core

import (
	"context"
	"fmt"
	"sync"

	"uplight/internal/checks"
	"uplight/internal/metrics"
	"uplight/internal/storage"

	"github.com/rs/zerolog/log"
)

// Dispatcher fans a round out to one executor call per (monitor, location).
type Dispatcher struct {
	executors ExecutorSource
	sem       chan struct{} // nil when unbounded
}

// NewDispatcher creates a dispatcher. maxConcurrency <= 0 means no cap.
func NewDispatcher(executors ExecutorSource, maxConcurrency int) *Dispatcher {
	d := &Dispatcher{executors: executors}
	if maxConcurrency > 0 {
		d.sem = make(chan struct{}, maxConcurrency)
	}
	return d
}

type dispatchJob struct {
	monitor  *storage.Monitor
	location string
}

// Dispatch runs every pair concurrently and returns one result per pair in
// no particular order. It never fails: transport errors and panics become
// synthetic error results for that pair only.
func (d *Dispatcher) Dispatch(ctx context.Context, monitors []storage.Monitor) []checks.Result {
	var jobs []dispatchJob
	for i := range monitors {
		for _, loc := range monitors[i].Locations() {
			jobs = append(jobs, dispatchJob{monitor: &monitors[i], location: loc})
		}
	}

	results := make([]checks.Result, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job dispatchJob) {
			defer wg.Done()
			results[i] = d.dispatchOne(ctx, job)
		}(i, job)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, job dispatchJob) (result checks.Result) {
	req := checks.NewCheckRequest(job.monitor, job.location)

	if d.sem != nil {
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("monitor_id", req.MonitorID).Str("location", req.Location).Interface("panic", r).Msg("Check dispatch panicked")
			metrics.DispatchError(req.Location)
			result = checks.ErrorResult(&req, fmt.Sprintf("Dispatch failed: %v", r))
		}
	}()

	res, err := d.executors.For(job.location).Execute(ctx, req)
	if err != nil {
		log.Warn().Int64("monitor_id", req.MonitorID).Str("location", req.Location).Err(err).Msg("Check dispatch failed")
		metrics.DispatchError(req.Location)
		return checks.ErrorResult(&req, err.Error())
	}

	res.MonitorID = req.MonitorID
	res.Location = req.Location
	return res
}
