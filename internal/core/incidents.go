package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"uplight/internal/alert"
	"uplight/internal/annotator"
	"uplight/internal/metrics"
	"uplight/internal/storage"

	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidIncidentStatus rejects transitions other than active, acknowledged and fixing.
	ErrInvalidIncidentStatus = errors.New("status must be one of active, acknowledged, fixing")

	// ErrIncidentResolved rejects user transitions on a closed incident.
	ErrIncidentResolved = errors.New("incident is already resolved")
)

// keyedMutex hands out one mutex per monitor id. An entry lives only while
// some caller holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*refMutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// size reports how many ids currently have an entry.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// IncidentManager opens and resolves incidents so that each (monitor, cause)
// has at most one open incident.
type IncidentManager struct {
	store           Store
	annotator       annotator.Annotator
	annotateTimeout time.Duration
	locks           keyedMutex
	now             func() time.Time
}

func NewIncidentManager(store Store, ann annotator.Annotator, annotateTimeout time.Duration) *IncidentManager {
	if ann == nil {
		ann = annotator.Disabled{}
	}
	if annotateTimeout <= 0 {
		annotateTimeout = 20 * time.Second
	}
	return &IncidentManager{
		store:           store,
		annotator:       ann,
		annotateTimeout: annotateTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type openedIncident struct {
	incident *storage.Incident
	sample   storage.CheckResult
}

// Manage reconciles open incidents with the causes present in one round.
//
// A cause without an open incident gets a new active one. An open incident
// whose cause is absent is resolved. Incidents whose cause persists are not
// touched. Calls for the same monitor are serialized.
func (im *IncidentManager) Manage(ctx context.Context, m *storage.Monitor, results []storage.CheckResult) []alert.IncidentEvent {
	unlock := im.locks.lock(m.ID)
	defer unlock()

	// Ordered by first appearance; the sample feeds the annotator.
	var causes []storage.Cause
	samples := make(map[storage.Cause]storage.CheckResult)
	for _, r := range results {
		if r.Result == storage.OutcomeSuccess || r.Cause == nil || *r.Cause == "" {
			continue
		}
		if _, seen := samples[*r.Cause]; !seen {
			causes = append(causes, *r.Cause)
			samples[*r.Cause] = r
		}
	}

	open, err := im.store.ListOpenIncidents(ctx, m.ID)
	if err != nil {
		log.Error().Int64("monitor_id", m.ID).Err(err).Msg("Failed to load open incidents")
		return nil
	}

	openByCause := make(map[storage.Cause]storage.Incident, len(open))
	for _, inc := range open {
		if _, exists := openByCause[inc.Cause]; !exists {
			openByCause[inc.Cause] = inc
		}
	}

	now := im.now()
	var events []alert.IncidentEvent
	var opened []openedIncident

	for _, cause := range causes {
		if _, exists := openByCause[cause]; exists {
			continue
		}

		inc := &storage.Incident{
			MonitorID: m.ID,
			Cause:     cause,
			Status:    storage.IncidentStatusActive,
			StartedAt: now,
		}
		if err := im.store.InsertIncident(ctx, inc); err != nil {
			if storage.IsDuplicate(err) {
				log.Debug().Int64("monitor_id", m.ID).Str("cause", string(cause)).Msg("Open incident already exists, skipping")
				continue
			}
			log.Error().Int64("monitor_id", m.ID).Str("cause", string(cause)).Err(err).Msg("Failed to create incident")
			continue
		}

		metrics.IncidentOpened(string(cause))
		log.Info().Int64("monitor_id", m.ID).Int64("incident_id", inc.ID).Str("cause", string(cause)).Msg("Incident opened")

		events = append(events, alert.IncidentEvent{Type: alert.IncidentCreated, IncidentID: inc.ID, Cause: cause})
		opened = append(opened, openedIncident{incident: inc, sample: samples[cause]})
	}

	current := make(map[storage.Cause]bool, len(causes))
	for _, c := range causes {
		current[c] = true
	}

	for _, inc := range open {
		if current[inc.Cause] {
			continue
		}

		status := storage.IncidentStatusResolved
		resolvedAt := now
		if err := im.store.UpdateIncident(ctx, inc.ID, storage.IncidentPatch{Status: &status, ResolvedAt: &resolvedAt}); err != nil {
			log.Error().Int64("monitor_id", m.ID).Int64("incident_id", inc.ID).Err(err).Msg("Failed to resolve incident")
			continue
		}

		duration := now.Sub(inc.StartedAt)
		if duration < 0 {
			duration = 0
		}

		metrics.IncidentResolved(string(inc.Cause))
		log.Info().Int64("monitor_id", m.ID).Int64("incident_id", inc.ID).Str("cause", string(inc.Cause)).Dur("duration", duration).Msg("Incident resolved")

		events = append(events, alert.IncidentEvent{Type: alert.IncidentResolved, IncidentID: inc.ID, Cause: inc.Cause, Duration: duration})
	}

	im.annotate(ctx, m, opened)

	return events
}

// annotate enriches new incidents concurrently and waits for all of them.
// A failed annotation leaves the incident's fields empty.
func (im *IncidentManager) annotate(ctx context.Context, m *storage.Monitor, opened []openedIncident) {
	var wg sync.WaitGroup

	for _, o := range opened {
		wg.Add(1)
		go func(o openedIncident) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					metrics.ObserveAnnotation(metrics.AnnotationError)
					log.Error().Int64("incident_id", o.incident.ID).Interface("panic", r).Msg("Incident annotation panicked")
				}
			}()

			actx, cancel := context.WithTimeout(ctx, im.annotateTimeout)
			defer cancel()

			annotation, err := im.annotator.Annotate(actx, annotationRequest(m, o.incident.Cause, o.sample))
			if errors.Is(err, annotator.ErrDisabled) {
				metrics.ObserveAnnotation(metrics.AnnotationSkipped)
				return
			}
			if err != nil {
				metrics.ObserveAnnotation(metrics.AnnotationError)
				log.Warn().Int64("incident_id", o.incident.ID).Str("cause", string(o.incident.Cause)).Err(err).Msg("Failed to annotate incident")
				return
			}

			patch := storage.IncidentPatch{
				Title:       &annotation.Title,
				Description: &annotation.Description,
				Hint:        &annotation.Hint,
				Severity:    &annotation.Severity,
			}
			if err := im.store.UpdateIncident(ctx, o.incident.ID, patch); err != nil {
				metrics.ObserveAnnotation(metrics.AnnotationError)
				log.Error().Int64("incident_id", o.incident.ID).Err(err).Msg("Failed to save incident annotation")
				return
			}
			metrics.ObserveAnnotation(metrics.AnnotationSuccess)
		}(o)
	}

	wg.Wait()
}

func annotationRequest(m *storage.Monitor, cause storage.Cause, sample storage.CheckResult) annotator.Request {
	req := annotator.Request{
		Cause:        cause,
		MonitorName:  m.Name,
		MonitorURL:   m.Target(),
		StatusCode:   sample.StatusCode,
		ResponseTime: sample.ResponseTime,
		Location:     sample.Location,
	}
	if sample.ErrorMessage != nil {
		req.ErrorMessage = *sample.ErrorMessage
	}
	return req
}

// UpdateStatus applies a user transition to an open incident. The
// acknowledged and fixing timestamps are stamped only the first time.
func (im *IncidentManager) UpdateStatus(ctx context.Context, id int64, status storage.IncidentStatus) (*storage.Incident, error) {
	switch status {
	case storage.IncidentStatusActive, storage.IncidentStatusAcknowledged, storage.IncidentStatusFixing:
	default:
		return nil, ErrInvalidIncidentStatus
	}

	inc, err := im.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := im.locks.lock(inc.MonitorID)
	defer unlock()

	// Re-read under the lock; a round may have resolved it meanwhile.
	if inc, err = im.store.GetIncident(ctx, id); err != nil {
		return nil, err
	}
	if inc.Status == storage.IncidentStatusResolved {
		return nil, ErrIncidentResolved
	}

	now := im.now()
	patch := storage.IncidentPatch{Status: &status}
	if status == storage.IncidentStatusAcknowledged && inc.AcknowledgedAt == nil {
		patch.AcknowledgedAt = &now
	}
	if status == storage.IncidentStatusFixing && inc.FixingAt == nil {
		patch.FixingAt = &now
	}

	if err := im.store.UpdateIncident(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("failed to update incident: %w", err)
	}

	log.Info().Int64("incident_id", id).Int64("monitor_id", inc.MonitorID).Str("status", string(status)).Msg("Incident status updated")
	return im.store.GetIncident(ctx, id)
}
