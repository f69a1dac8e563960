package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"uplight/internal/alert"
	"uplight/internal/annotator"
	"uplight/internal/checks"
	"uplight/internal/executor"
	"uplight/internal/storage"
)

// memStore is an in-memory Store that enforces one open incident per
// (monitor, cause) and one ongoing incident per heartbeat.
type memStore struct {
	mu sync.Mutex

	monitors     map[int64]*storage.Monitor
	maintenances []storage.Maintenance
	results      []storage.CheckResult
	incidents    map[int64]*storage.Incident
	heartbeats   map[int64]*storage.Heartbeat
	hbIncidents  map[int64]*storage.HeartbeatIncident
	nextID       int64

	failInsertResults error
	statusWrites      []storage.MonitorStatus
}

func newMemStore() *memStore {
	return &memStore{
		monitors:    make(map[int64]*storage.Monitor),
		incidents:   make(map[int64]*storage.Incident),
		heartbeats:  make(map[int64]*storage.Heartbeat),
		hbIncidents: make(map[int64]*storage.HeartbeatIncident),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addMonitor(m storage.Monitor) *storage.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.id()
	}
	s.monitors[m.ID] = &m
	return &m
}

func (s *memStore) addHeartbeat(h storage.Heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == 0 {
		h.ID = s.id()
	}
	s.heartbeats[h.ID] = &h
}

func (s *memStore) monitor(id int64) storage.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.monitors[id]
}

func (s *memStore) allIncidents(monitorID int64) []storage.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Incident
	for _, inc := range s.incidents {
		if inc.MonitorID == monitorID {
			out = append(out, *inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) resultRows(monitorID int64) []storage.CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.CheckResult
	for _, r := range s.results {
		if r.MonitorID == monitorID {
			out = append(out, r)
		}
	}
	return out
}

func (s *memStore) ListMonitors(_ context.Context, filter storage.MonitorFilter) ([]storage.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Monitor
	for _, m := range s.monitors {
		if filter.ExcludePaused && m.Status == storage.MonitorStatusPaused {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetMonitor(_ context.Context, id int64) (*storage.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) UpdateMonitorStatus(_ context.Context, id int64, status storage.MonitorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	s.statusWrites = append(s.statusWrites, status)
	return nil
}

func (s *memStore) ListActiveMaintenances(_ context.Context, now time.Time) ([]storage.Maintenance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Maintenance
	for _, w := range s.maintenances {
		if w.Active(now) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memStore) InsertCheckResults(_ context.Context, rows []storage.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertResults != nil {
		return s.failInsertResults
	}
	for _, r := range rows {
		r.ID = s.id()
		s.results = append(s.results, r)
	}
	return nil
}

func (s *memStore) ListOpenIncidents(_ context.Context, monitorID int64) ([]storage.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Incident
	for _, inc := range s.incidents {
		if inc.MonitorID == monitorID && inc.Status != storage.IncidentStatusResolved {
			out = append(out, *inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetIncident(_ context.Context, id int64) (*storage.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (s *memStore) InsertIncident(_ context.Context, inc *storage.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.incidents {
		if existing.MonitorID == inc.MonitorID && existing.Cause == inc.Cause && existing.Status != storage.IncidentStatusResolved {
			return storage.ErrDuplicate
		}
	}
	inc.ID = s.id()
	cp := *inc
	s.incidents[inc.ID] = &cp
	return nil
}

func (s *memStore) UpdateIncident(_ context.Context, id int64, patch storage.IncidentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Status != nil {
		inc.Status = *patch.Status
	}
	if patch.Title != nil {
		inc.Title = patch.Title
	}
	if patch.Description != nil {
		inc.Description = patch.Description
	}
	if patch.Hint != nil {
		inc.Hint = patch.Hint
	}
	if patch.Severity != nil {
		inc.Severity = patch.Severity
	}
	if patch.AcknowledgedAt != nil {
		inc.AcknowledgedAt = patch.AcknowledgedAt
	}
	if patch.FixingAt != nil {
		inc.FixingAt = patch.FixingAt
	}
	if patch.ResolvedAt != nil {
		inc.ResolvedAt = patch.ResolvedAt
	}
	return nil
}

func (s *memStore) ListHeartbeats(_ context.Context, excludePaused bool) ([]storage.Heartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Heartbeat
	for _, h := range s.heartbeats {
		if excludePaused && h.Status == storage.HeartbeatStatusPaused {
			continue
		}
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetHeartbeatBySlug(_ context.Context, slug string) (*storage.Heartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.heartbeats {
		if h.Slug == slug {
			cp := *h
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) heartbeat(id int64) storage.Heartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.heartbeats[id]
}

func (s *memStore) UpdateHeartbeat(_ context.Context, id int64, patch storage.HeartbeatPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.heartbeats[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Status != nil {
		h.Status = *patch.Status
	}
	if patch.LastPingAt != nil {
		h.LastPingAt = patch.LastPingAt
	}
	return nil
}

func (s *memStore) GetOngoingHeartbeatIncident(_ context.Context, heartbeatID int64) (*storage.HeartbeatIncident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inc := range s.hbIncidents {
		if inc.HeartbeatID == heartbeatID && inc.Status == storage.HeartbeatIncidentOngoing {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) InsertHeartbeatIncident(_ context.Context, inc *storage.HeartbeatIncident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.hbIncidents {
		if existing.HeartbeatID == inc.HeartbeatID && existing.Status == storage.HeartbeatIncidentOngoing {
			return storage.ErrDuplicate
		}
	}
	inc.ID = s.id()
	cp := *inc
	s.hbIncidents[inc.ID] = &cp
	return nil
}

func (s *memStore) ResolveHeartbeatIncidents(_ context.Context, heartbeatID int64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, inc := range s.hbIncidents {
		if inc.HeartbeatID == heartbeatID && inc.Status == storage.HeartbeatIncidentOngoing {
			inc.Status = storage.HeartbeatIncidentResolved
			resolved := now
			inc.ResolvedAt = &resolved
			n++
		}
	}
	return n, nil
}

func (s *memStore) heartbeatIncidents(heartbeatID int64) []storage.HeartbeatIncident {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.HeartbeatIncident
	for _, inc := range s.hbIncidents {
		if inc.HeartbeatID == heartbeatID {
			out = append(out, *inc)
		}
	}
	return out
}

// recordingNotifier keeps everything it is handed.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []alert.Notification
	events        []alert.Event
	closed        bool
}

func (n *recordingNotifier) Notify(note alert.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, note)
}

func (n *recordingNotifier) Publish(events ...alert.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
}

func (n *recordingNotifier) published() []alert.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]alert.Event(nil), n.events...)
}

func (n *recordingNotifier) notes() []alert.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]alert.Notification(nil), n.notifications...)
}

// scriptedExecutor answers per location with a canned result or error.
type scriptedExecutor struct {
	mu      sync.Mutex
	results map[string]checks.Result
	errs    map[string]error
	panics  map[string]bool
	calls   int
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		results: make(map[string]checks.Result),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
	}
}

func (e *scriptedExecutor) set(location string, r checks.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[location] = r
}

func (e *scriptedExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *scriptedExecutor) For(string) executor.Executor { return e }

func (e *scriptedExecutor) Execute(_ context.Context, req checks.CheckRequest) (checks.Result, error) {
	e.mu.Lock()
	e.calls++
	r, hasResult := e.results[req.Location]
	err := e.errs[req.Location]
	shouldPanic := e.panics[req.Location]
	e.mu.Unlock()

	if shouldPanic {
		panic("executor exploded")
	}
	if err != nil {
		return checks.Result{}, err
	}
	if !hasResult {
		r = checks.Result{Outcome: storage.OutcomeSuccess, ResponseTime: 50}
	}
	r.CheckedAt = time.Now().UTC()
	return r, nil
}

// stubAnnotator returns a fixed annotation or error.
type stubAnnotator struct {
	annotation *annotator.Annotation
	err        error

	mu    sync.Mutex
	calls []annotator.Request
}

func (a *stubAnnotator) Annotate(_ context.Context, req annotator.Request) (*annotator.Annotation, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.annotation, nil
}

var errBoom = errors.New("boom")

func httpMonitor(locations ...string) storage.Monitor {
	url := "https://example.com"
	m := storage.Monitor{
		TeamID:   1,
		Name:     "Example",
		Type:     storage.MonitorTypeHTTP,
		Interval: 60000,
		Timeout:  30,
		URL:      &url,
		Status:   storage.MonitorStatusInitializing,
	}
	m.SetLocations(locations)
	return m
}

func ptr[T any](v T) *T { return &v }
