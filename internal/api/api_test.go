package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uplight/internal/checks"
	"uplight/internal/config"
	"uplight/internal/core"
	"uplight/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeEngine struct {
	running  bool
	pinged   []string
	updated  map[int64]storage.IncidentStatus
	failWith error
}

func (e *fakeEngine) IsRunning() bool { return e.running }

func (e *fakeEngine) Status() core.Status {
	return core.Status{Running: e.running, Jobs: 2}
}

func (e *fakeEngine) RecordHeartbeatPing(_ context.Context, slug string) (*storage.Heartbeat, error) {
	if slug != "nightly" {
		return nil, storage.ErrNotFound
	}
	e.pinged = append(e.pinged, slug)
	now := time.Now().UTC()
	return &storage.Heartbeat{Slug: slug, Status: storage.HeartbeatStatusUp, LastPingAt: &now}, nil
}

func (e *fakeEngine) UpdateIncidentStatus(_ context.Context, id int64, status storage.IncidentStatus) (*storage.Incident, error) {
	if e.failWith != nil {
		return nil, e.failWith
	}
	if id != 7 {
		return nil, storage.ErrNotFound
	}
	if e.updated == nil {
		e.updated = make(map[int64]storage.IncidentStatus)
	}
	e.updated[id] = status
	return &storage.Incident{ID: id, Status: status}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeExecutor struct {
	err error
	got checks.CheckRequest
}

func (f *fakeExecutor) Execute(_ context.Context, req checks.CheckRequest) (checks.Result, error) {
	f.got = req
	if f.err != nil {
		return checks.Result{}, f.err
	}
	return checks.Result{MonitorID: req.MonitorID, Location: req.Location, Outcome: storage.OutcomeSuccess, ResponseTime: 42}, nil
}

func newTestServer(engine *fakeEngine, exec *fakeExecutor, db Pinger) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "uplight_test_total", Help: "test"}))

	return NewServer(config.ServerConfig{Addr: ":0"}, Deps{
		Engine:   engine,
		Store:    db,
		Local:    exec,
		Gatherer: reg,
	})
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestPublicEndpoints(t *testing.T) {
	engine := &fakeEngine{running: true}
	s := newTestServer(engine, &fakeExecutor{}, fakePinger{})

	t.Run("ping answers pong with a request id", func(t *testing.T) {
		w := do(s, http.MethodGet, "/api/ping", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "pong") {
			t.Errorf("Unexpected body %s", w.Body.String())
		}
		if w.Header().Get(RequestIDHeader) == "" {
			t.Error("Expected a request id header")
		}
	})

	t.Run("health is healthy when everything runs", func(t *testing.T) {
		w := do(s, http.MethodGet, "/api/health", "")
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode body: %v", err)
		}
		if body["status"] != "healthy" {
			t.Errorf("Expected healthy, got %v", body["status"])
		}
	})

	t.Run("health is degraded when the database is down", func(t *testing.T) {
		down := newTestServer(&fakeEngine{running: true}, &fakeExecutor{}, fakePinger{err: errors.New("disk full")})
		w := do(down, http.MethodGet, "/api/health", "")
		if !strings.Contains(w.Body.String(), `"status":"degraded"`) {
			t.Errorf("Expected degraded, got %s", w.Body.String())
		}
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		w := do(s, http.MethodGet, "/metrics", "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "uplight_test_total") {
			t.Errorf("Unexpected metrics response %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown route is 404", func(t *testing.T) {
		if w := do(s, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestHeartbeatPing(t *testing.T) {
	engine := &fakeEngine{running: true}
	s := newTestServer(engine, &fakeExecutor{}, fakePinger{})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method+" records the ping", func(t *testing.T) {
			w := do(s, method, "/api/v1/heartbeats/nightly/ping", "")
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), `"status":"up"`) {
				t.Errorf("Unexpected body %s", w.Body.String())
			}
		})
	}

	t.Run("unknown slug is 404", func(t *testing.T) {
		if w := do(s, http.MethodPost, "/api/v1/heartbeats/missing/ping", ""); w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	if len(engine.pinged) != 2 {
		t.Errorf("Expected 2 pings, got %d", len(engine.pinged))
	}
}

func TestIncidentStatus(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		failWith error
		expected int
	}{
		{"acknowledge", "/api/v1/incidents/7", `{"status":"acknowledged"}`, nil, http.StatusOK},
		{"resolved is not a user status", "/api/v1/incidents/7", `{"status":"resolved"}`, nil, http.StatusBadRequest},
		{"missing status", "/api/v1/incidents/7", `{}`, nil, http.StatusBadRequest},
		{"bad id", "/api/v1/incidents/abc", `{"status":"fixing"}`, nil, http.StatusBadRequest},
		{"unknown incident", "/api/v1/incidents/8", `{"status":"fixing"}`, nil, http.StatusNotFound},
		{"already resolved", "/api/v1/incidents/7", `{"status":"fixing"}`, core.ErrIncidentResolved, http.StatusConflict},
		{"store failure", "/api/v1/incidents/7", `{"status":"fixing"}`, errors.New("locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeEngine{running: true, failWith: tt.failWith}, &fakeExecutor{}, fakePinger{})
			if w := do(s, http.MethodPatch, tt.path, tt.body); w.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestProbeEndpoint(t *testing.T) {
	t.Run("returns the bare result", func(t *testing.T) {
		exec := &fakeExecutor{}
		s := newTestServer(&fakeEngine{}, exec, nil)

		w := do(s, http.MethodPost, "/internal/v1/check", `{"monitorId":3,"location":"eeur","type":"http","url":"https://example.com"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var result checks.Result
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("Failed to decode result: %v", err)
		}
		if result.Outcome != storage.OutcomeSuccess || result.MonitorID != 3 || result.Location != "eeur" {
			t.Errorf("Unexpected result %+v", result)
		}
		if exec.got.URL != "https://example.com" {
			t.Errorf("Expected url to reach the executor, got %q", exec.got.URL)
		}
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		s := newTestServer(&fakeEngine{}, &fakeExecutor{}, nil)
		w := do(s, http.MethodPost, "/internal/v1/check", `{`)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"error"`) {
			t.Errorf("Unexpected response %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("executor failure is 500 with error", func(t *testing.T) {
		s := newTestServer(&fakeEngine{}, &fakeExecutor{err: errors.New("resolver crashed")}, nil)
		w := do(s, http.MethodPost, "/internal/v1/check", `{"type":"tcp","host":"db","port":5432}`)
		if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "resolver crashed") {
			t.Errorf("Unexpected response %d %s", w.Code, w.Body.String())
		}
	})
}
