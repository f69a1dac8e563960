package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"uplight/internal/config"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(config.StorageConfig{
		Path:            filepath.Join(t.TempDir(), "uplight-test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newHTTPMonitor(t *testing.T, s *Storage, name string, locations ...string) *Monitor {
	t.Helper()

	m := &Monitor{
		Name:     name,
		Type:     MonitorTypeHTTP,
		Interval: 60000,
		Timeout:  10,
		URL:      strPtr("https://example.com/health"),
	}
	m.SetLocations(locations)
	if err := s.CreateMonitor(context.Background(), m); err != nil {
		t.Fatalf("Failed to create monitor: %v", err)
	}
	return m
}

func TestMigrations(t *testing.T) {
	s := newTestStorage(t)

	t.Run("Migrations are recorded", func(t *testing.T) {
		migrator, err := NewMigrator(s.db)
		if err != nil {
			t.Fatalf("Failed to create migrator: %v", err)
		}
		records, err := migrator.Status()
		if err != nil {
			t.Fatalf("Failed to read status: %v", err)
		}
		if len(records) != 5 {
			t.Errorf("Expected 5 applied migrations, got %d", len(records))
		}
	})

	t.Run("Second run applies nothing", func(t *testing.T) {
		migrator, err := NewMigrator(s.db)
		if err != nil {
			t.Fatalf("Failed to create migrator: %v", err)
		}
		applied, err := migrator.Migrate()
		if err != nil {
			t.Fatalf("Failed to migrate: %v", err)
		}
		if applied != 0 {
			t.Errorf("Expected 0 migrations applied, got %d", applied)
		}
	})
}

func TestMonitorStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	m := newHTTPMonitor(t, s, "api", "wnam", "eeur")

	t.Run("Create fills defaults", func(t *testing.T) {
		if m.ID == 0 {
			t.Fatal("Expected ID to be set")
		}
		got, err := s.GetMonitor(ctx, m.ID)
		if err != nil {
			t.Fatalf("Failed to get monitor: %v", err)
		}
		if got.Status != MonitorStatusInitializing {
			t.Errorf("Expected status initializing, got %s", got.Status)
		}
		if got.Method == nil || *got.Method != "GET" {
			t.Errorf("Expected default method GET, got %v", got.Method)
		}
		if codes := got.ExpectedStatusCodes(); len(codes) != 1 || codes[0] != 200 {
			t.Errorf("Expected [200], got %v", codes)
		}
		if locs := got.Locations(); len(locs) != 2 || locs[0] != "wnam" || locs[1] != "eeur" {
			t.Errorf("Expected [wnam eeur], got %v", locs)
		}
	})

	t.Run("Unknown location is rejected", func(t *testing.T) {
		bad := &Monitor{Name: "bad", Type: MonitorTypeHTTP, Interval: 60000, Timeout: 5, URL: strPtr("https://x.test")}
		bad.SetLocations([]string{"moon"})
		if err := s.CreateMonitor(ctx, bad); err == nil {
			t.Error("Expected error for unknown location")
		}
	})

	t.Run("Status update stamps last round time", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		if err := s.UpdateMonitorStatus(ctx, m.ID, MonitorStatusUp); err != nil {
			t.Fatalf("Failed to update status: %v", err)
		}
		got, err := s.GetMonitor(ctx, m.ID)
		if err != nil {
			t.Fatalf("Failed to get monitor: %v", err)
		}
		if got.Status != MonitorStatusUp {
			t.Errorf("Expected status up, got %s", got.Status)
		}
		if got.UpdatedAt.Before(before) {
			t.Errorf("Expected updated_at after %v, got %v", before, got.UpdatedAt)
		}
	})

	t.Run("Paused monitors are filtered", func(t *testing.T) {
		paused := newHTTPMonitor(t, s, "paused", "weur")
		if err := s.UpdateMonitorStatus(ctx, paused.ID, MonitorStatusPaused); err != nil {
			t.Fatalf("Failed to pause monitor: %v", err)
		}

		all, err := s.ListMonitors(ctx, MonitorFilter{})
		if err != nil {
			t.Fatalf("Failed to list monitors: %v", err)
		}
		active, err := s.ListMonitors(ctx, MonitorFilter{ExcludePaused: true})
		if err != nil {
			t.Fatalf("Failed to list monitors: %v", err)
		}
		if len(all) != len(active)+1 {
			t.Errorf("Expected exactly one paused monitor to be excluded, got %d vs %d", len(all), len(active))
		}
	})

	t.Run("Missing monitor", func(t *testing.T) {
		if err := s.UpdateMonitorStatus(ctx, 9999, MonitorStatusUp); !IsNotFound(err) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestMaintenanceStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	m := newHTTPMonitor(t, s, "api", "wnam")

	now := time.Now().UTC()
	windows := []Maintenance{
		{MonitorID: m.ID, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
		{MonitorID: m.ID, StartsAt: now.Add(-2 * time.Hour), EndsAt: now.Add(-time.Hour)},
		{MonitorID: m.ID, StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour)},
	}
	for i := range windows {
		if err := s.CreateMaintenance(ctx, &windows[i]); err != nil {
			t.Fatalf("Failed to create maintenance: %v", err)
		}
	}

	active, err := s.ListActiveMaintenances(ctx, now)
	if err != nil {
		t.Fatalf("Failed to list maintenances: %v", err)
	}
	if len(active) != 1 || active[0].ID != windows[0].ID {
		t.Errorf("Expected only the current window, got %+v", active)
	}

	if err := s.CreateMaintenance(ctx, &Maintenance{MonitorID: m.ID, StartsAt: now, EndsAt: now}); err == nil {
		t.Error("Expected error for empty window")
	}
}

func TestCheckResultStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	m := newHTTPMonitor(t, s, "api", "wnam", "eeur")

	cause := CauseHTTP5xx
	checkedAt := time.Now().UTC()
	rows := []CheckResult{
		{MonitorID: m.ID, Location: "wnam", Result: OutcomeSuccess, ResponseTime: 120, StatusCode: intPtr(200), CheckedAt: checkedAt},
		{MonitorID: m.ID, Location: "eeur", Result: OutcomeFailure, ResponseTime: 80, StatusCode: intPtr(503),
			Cause: &cause, ErrorMessage: strPtr("HTTP 503"), RetryCount: 0, CheckedAt: checkedAt},
	}
	if err := s.InsertCheckResults(ctx, rows); err != nil {
		t.Fatalf("Failed to insert results: %v", err)
	}
	if rows[0].ID == 0 || rows[1].ID == 0 {
		t.Error("Expected IDs to be filled")
	}

	got, err := s.ListCheckResults(ctx, m.ID, 10)
	if err != nil {
		t.Fatalf("Failed to list results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got))
	}

	var failure *CheckResult
	for i := range got {
		if got[i].Location == "eeur" {
			failure = &got[i]
		}
	}
	if failure == nil {
		t.Fatal("Expected eeur result")
	}
	if failure.Cause == nil || *failure.Cause != CauseHTTP5xx {
		t.Errorf("Expected cause http_5xx, got %v", failure.Cause)
	}
	if failure.StatusCode == nil || *failure.StatusCode != 503 {
		t.Errorf("Expected status 503, got %v", failure.StatusCode)
	}
	if !failure.CheckedAt.Equal(checkedAt) {
		t.Errorf("Expected checked_at %v, got %v", checkedAt, failure.CheckedAt)
	}
}

func TestIncidentStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	m := newHTTPMonitor(t, s, "api", "wnam")

	first := &Incident{MonitorID: m.ID, Cause: CauseTimeout, Status: IncidentStatusActive, StartedAt: time.Now().UTC()}
	if err := s.InsertIncident(ctx, first); err != nil {
		t.Fatalf("Failed to insert incident: %v", err)
	}

	t.Run("Second open incident for the same cause is a duplicate", func(t *testing.T) {
		dup := &Incident{MonitorID: m.ID, Cause: CauseTimeout, Status: IncidentStatusActive, StartedAt: time.Now().UTC()}
		if err := s.InsertIncident(ctx, dup); !IsDuplicate(err) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("Different cause is allowed", func(t *testing.T) {
		other := &Incident{MonitorID: m.ID, Cause: CauseSSLError, Status: IncidentStatusActive, StartedAt: time.Now().UTC()}
		if err := s.InsertIncident(ctx, other); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("Patch keeps untouched fields", func(t *testing.T) {
		ackAt := time.Now().UTC()
		status := IncidentStatusAcknowledged
		if err := s.UpdateIncident(ctx, first.ID, IncidentPatch{Status: &status, AcknowledgedAt: &ackAt}); err != nil {
			t.Fatalf("Failed to update incident: %v", err)
		}
		got, err := s.GetIncident(ctx, first.ID)
		if err != nil {
			t.Fatalf("Failed to get incident: %v", err)
		}
		if got.Status != IncidentStatusAcknowledged || got.AcknowledgedAt == nil {
			t.Errorf("Expected acknowledged incident, got %+v", got)
		}
		if got.Cause != CauseTimeout || got.ResolvedAt != nil {
			t.Errorf("Expected cause and resolved_at untouched, got %+v", got)
		}
	})

	t.Run("Resolved incident frees the cause", func(t *testing.T) {
		resolved := IncidentStatusResolved
		now := time.Now().UTC()
		if err := s.UpdateIncident(ctx, first.ID, IncidentPatch{Status: &resolved, ResolvedAt: &now}); err != nil {
			t.Fatalf("Failed to resolve incident: %v", err)
		}

		open, err := s.ListOpenIncidents(ctx, m.ID)
		if err != nil {
			t.Fatalf("Failed to list open incidents: %v", err)
		}
		if len(open) != 1 || open[0].Cause != CauseSSLError {
			t.Errorf("Expected only the ssl_error incident to be open, got %+v", open)
		}

		again := &Incident{MonitorID: m.ID, Cause: CauseTimeout, Status: IncidentStatusActive, StartedAt: now}
		if err := s.InsertIncident(ctx, again); err != nil {
			t.Errorf("Expected new timeout incident after resolution, got %v", err)
		}
	})
}

func TestHeartbeatStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	hb := &Heartbeat{Name: "nightly-backup", GracePeriod: 300}
	if err := s.CreateHeartbeat(ctx, hb); err != nil {
		t.Fatalf("Failed to create heartbeat: %v", err)
	}

	t.Run("Slug is generated", func(t *testing.T) {
		if len(hb.Slug) != 36 {
			t.Errorf("Expected uuid slug, got %q", hb.Slug)
		}
		got, err := s.GetHeartbeatBySlug(ctx, hb.Slug)
		if err != nil {
			t.Fatalf("Failed to get heartbeat: %v", err)
		}
		if got.Status != HeartbeatStatusInitializing || got.LastPingAt != nil {
			t.Errorf("Expected fresh heartbeat, got %+v", got)
		}
	})

	t.Run("Only one ongoing incident", func(t *testing.T) {
		now := time.Now().UTC()
		if err := s.InsertHeartbeatIncident(ctx, &HeartbeatIncident{HeartbeatID: hb.ID, StartedAt: now}); err != nil {
			t.Fatalf("Failed to insert incident: %v", err)
		}
		err := s.InsertHeartbeatIncident(ctx, &HeartbeatIncident{HeartbeatID: hb.ID, StartedAt: now})
		if !IsDuplicate(err) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}

		n, err := s.ResolveHeartbeatIncidents(ctx, hb.ID, now)
		if err != nil {
			t.Fatalf("Failed to resolve: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 resolved incident, got %d", n)
		}
		if _, err := s.GetOngoingHeartbeatIncident(ctx, hb.ID); !IsNotFound(err) {
			t.Errorf("Expected no ongoing incident, got %v", err)
		}
	})

	t.Run("Ping fields are patched", func(t *testing.T) {
		now := time.Now().UTC()
		up := HeartbeatStatusUp
		if err := s.UpdateHeartbeat(ctx, hb.ID, HeartbeatPatch{Status: &up, LastPingAt: &now}); err != nil {
			t.Fatalf("Failed to update heartbeat: %v", err)
		}
		list, err := s.ListHeartbeats(ctx, true)
		if err != nil {
			t.Fatalf("Failed to list heartbeats: %v", err)
		}
		if len(list) != 1 || list[0].Status != HeartbeatStatusUp || list[0].LastPingAt == nil {
			t.Errorf("Expected pinged heartbeat, got %+v", list)
		}
	})
}
