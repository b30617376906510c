package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hostsentry/internal/collector"
	"hostsentry/internal/engine"
	"hostsentry/internal/inventory"
	"hostsentry/internal/remediation"
)

type stubSource struct {
	snaps map[string]*collector.MetricSnapshot
}

func (s *stubSource) Sample(ctx context.Context, hostID string) (*collector.MetricSnapshot, error) {
	if snap, ok := s.snaps[hostID]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: %s", collector.ErrUnreachable, hostID)
}

type stubTrail struct {
	outcomes   []remediation.Outcome
	dispatches []engine.DispatchRecord
	err        error
}

func (s *stubTrail) RecentOutcomes(ctx context.Context, limit int) ([]remediation.Outcome, error) {
	return s.outcomes, s.err
}

func (s *stubTrail) RecentDispatches(ctx context.Context, limit int) ([]engine.DispatchRecord, error) {
	return s.dispatches, s.err
}

func testEngine(t *testing.T, hostIDs ...string) *engine.Engine {
	t.Helper()

	snaps := make(map[string]*collector.MetricSnapshot, len(hostIDs))
	hosts := make([]inventory.Host, 0, len(hostIDs))
	for _, id := range hostIDs {
		snaps[id] = &collector.MetricSnapshot{
			HostID:     id,
			Timestamp:  time.Now().UTC(),
			CPUPercent: 96,
			Memory:     collector.MemoryUsage{Percent: 20, TotalBytes: 16 << 30},
			Disk:       collector.DiskUsage{Percent: 30, TotalBytes: 500 << 30},
		}
		hosts = append(hosts, inventory.Host{HostID: id})
	}
	// unreachable-1 is in the inventory but has no snapshot.
	hosts = append(hosts, inventory.Host{HostID: "unreachable-1"})

	return engine.New(engine.Options{
		Interval: time.Minute,
		Limits: map[engine.MetricKind]engine.Limits{
			engine.MetricCPU: {Warning: 80, Critical: 95},
		},
		Cooldowns: engine.NewCooldownTracker(5*time.Minute, nil),
		Poller: engine.NewFleetPoller(&stubSource{snaps: snaps},
			&inventory.Static{Hosts: hosts}, time.Second, nil),
	}, nil)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestFleetBeforeFirstCycle(t *testing.T) {
	srv := NewServer(testEngine(t, "web-1"), nil, nil)

	if rec := get(t, srv, "/api/fleet"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before the first cycle, got %d", rec.Code)
	}
}

func TestFleetEndpoint(t *testing.T) {
	eng := testEngine(t, "web-1", "web-2")
	eng.RunCycle(context.Background())
	srv := NewServer(eng, nil, nil)

	rec := get(t, srv, "/api/fleet")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view engine.FleetView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("response is not a fleet view: %v", err)
	}
	if len(view.Hosts) != 3 {
		t.Fatalf("expected 3 hosts in the view, got %d", len(view.Hosts))
	}
	if view.Hosts["unreachable-1"].PollError == "" {
		t.Error("unreachable host should expose its poll error")
	}
}

func TestHostEndpoint(t *testing.T) {
	eng := testEngine(t, "web-1")
	eng.RunCycle(context.Background())
	srv := NewServer(eng, nil, nil)

	rec := get(t, srv, "/api/hosts/web-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var state engine.HostState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("response is not a host state: %v", err)
	}
	if state.Snapshot == nil || state.Snapshot.HostID != "web-1" {
		t.Errorf("unexpected snapshot %+v", state.Snapshot)
	}
	if len(state.Conditions) != 1 {
		t.Errorf("expected the cpu condition, got %+v", state.Conditions)
	}

	if rec := get(t, srv, "/api/hosts/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown host, got %d", rec.Code)
	}
}

func TestConditionsEndpoint(t *testing.T) {
	eng := testEngine(t, "web-1")
	eng.RunCycle(context.Background())
	srv := NewServer(eng, nil, nil)

	rec := get(t, srv, "/api/conditions")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var conds []engine.Condition
	if err := json.Unmarshal(rec.Body.Bytes(), &conds); err != nil {
		t.Fatalf("response is not a condition list: %v", err)
	}
	if len(conds) != 1 || conds[0].Metric != engine.MetricCPU {
		t.Errorf("unexpected conditions %+v", conds)
	}
}

func TestAuditEndpoint(t *testing.T) {
	eng := testEngine(t, "web-1")
	trail := &stubTrail{
		outcomes:   []remediation.Outcome{{ActionID: "purge-scratch", HostID: "web-1", Succeeded: true}},
		dispatches: []engine.DispatchRecord{{HostID: "web-1", Metric: "cpu", Delivered: true}},
	}
	srv := NewServer(eng, trail, nil)

	rec := get(t, srv, "/api/audit?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Outcomes   []remediation.Outcome   `json:"outcomes"`
		Dispatches []engine.DispatchRecord `json:"dispatches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if len(payload.Outcomes) != 1 || len(payload.Dispatches) != 1 {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestAuditEndpointWithoutTrail(t *testing.T) {
	srv := NewServer(testEngine(t, "web-1"), nil, nil)
	if rec := get(t, srv, "/api/audit"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a trail, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testEngine(t, "web-1"), nil, nil)

	// The loop is not running, so the engine reports not alive.
	rec := get(t, srv, "/api/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while not running, got %d", rec.Code)
	}
	var h engine.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if h.Alive {
		t.Error("engine should not report alive before Run")
	}
}
