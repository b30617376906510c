package mcpserver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hostsentry/internal/collector"
	"hostsentry/internal/engine"
	"hostsentry/internal/inventory"
	"hostsentry/internal/remediation"
)

type stubSource struct {
	snap *collector.MetricSnapshot
}

func (s *stubSource) Sample(ctx context.Context, hostID string) (*collector.MetricSnapshot, error) {
	if s.snap == nil {
		return nil, fmt.Errorf("%w: %s", collector.ErrUnreachable, hostID)
	}
	return s.snap, nil
}

func newTestServer(t *testing.T) (*Server, *stubSource) {
	t.Helper()

	source := &stubSource{snap: &collector.MetricSnapshot{
		HostID:     "local",
		Timestamp:  time.Now().UTC(),
		CPUPercent: 96,
		Memory:     collector.MemoryUsage{Percent: 20, TotalBytes: 16 << 30},
		Disk:       collector.DiskUsage{Percent: 30, TotalBytes: 500 << 30},
	}}

	eng := engine.New(engine.Options{
		Interval: time.Minute,
		Limits: map[engine.MetricKind]engine.Limits{
			engine.MetricCPU: {Warning: 80, Critical: 95},
		},
		Cooldowns: engine.NewCooldownTracker(5*time.Minute, nil),
		Poller: engine.NewFleetPoller(source,
			&inventory.Static{Hosts: []inventory.Host{{HostID: "local"}}}, time.Second, nil),
	}, nil)

	registry, err := remediation.NewRegistry([]remediation.Spec{
		{ID: "purge-scratch", Trigger: "disk", Tier: "SAFE", Enabled: true, Op: remediation.OpPurgeDirectory, Target: t.TempDir()},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(Config{ServerName: "hostsentry-test", ServerVersion: "0.0.1"},
		eng, source, registry, nil, nil)
	return srv, source
}

func TestGetFleetViewBeforeFirstCycle(t *testing.T) {
	srv, _ := newTestServer(t)

	if _, _, err := srv.handleGetFleetView(context.Background(), nil, FleetViewArgs{}); err == nil {
		t.Fatal("expected an error before the first cycle")
	}
}

func TestGetFleetView(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.eng.RunCycle(context.Background())

	_, res, err := srv.handleGetFleetView(context.Background(), nil, FleetViewArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.View == nil || len(res.View.Hosts) != 1 {
		t.Fatalf("unexpected view %+v", res.View)
	}
}

func TestGetRealtimeMetrics(t *testing.T) {
	srv, source := newTestServer(t)

	_, snap, err := srv.handleGetRealtimeMetrics(context.Background(), nil, RealtimeArgs{HostID: "local"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.HostID != "local" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	source.snap = nil
	if _, _, err := srv.handleGetRealtimeMetrics(context.Background(), nil, RealtimeArgs{}); err == nil {
		t.Fatal("sampling failure should surface as a tool error")
	}
}

func TestGetConditions(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.eng.RunCycle(context.Background())

	_, res, err := srv.handleGetConditions(context.Background(), nil, ConditionsArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Conditions) != 1 || res.Conditions[0].Metric != engine.MetricCPU {
		t.Fatalf("unexpected conditions %+v", res.Conditions)
	}
}

func TestGetAuditTrailWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t)

	if _, _, err := srv.handleGetAuditTrail(context.Background(), nil, AuditTrailArgs{}); err == nil {
		t.Fatal("expected an error without an audit store")
	}
}

func TestRunActionTool(t *testing.T) {
	srv, _ := newTestServer(t)

	_, res, err := srv.handleRunAction(context.Background(), nil, RunActionArgs{ActionID: "purge-scratch", HostID: "local"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Outcome.Succeeded {
		t.Fatalf("expected success, got %+v", res.Outcome)
	}

	if _, _, err := srv.handleRunAction(context.Background(), nil, RunActionArgs{ActionID: "purge-scratch"}); err == nil {
		t.Fatal("missing host_id should be rejected")
	}
	if _, _, err := srv.handleRunAction(context.Background(), nil, RunActionArgs{ActionID: "ghost", HostID: "local"}); err == nil {
		t.Fatal("unknown action id should be rejected")
	}
}
