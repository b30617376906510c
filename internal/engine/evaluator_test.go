package engine

import (
	"testing"
	"time"

	"hostsentry/internal/collector"
)

func testLimits() map[MetricKind]Limits {
	return map[MetricKind]Limits{
		MetricCPU:    {Warning: 80, Critical: 95},
		MetricMemory: {Warning: 85, Critical: 95},
		MetricDisk:   {Warning: 80, Critical: 90},
	}
}

func snapshot(cpu, mem, disk float64) *collector.MetricSnapshot {
	return &collector.MetricSnapshot{
		HostID:     "web-1",
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CPUPercent: cpu,
		Memory:     collector.MemoryUsage{Percent: mem, TotalBytes: 16 << 30},
		Disk:       collector.DiskUsage{Percent: disk, TotalBytes: 500 << 30},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		snap     *collector.MetricSnapshot
		expected map[MetricKind]string // metric -> severity
	}{
		{
			name:     "All Healthy",
			snap:     snapshot(10, 20, 30),
			expected: map[MetricKind]string{},
		},
		{
			name: "CPU Critical",
			snap: snapshot(96, 20, 30),
			expected: map[MetricKind]string{
				MetricCPU: SeverityCritical,
			},
		},
		{
			name: "Memory Warning",
			snap: snapshot(10, 86, 30),
			expected: map[MetricKind]string{
				MetricMemory: SeverityWarning,
			},
		},
		{
			name: "Exactly At Warning Limit Fires",
			snap: snapshot(80, 20, 30),
			expected: map[MetricKind]string{
				MetricCPU: SeverityWarning,
			},
		},
		{
			name: "Exactly At Critical Limit Is Critical Not Warning",
			snap: snapshot(95, 20, 30),
			expected: map[MetricKind]string{
				MetricCPU: SeverityCritical,
			},
		},
		{
			name: "Multiple Conditions",
			snap: snapshot(96, 86, 91),
			expected: map[MetricKind]string{
				MetricCPU:    SeverityCritical,
				MetricMemory: SeverityWarning,
				MetricDisk:   SeverityCritical,
			},
		},
		{
			name: "Skip Disk When Total Is Zero",
			snap: &collector.MetricSnapshot{
				HostID:     "web-1",
				CPUPercent: 10,
				Memory:     collector.MemoryUsage{Percent: 20, TotalBytes: 16 << 30},
				Disk:       collector.DiskUsage{Percent: 0, TotalBytes: 0},
			},
			expected: map[MetricKind]string{},
		},
		{
			name: "Skip Memory When Total Is Zero",
			snap: &collector.MetricSnapshot{
				HostID:     "web-1",
				CPUPercent: 96,
				Memory:     collector.MemoryUsage{Percent: 0, TotalBytes: 0},
				Disk:       collector.DiskUsage{Percent: 30, TotalBytes: 500 << 30},
			},
			expected: map[MetricKind]string{
				MetricCPU: SeverityCritical,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds := Evaluate(tt.snap, testLimits())

			if len(conds) != len(tt.expected) {
				t.Fatalf("expected %d conditions, got %d: %+v", len(tt.expected), len(conds), conds)
			}
			for _, c := range conds {
				want, ok := tt.expected[c.Metric]
				if !ok {
					t.Errorf("unexpected condition for metric %s", c.Metric)
					continue
				}
				if c.Severity != want {
					t.Errorf("metric %s: expected severity %s, got %s", c.Metric, want, c.Severity)
				}
				if c.HostID != tt.snap.HostID {
					t.Errorf("metric %s: expected host %s, got %s", c.Metric, tt.snap.HostID, c.HostID)
				}
				if !c.DetectedAt.Equal(tt.snap.Timestamp) {
					t.Errorf("metric %s: DetectedAt should equal snapshot timestamp", c.Metric)
				}
			}
		})
	}
}

func TestEvaluateThresholdField(t *testing.T) {
	conds := Evaluate(snapshot(96, 86, 30), testLimits())

	for _, c := range conds {
		switch c.Metric {
		case MetricCPU:
			if c.Threshold != 95 {
				t.Errorf("critical condition should carry the critical limit, got %.1f", c.Threshold)
			}
		case MetricMemory:
			if c.Threshold != 85 {
				t.Errorf("warning condition should carry the warning limit, got %.1f", c.Threshold)
			}
		}
	}
}

func TestEvaluateNoLimitsConfigured(t *testing.T) {
	conds := Evaluate(snapshot(99, 99, 99), map[MetricKind]Limits{})
	if len(conds) != 0 {
		t.Fatalf("no limits configured should produce no conditions, got %d", len(conds))
	}
}
