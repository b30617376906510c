package engine

import (
	"time"

	"hostsentry/internal/collector"
)

const (
	SeverityOK       = "OK"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// MetricKind identifies a metric family evaluated against thresholds.
type MetricKind string

const (
	MetricCPU    MetricKind = "cpu"
	MetricMemory MetricKind = "memory"
	MetricDisk   MetricKind = "disk"
)

// KnownMetricKinds lists every kind the evaluator understands; configuration
// referring to anything else is rejected at startup.
var KnownMetricKinds = []MetricKind{MetricCPU, MetricMemory, MetricDisk}

func (k MetricKind) Known() bool {
	for _, known := range KnownMetricKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Limits is a warning/critical threshold pair for one metric kind.
type Limits struct {
	Warning  float64
	Critical float64
}

// Condition is one metric's evaluated state for one host in one cycle.
type Condition struct {
	HostID     string     `json:"host_id"`
	Metric     MetricKind `json:"metric"`
	Severity   string     `json:"severity"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	DetectedAt time.Time  `json:"detected_at"`
}

// HostState is one host's slice of the fleet view.
type HostState struct {
	Snapshot   *collector.MetricSnapshot `json:"snapshot,omitempty"`
	Conditions []Condition               `json:"conditions,omitempty"`
	PollError  string                    `json:"poll_error,omitempty"`
}

// FleetView is the aggregate of one poll cycle. It is built fresh each
// cycle and swapped in atomically; readers never observe a mix of cycles.
type FleetView struct {
	Hosts       map[string]HostState `json:"hosts"`
	CollectedAt time.Time            `json:"collected_at"`
}

// Health reports whether the engine loop is making progress.
type Health struct {
	Alive           bool      `json:"alive"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
	LastSuccessAt   time.Time `json:"last_success_at"`
	CyclesCompleted uint64    `json:"cycles_completed"`
}
