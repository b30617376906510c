package engine

import (
	"hostsentry/internal/collector"
)

// severityFor compares a value against a threshold pair. A value exactly at
// a limit counts as exceeding it; critical supersedes warning.
func severityFor(value float64, limits Limits) string {
	switch {
	case value >= limits.Critical:
		return SeverityCritical
	case value >= limits.Warning:
		return SeverityWarning
	default:
		return SeverityOK
	}
}

// Evaluate compares a snapshot against the configured limits and returns a
// condition for every metric at or above its warning limit. Healthy metrics
// produce nothing. Metric families with no data in the snapshot (a disk
// that failed to read reports zero total) are skipped, never treated as a
// zero reading. Evaluate is a pure function of its inputs.
func Evaluate(snap *collector.MetricSnapshot, limits map[MetricKind]Limits) []Condition {
	var conditions []Condition

	record := func(kind MetricKind, value float64) {
		l, ok := limits[kind]
		if !ok {
			return
		}
		sev := severityFor(value, l)
		if sev == SeverityOK {
			return
		}
		threshold := l.Warning
		if sev == SeverityCritical {
			threshold = l.Critical
		}
		conditions = append(conditions, Condition{
			HostID:     snap.HostID,
			Metric:     kind,
			Severity:   sev,
			Value:      value,
			Threshold:  threshold,
			DetectedAt: snap.Timestamp,
		})
	}

	record(MetricCPU, snap.CPUPercent)

	if snap.Memory.TotalBytes > 0 {
		record(MetricMemory, snap.Memory.Percent)
	}
	if snap.Disk.TotalBytes > 0 {
		record(MetricDisk, snap.Disk.Percent)
	}

	return conditions
}
