package collector

import (
	"context"
	"errors"
	"time"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// MetricSnapshot is a point-in-time view of one host's resources.
// A snapshot is built fresh each poll cycle and never mutated afterwards.
type MetricSnapshot struct {
	HostID    string    `json:"host_id"`
	Timestamp time.Time `json:"timestamp"`

	CPUPercent float64     `json:"cpu_percent"` // Overall CPU utilization (0-100)
	CPUCores   int         `json:"cpu_count,omitempty"`
	Memory     MemoryUsage `json:"memory"`
	Disk       DiskUsage   `json:"disk"`

	// Per-partition usage, best effort. Empty when partition enumeration
	// failed; the root filesystem is always reported through Disk.
	Partitions []PartitionUsage `json:"partitions,omitempty"`

	// Top processes ordered by memory percent, descending.
	Processes []ProcessStat `json:"processes,omitempty"`

	Network       NetworkCounters `json:"network"`
	UptimeSeconds uint64          `json:"uptime_seconds"`
}

type MemoryUsage struct {
	Percent    float64 `json:"percent"`
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
}

type DiskUsage struct {
	Percent    float64 `json:"percent"`
	TotalBytes uint64  `json:"total_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
}

type PartitionUsage struct {
	Mountpoint string  `json:"mountpoint"`
	Device     string  `json:"device"`
	Fstype     string  `json:"fstype"`
	Percent    float64 `json:"percent"`
	TotalBytes uint64  `json:"total_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
}

type ProcessStat struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	MemPercent float32 `json:"memory_percent"`
	CPUPercent float64 `json:"cpu_percent"`
	Status     string  `json:"status,omitempty"`
}

type NetworkCounters struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// ============================================================================
// INTERFACE DEFINITION
// ============================================================================

// Sampling failure classes. Callers use errors.Is to distinguish a host
// that could not be reached from one that answered too slowly.
var (
	ErrUnreachable = errors.New("metric source unreachable")
	ErrTimeout     = errors.New("metric source timeout")
)

// MetricSource produces a snapshot for one host per call.
type MetricSource interface {
	Sample(ctx context.Context, hostID string) (*MetricSnapshot, error)
}
