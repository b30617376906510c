package services

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

type UsageStat struct {
	Path        string
	Device      string
	Fstype      string
	Total       uint64
	Free        uint64
	Used        uint64
	UsedPercent float64
}

type DiskResult struct {
	Root  UsageStat
	Usage []UsageStat
}

type DiskSensor struct {
	rootPath string
}

// NewDiskSensor creates a disk sensor anchored at rootPath ("/" by default).
func NewDiskSensor(rootPath string) *DiskSensor {
	if rootPath == "" {
		rootPath = "/"
	}
	return &DiskSensor{rootPath: rootPath}
}

func (s *DiskSensor) Name() string {
	return "Disk"
}

func (s *DiskSensor) Connect(ctx context.Context) error {
	return nil
}

func (s *DiskSensor) Disconnect(ctx context.Context) error {
	return nil
}

func (s *DiskSensor) Collect(ctx context.Context) (any, error) {
	rootUsage, err := disk.UsageWithContext(ctx, s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk usage for %s: %w", s.rootPath, err)
	}

	result := DiskResult{
		Root: UsageStat{
			Path:        rootUsage.Path,
			Fstype:      rootUsage.Fstype,
			Total:       rootUsage.Total,
			Free:        rootUsage.Free,
			Used:        rootUsage.Used,
			UsedPercent: rootUsage.UsedPercent,
		},
	}

	// Per-partition usage is best effort; a partition that fails to read
	// is skipped rather than reported as zero.
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return result, nil
	}
	for _, p := range partitions {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		result.Usage = append(result.Usage, UsageStat{
			Path:        p.Mountpoint,
			Device:      p.Device,
			Fstype:      p.Fstype,
			Total:       u.Total,
			Free:        u.Free,
			Used:        u.Used,
			UsedPercent: u.UsedPercent,
		})
	}

	return result, nil
}
