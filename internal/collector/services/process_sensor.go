package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v4/process"
)

type ProcessInfo struct {
	PID    int32   `json:"pid"`
	Name   string  `json:"name,omitempty"`
	CPU    float64 `json:"cpu_percent,omitempty"`
	Memory float32 `json:"memory_percent,omitempty"`
	Status string  `json:"status,omitempty"`
}

type ProcessResult struct {
	Processes []ProcessInfo `json:"processes"`
}

// ProcessSensor reports the top processes by memory percent.
type ProcessSensor struct {
	topK int
}

func NewProcessSensor(topK int) *ProcessSensor {
	if topK <= 0 {
		topK = 15
	}
	return &ProcessSensor{topK: topK}
}

func (s *ProcessSensor) Name() string {
	return "Process"
}

func (s *ProcessSensor) Connect(ctx context.Context) error {
	return nil
}

func (s *ProcessSensor) Disconnect(ctx context.Context) error {
	return nil
}

func (s *ProcessSensor) Collect(ctx context.Context) (any, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	processes := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		// Individual processes may vanish or deny access mid-scan; skip them.
		memPct, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		cpuPct, _ := p.CPUPercentWithContext(ctx)
		status := ""
		if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 {
			status = st[0]
		}

		processes = append(processes, ProcessInfo{
			PID:    p.Pid,
			Name:   name,
			CPU:    cpuPct,
			Memory: memPct,
			Status: status,
		})
	}

	sort.Slice(processes, func(i, j int) bool {
		return processes[i].Memory > processes[j].Memory
	})
	if len(processes) > s.topK {
		processes = processes[:s.topK]
	}

	return ProcessResult{Processes: processes}, nil
}
