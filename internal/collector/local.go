package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hostsentry/internal/collector/services"
)

// LocalSource samples the machine the agent runs on. All sensors are read
// concurrently and merged into one snapshot so a cycle never mixes metric
// families from two points in time.
type LocalSource struct {
	cfg Config

	cpuSensor     services.Sensor
	memSensor     services.Sensor
	diskSensor    services.Sensor
	netSensor     services.Sensor
	hostSensor    services.Sensor
	processSensor services.Sensor
}

func NewLocalSource(cfg Config) *LocalSource {
	return &LocalSource{
		cfg:           cfg,
		cpuSensor:     services.NewCPUSensor(),
		memSensor:     services.NewMemSensor(),
		diskSensor:    services.NewDiskSensor(cfg.DiskPath),
		netSensor:     services.NewNetSensor(),
		hostSensor:    services.NewHostSensor(),
		processSensor: services.NewProcessSensor(cfg.TopProcessCount),
	}
}

// Internal result types for concurrency
type cpuResult struct {
	stats services.CPUResult
	err   error
}

type memResult struct {
	stats services.MemResult
	err   error
}

type diskResult struct {
	stats services.DiskResult
	err   error
}

type netResult struct {
	stats services.NetResult
	err   error
}

type hostResult struct {
	stats services.HostResult
	err   error
}

type processResult struct {
	stats services.ProcessResult
	err   error
}

// Sample collects all metric families concurrently and merges them.
// CPU, memory, and disk are required; network, host, and process data are
// best effort and simply absent from the snapshot when unavailable.
func (s *LocalSource) Sample(ctx context.Context, hostID string) (*MetricSnapshot, error) {
	if s.cfg.SampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SampleTimeout)
		defer cancel()
	}

	cpuCh := make(chan cpuResult, 1)
	memCh := make(chan memResult, 1)
	diskCh := make(chan diskResult, 1)
	netCh := make(chan netResult, 1)
	hostCh := make(chan hostResult, 1)
	processCh := make(chan processResult, 1)

	var wg sync.WaitGroup
	wg.Add(6)

	go func() {
		defer wg.Done()
		res, err := s.cpuSensor.Collect(ctx)
		if err != nil {
			cpuCh <- cpuResult{err: err}
			return
		}
		cpuCh <- cpuResult{stats: res.(services.CPUResult)}
	}()

	go func() {
		defer wg.Done()
		res, err := s.memSensor.Collect(ctx)
		if err != nil {
			memCh <- memResult{err: err}
			return
		}
		memCh <- memResult{stats: res.(services.MemResult)}
	}()

	go func() {
		defer wg.Done()
		res, err := s.diskSensor.Collect(ctx)
		if err != nil {
			diskCh <- diskResult{err: err}
			return
		}
		diskCh <- diskResult{stats: res.(services.DiskResult)}
	}()

	go func() {
		defer wg.Done()
		res, err := s.netSensor.Collect(ctx)
		if err != nil {
			netCh <- netResult{err: err}
			return
		}
		netCh <- netResult{stats: res.(services.NetResult)}
	}()

	go func() {
		defer wg.Done()
		res, err := s.hostSensor.Collect(ctx)
		if err != nil {
			hostCh <- hostResult{err: err}
			return
		}
		hostCh <- hostResult{stats: res.(services.HostResult)}
	}()

	go func() {
		defer wg.Done()
		res, err := s.processSensor.Collect(ctx)
		if err != nil {
			processCh <- processResult{err: err}
			return
		}
		processCh <- processResult{stats: res.(services.ProcessResult)}
	}()

	wg.Wait()

	cpuRes := <-cpuCh
	memRes := <-memCh
	diskRes := <-diskCh
	netRes := <-netCh
	hostRes := <-hostCh
	processRes := <-processCh

	if cpuRes.err != nil {
		return nil, fmt.Errorf("%w: cpu: %v", ErrUnreachable, cpuRes.err)
	}
	if memRes.err != nil {
		return nil, fmt.Errorf("%w: memory: %v", ErrUnreachable, memRes.err)
	}
	if diskRes.err != nil {
		return nil, fmt.Errorf("%w: disk: %v", ErrUnreachable, diskRes.err)
	}

	snap := &MetricSnapshot{
		HostID:     hostID,
		Timestamp:  time.Now().UTC(),
		CPUPercent: cpuRes.stats.TotalUsage,
		CPUCores:   cpuRes.stats.Cores,
		Memory: MemoryUsage{
			Percent:    memRes.stats.UsedPercent,
			TotalBytes: memRes.stats.Total,
			UsedBytes:  memRes.stats.Used,
		},
		Disk: DiskUsage{
			Percent:    diskRes.stats.Root.UsedPercent,
			TotalBytes: diskRes.stats.Root.Total,
			FreeBytes:  diskRes.stats.Root.Free,
		},
	}

	for _, u := range diskRes.stats.Usage {
		snap.Partitions = append(snap.Partitions, PartitionUsage{
			Mountpoint: u.Path,
			Device:     u.Device,
			Fstype:     u.Fstype,
			Percent:    u.UsedPercent,
			TotalBytes: u.Total,
			FreeBytes:  u.Free,
		})
	}

	if netRes.err == nil {
		snap.Network = NetworkCounters{
			BytesSent:   netRes.stats.BytesSent,
			BytesRecv:   netRes.stats.BytesRecv,
			PacketsSent: netRes.stats.PacketsSent,
			PacketsRecv: netRes.stats.PacketsRecv,
		}
	}

	if hostRes.err == nil {
		snap.UptimeSeconds = hostRes.stats.Uptime
		if snap.HostID == "" {
			snap.HostID = hostRes.stats.Hostname
		}
	}

	if processRes.err == nil {
		for _, p := range processRes.stats.Processes {
			snap.Processes = append(snap.Processes, ProcessStat{
				PID:        p.PID,
				Name:       p.Name,
				MemPercent: p.Memory,
				CPUPercent: p.CPU,
				Status:     p.Status,
			})
		}
	}

	return snap, nil
}
