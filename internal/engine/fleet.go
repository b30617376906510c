package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hostsentry/internal/collector"
	"hostsentry/internal/inventory"
)

// FleetPoller samples every inventory host concurrently and joins the
// results into one FleetView. A host that fails or times out contributes a
// PollError entry instead of a snapshot; it never aborts the cycle and is
// not retried until the next cycle.
type FleetPoller struct {
	source      collector.MetricSource
	inv         inventory.Inventory
	hostTimeout time.Duration
	log         *zap.Logger
}

func NewFleetPoller(source collector.MetricSource, inv inventory.Inventory, hostTimeout time.Duration, log *zap.Logger) *FleetPoller {
	if hostTimeout <= 0 {
		hostTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FleetPoller{
		source:      source,
		inv:         inv,
		hostTimeout: hostTimeout,
		log:         log.With(zap.String("component", "fleet_poller")),
	}
}

type pollResult struct {
	hostID string
	snap   *collector.MetricSnapshot
	err    error
}

// PollOnce samples all hosts and waits for every one to finish or time out
// before returning, so the view never mixes cycles.
func (p *FleetPoller) PollOnce(ctx context.Context) *FleetView {
	hosts := p.inv.List()
	results := make(chan pollResult, len(hosts))

	for _, h := range hosts {
		go func(hostID string) {
			hostCtx, cancel := context.WithTimeout(ctx, p.hostTimeout)
			defer cancel()
			snap, err := p.source.Sample(hostCtx, hostID)
			results <- pollResult{hostID: hostID, snap: snap, err: err}
		}(h.HostID)
	}

	view := &FleetView{
		Hosts:       make(map[string]HostState, len(hosts)),
		CollectedAt: time.Now().UTC(),
	}
	for range hosts {
		r := <-results
		if r.err != nil {
			p.log.Warn("host poll failed",
				zap.String("host_id", r.hostID),
				zap.Error(r.err))
			view.Hosts[r.hostID] = HostState{PollError: r.err.Error()}
			continue
		}
		view.Hosts[r.hostID] = HostState{Snapshot: r.snap}
	}
	return view
}
