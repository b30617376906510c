// Package engine drives the monitor loop: poll the fleet, evaluate
// thresholds, gate firings through cooldowns, remediate and alert.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"hostsentry/internal/remediation"
)

// Notifier delivers one alert. A non-nil error means delivery failed;
// the engine logs it and moves on, it never rolls back the cooldown.
type Notifier interface {
	Notify(ctx context.Context, cond Condition, outcome *remediation.Outcome, recommended string) error
}

// ActionRegistry is the slice of the remediation registry the engine uses.
type ActionRegistry interface {
	Find(trigger string) (remediation.Action, bool)
	Execute(ctx context.Context, a remediation.Action, hostID string) remediation.Outcome
}

// DispatchRecord is the audit trail entry for one alert attempt.
type DispatchRecord struct {
	HostID    string    `json:"host_id"`
	Metric    string    `json:"metric"`
	Severity  string    `json:"severity"`
	Value     float64   `json:"value"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// AuditSink persists what the engine did. Sink failures are logged and do
// not affect the cycle.
type AuditSink interface {
	RecordOutcome(ctx context.Context, out remediation.Outcome) error
	RecordDispatch(ctx context.Context, rec DispatchRecord) error
}

// Options configures an Engine. Poller, Limits and Cooldowns are required.
type Options struct {
	Interval           time.Duration
	Limits             map[MetricKind]Limits
	Cooldowns          *CooldownTracker
	Poller             *FleetPoller
	Registry           ActionRegistry
	Notifier           Notifier
	Audit              AuditSink
	RemediationEnabled bool
	AlertingEnabled    bool
}

// Engine owns the periodic cycle and publishes its results. Failures of a
// single host or a single action stay local to that host; the cycle always
// runs to completion.
type Engine struct {
	opts Options
	log  *zap.Logger
	now  func() time.Time

	mu     sync.RWMutex
	view   *FleetView
	recent []Condition
	health Health
}

func New(opts Options, log *zap.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		opts: opts,
		log:  log.With(zap.String("component", "engine")),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one cycle immediately and then one per interval until the
// context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.setAlive(true)
	defer e.setAlive(false)

	e.RunCycle(ctx)

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle performs one full poll/evaluate/act pass and atomically swaps in
// the resulting fleet view.
func (e *Engine) RunCycle(ctx context.Context) {
	start := e.now()
	view := e.opts.Poller.PollOnce(ctx)

	var all []Condition
	var fired []Condition
	for id, hs := range view.Hosts {
		if hs.Snapshot == nil {
			continue
		}
		conds := Evaluate(hs.Snapshot, e.opts.Limits)
		hs.Conditions = conds
		view.Hosts[id] = hs
		all = append(all, conds...)

		for _, c := range conds {
			key := CooldownKey{HostID: c.HostID, Metric: c.Metric}
			if !e.opts.Cooldowns.TryFire(key, start) {
				e.log.Debug("suppressed by cooldown",
					zap.String("host_id", c.HostID),
					zap.String("metric", string(c.Metric)),
					zap.String("severity", c.Severity))
				continue
			}
			fired = append(fired, c)
		}
	}

	// Act on each firing in its own goroutine so a slow remediation on one
	// host cannot delay another host's alert.
	var wg sync.WaitGroup
	for _, c := range fired {
		wg.Add(1)
		go func(c Condition) {
			defer wg.Done()
			e.handleCondition(ctx, c)
		}(c)
	}
	wg.Wait()

	e.mu.Lock()
	e.view = view
	e.recent = all
	e.health.LastCycleAt = start
	if ctx.Err() == nil {
		e.health.LastSuccessAt = start
		e.health.CyclesCompleted++
	}
	e.mu.Unlock()

	e.log.Info("cycle complete",
		zap.Int("hosts", len(view.Hosts)),
		zap.Int("conditions", len(all)),
		zap.Int("fired", len(fired)),
		zap.Duration("took", e.now().Sub(start)))
}

func (e *Engine) handleCondition(ctx context.Context, c Condition) {
	var outcome *remediation.Outcome
	recommended := ""

	if e.opts.Registry != nil {
		if a, ok := e.opts.Registry.Find(string(c.Metric)); ok {
			switch a.Tier {
			case remediation.TierSafe:
				if e.opts.RemediationEnabled && a.Enabled {
					out := e.opts.Registry.Execute(ctx, a, c.HostID)
					outcome = &out
					e.recordOutcome(ctx, out)
				}
			case remediation.TierCaution:
				recommended = a.ID
			case remediation.TierDangerous:
				// Documented only. Never executed from the loop.
			}
		}
	}

	if !e.opts.AlertingEnabled || e.opts.Notifier == nil {
		return
	}

	rec := DispatchRecord{
		HostID:   c.HostID,
		Metric:   string(c.Metric),
		Severity: c.Severity,
		Value:    c.Value,
		SentAt:   e.now(),
	}
	if err := e.opts.Notifier.Notify(ctx, c, outcome, recommended); err != nil {
		// The cooldown has already advanced. A broken channel must not
		// turn into an alert storm once it recovers.
		rec.Error = err.Error()
		e.log.Error("alert delivery failed",
			zap.String("host_id", c.HostID),
			zap.String("metric", string(c.Metric)),
			zap.Error(err))
	} else {
		rec.Delivered = true
	}
	e.recordDispatch(ctx, rec)
}

func (e *Engine) recordOutcome(ctx context.Context, out remediation.Outcome) {
	if e.opts.Audit == nil {
		return
	}
	if err := e.opts.Audit.RecordOutcome(ctx, out); err != nil {
		e.log.Error("audit outcome write failed", zap.Error(err))
	}
}

func (e *Engine) recordDispatch(ctx context.Context, rec DispatchRecord) {
	if e.opts.Audit == nil {
		return
	}
	if err := e.opts.Audit.RecordDispatch(ctx, rec); err != nil {
		e.log.Error("audit dispatch write failed", zap.Error(err))
	}
}

// FleetView returns the most recently published view, or nil before the
// first cycle. The view is never mutated after publication.
func (e *Engine) FleetView() *FleetView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view
}

// RecentConditions returns the conditions from the latest cycle.
func (e *Engine) RecentConditions() []Condition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Condition, len(e.recent))
	copy(out, e.recent)
	return out
}

func (e *Engine) Health() Health {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.health
}

func (e *Engine) setAlive(v bool) {
	e.mu.Lock()
	e.health.Alive = v
	e.mu.Unlock()
}
