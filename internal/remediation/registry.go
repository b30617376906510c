// Package remediation maps alert conditions to corrective actions and
// executes them under a safety-tier policy.
package remediation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SafetyTier classifies how much damage an action could do if it fires at
// the wrong moment.
type SafetyTier int

const (
	// TierSafe actions may run automatically when enabled.
	TierSafe SafetyTier = iota
	// TierCaution actions are recommend-only: they appear in alerts but
	// are never run automatically. An operator can trigger them by hand.
	TierCaution
	// TierDangerous actions are never executed by this process, no matter
	// what the configuration says. They exist so operators can document
	// the drastic option next to the safe ones.
	TierDangerous
)

func (t SafetyTier) String() string {
	switch t {
	case TierSafe:
		return "SAFE"
	case TierCaution:
		return "CAUTION"
	case TierDangerous:
		return "DANGEROUS"
	default:
		return fmt.Sprintf("SafetyTier(%d)", int(t))
	}
}

// ParseTier converts a configuration string to a SafetyTier.
func ParseTier(s string) (SafetyTier, error) {
	switch s {
	case "SAFE", "safe":
		return TierSafe, nil
	case "CAUTION", "caution":
		return TierCaution, nil
	case "DANGEROUS", "dangerous":
		return TierDangerous, nil
	default:
		return 0, fmt.Errorf("unknown safety tier %q", s)
	}
}

// Operation is the executable part of an action.
type Operation interface {
	// Run performs the operation and returns a human-readable detail line.
	// Operations must tolerate the problem already being gone: acting on
	// nothing is success, not failure.
	Run(ctx context.Context, hostID string) (string, error)
}

// Action binds an operation to the metric kind that triggers it.
type Action struct {
	ID      string
	Trigger string
	Tier    SafetyTier
	Enabled bool
	op      Operation
}

// Outcome records one execution attempt. Failed attempts are recorded, not
// retried; the next cycle re-detects the condition if it persists.
type Outcome struct {
	ActionID   string    `json:"action_id"`
	HostID     string    `json:"host_id"`
	Trigger    string    `json:"trigger"`
	ExecutedAt time.Time `json:"executed_at"`
	Succeeded  bool      `json:"succeeded"`
	Detail     string    `json:"detail"`
}

// Spec is the configuration form of an action.
type Spec struct {
	ID      string `yaml:"id"`
	Trigger string `yaml:"trigger"`
	Tier    string `yaml:"tier"`
	Enabled bool   `yaml:"enabled"`
	Op      string `yaml:"op"`
	Target  string `yaml:"target,omitempty"`
}

// Registry holds the configured actions, at most one per trigger.
type Registry struct {
	byTrigger map[string]Action
	byID      map[string]Action
	log       *zap.Logger
	now       func() time.Time
}

func NewRegistry(specs []Spec, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		byTrigger: make(map[string]Action, len(specs)),
		byID:      make(map[string]Action, len(specs)),
		log:       log.With(zap.String("component", "remediation")),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("action with trigger %q: id required", s.Trigger)
		}
		tier, err := ParseTier(s.Tier)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", s.ID, err)
		}
		op, err := buildOperation(s)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", s.ID, err)
		}
		if _, dup := r.byTrigger[s.Trigger]; dup {
			return nil, fmt.Errorf("action %q: trigger %q already has an action", s.ID, s.Trigger)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("action %q: duplicate id", s.ID)
		}
		a := Action{ID: s.ID, Trigger: s.Trigger, Tier: tier, Enabled: s.Enabled, op: op}
		r.byTrigger[s.Trigger] = a
		r.byID[s.ID] = a
	}
	return r, nil
}

// Find returns the action registered for a metric kind, if any.
func (r *Registry) Find(trigger string) (Action, bool) {
	a, ok := r.byTrigger[trigger]
	return a, ok
}

// Execute runs an action on behalf of the automatic engine loop. Only SAFE
// actions that are enabled ever reach their operation; everything else is
// refused with a failed outcome. The tier switch is exhaustive on purpose:
// an unrecognized tier is refused, never run.
func (r *Registry) Execute(ctx context.Context, a Action, hostID string) Outcome {
	switch a.Tier {
	case TierSafe:
		if !a.Enabled {
			return r.refuse(a, hostID, "action disabled")
		}
		return r.run(ctx, a, hostID)
	case TierCaution:
		return r.refuse(a, hostID, "CAUTION actions are recommend-only")
	case TierDangerous:
		return r.refuse(a, hostID, "DANGEROUS actions are never executed")
	default:
		return r.refuse(a, hostID, fmt.Sprintf("unrecognized tier %v", a.Tier))
	}
}

// ExecuteManual runs an action on explicit operator request, identified by
// id. SAFE and CAUTION actions run; DANGEROUS actions are still refused.
func (r *Registry) ExecuteManual(ctx context.Context, actionID, hostID string) (Outcome, error) {
	a, ok := r.byID[actionID]
	if !ok {
		return Outcome{}, fmt.Errorf("no action with id %q", actionID)
	}
	switch a.Tier {
	case TierSafe, TierCaution:
		return r.run(ctx, a, hostID), nil
	case TierDangerous:
		return r.refuse(a, hostID, "DANGEROUS actions are never executed"), nil
	default:
		return r.refuse(a, hostID, fmt.Sprintf("unrecognized tier %v", a.Tier)), nil
	}
}

func (r *Registry) run(ctx context.Context, a Action, hostID string) Outcome {
	out := Outcome{
		ActionID:   a.ID,
		HostID:     hostID,
		Trigger:    a.Trigger,
		ExecutedAt: r.now(),
	}

	detail, err := r.safeRun(ctx, a, hostID)
	if err != nil {
		out.Succeeded = false
		out.Detail = err.Error()
		r.log.Error("action failed",
			zap.String("action_id", a.ID),
			zap.String("host_id", hostID),
			zap.Error(err))
		return out
	}

	out.Succeeded = true
	out.Detail = detail
	r.log.Info("action executed",
		zap.String("action_id", a.ID),
		zap.String("host_id", hostID),
		zap.String("detail", detail))
	return out
}

// safeRun contains the only call into an operation, so a panicking
// operation turns into a failed outcome instead of killing the cycle.
func (r *Registry) safeRun(ctx context.Context, a Action, hostID string) (detail string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action %q panicked: %v", a.ID, p)
		}
	}()
	return a.op.Run(ctx, hostID)
}

func (r *Registry) refuse(a Action, hostID, reason string) Outcome {
	r.log.Warn("action refused",
		zap.String("action_id", a.ID),
		zap.String("host_id", hostID),
		zap.String("tier", a.Tier.String()),
		zap.String("reason", reason))
	return Outcome{
		ActionID:   a.ID,
		HostID:     hostID,
		Trigger:    a.Trigger,
		ExecutedAt: r.now(),
		Succeeded:  false,
		Detail:     reason,
	}
}
