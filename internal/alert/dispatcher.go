// Package alert formats conditions into notifications and delivers them.
package alert

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hostsentry/internal/engine"
	"hostsentry/internal/remediation"
)

// Channel delivers a formatted notification somewhere.
type Channel interface {
	Send(ctx context.Context, subject, body string) error
}

// Dispatcher turns conditions into messages. Rate limiting happens
// upstream in the engine's cooldown gate; by the time Notify is called the
// alert has already been admitted, so a delivery failure here does not
// re-arm anything.
type Dispatcher struct {
	ch  Channel
	log *zap.Logger
}

func NewDispatcher(ch Channel, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		ch:  ch,
		log: log.With(zap.String("component", "alert")),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, cond engine.Condition, outcome *remediation.Outcome, recommended string) error {
	subject := fmt.Sprintf("[%s] %s: %s at %.1f%%", cond.Severity, cond.HostID, cond.Metric, cond.Value)

	var b strings.Builder
	fmt.Fprintf(&b, "Host:      %s\n", cond.HostID)
	fmt.Fprintf(&b, "Metric:    %s\n", cond.Metric)
	fmt.Fprintf(&b, "Severity:  %s\n", cond.Severity)
	fmt.Fprintf(&b, "Value:     %.1f%% (threshold %.1f%%)\n", cond.Value, cond.Threshold)
	fmt.Fprintf(&b, "Detected:  %s\n", cond.DetectedAt.Format("2006-01-02 15:04:05 MST"))

	switch {
	case outcome != nil && outcome.Succeeded:
		fmt.Fprintf(&b, "\nRemediation %q executed: %s\n", outcome.ActionID, outcome.Detail)
	case outcome != nil:
		fmt.Fprintf(&b, "\nRemediation %q failed: %s\n", outcome.ActionID, outcome.Detail)
	case recommended != "":
		fmt.Fprintf(&b, "\nRecommended action (manual): %s\n", recommended)
	}

	d.log.Info("dispatching alert",
		zap.String("host_id", cond.HostID),
		zap.String("metric", string(cond.Metric)),
		zap.String("severity", cond.Severity))

	return d.ch.Send(ctx, subject, b.String())
}
