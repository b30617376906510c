package alert

import (
	"context"

	"go.uber.org/zap"
)

// LogChannel writes alerts to the process log. It is the fallback channel
// when no SMTP server is configured, so alerting stays observable in dev
// and single-host setups.
type LogChannel struct {
	log *zap.Logger
}

func NewLogChannel(log *zap.Logger) *LogChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogChannel{log: log.With(zap.String("component", "alert"))}
}

func (l *LogChannel) Send(ctx context.Context, subject, body string) error {
	l.log.Warn("ALERT", zap.String("subject", subject), zap.String("body", body))
	return nil
}
