package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes alerts to the structured log. It is the default sink when no
// broker is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, subject, body string, recipients []string) error {
	s.logger.Warn(subject,
		zap.String("body", body),
		zap.Strings("recipients", recipients),
	)
	return nil
}
