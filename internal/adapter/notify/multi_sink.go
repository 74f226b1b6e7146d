package notify

import (
	"context"
	"errors"

	"github.com/rl1809/bloodbank/internal/port"
)

// MultiSink fans an alert out to every sink and joins their errors.
type MultiSink []port.NotificationSink

func (m MultiSink) Notify(ctx context.Context, subject, body string, recipients []string) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, subject, body, recipients); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
