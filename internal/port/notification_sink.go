package port

import "context"

// NotificationSink delivers an alert to an outside channel (mail relay,
// message broker, log).
type NotificationSink interface {
	Notify(ctx context.Context, subject, body string, recipients []string) error
}
