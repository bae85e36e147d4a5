// Package notify delivers user-facing messages (verification codes,
// security notices) without binding the auth core to a mail provider.
package notify

import (
	"context"

	"crewbase.org/internal/obs"
)

// Notifier sends a templated message to a recipient address. Implementations
// must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// Discard drops every message. It is the default in environments without a
// configured mail provider, matching local development where codes surface
// in logs instead of inboxes.
type Discard struct{}

func (Discard) Send(context.Context, string, string, map[string]string) error { return nil }

// LogNotifier writes each message to the structured log instead of sending
// it. Useful in development and as a wrapper sink in tests.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, to, template string, data map[string]string) error {
	fields := map[string]any{"to": to, "template": template}
	for k, v := range data {
		fields["data_"+k] = v
	}
	obs.Logf("INFO", "notify", "message delivered to log sink", fields)
	return nil
}
