package notify

import "context"

// Notifier delivers a fire-and-forget text to a user's external handle.
// There is no delivery guarantee and no retry; failures are logged only and
// must never fail the operation that triggered the notification.
type Notifier interface {
	Send(ctx context.Context, telegramID int64, text string)
}

// Noop drops every notification. Used in tests and when no bot token is
// configured.
type Noop struct{}

func (Noop) Send(ctx context.Context, telegramID int64, text string) {}
