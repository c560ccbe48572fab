package marketplace

import "context"

// NoopNotifier is a no-operation implementation of Notifier
// Useful when no mail transport is configured or for testing
type NoopNotifier struct{}

// SendEmail does nothing and returns nil
func (NoopNotifier) SendEmail(ctx context.Context, to, subject, html string) error {
	return nil
}
