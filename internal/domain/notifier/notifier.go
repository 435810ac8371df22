package notifier

import "context"

// Notifier delivers a single outbound message.
// This decouples the reminder logic from the concrete provider (Telegram, SNS, Kafka...).
// Implementations bound their own call duration; Send returns a provider receipt ID.
type Notifier interface {
	Send(ctx context.Context, destination string, message string) (string, error)
}
