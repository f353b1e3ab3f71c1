package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	KindTransferReceived = "transfer_received"
	KindPaymentReceived  = "payment_received"
	KindItemSold         = "item_sold"
	KindWithdrawal       = "withdrawal_resolved"
)

// Message describes a notification payload.
type Message struct {
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	Reference   string    `json:"referenceId"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Notifier delivers notifications to downstream systems. Delivery happens
// after commit and a failure never undoes the money movement.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("reference_id", message.Reference),
		slog.String("body", message.Body),
	)
	return nil
}
