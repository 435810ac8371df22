// Package kafka hands reminders to an external call/SMS worker through a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kgo "github.com/segmentio/kafka-go"
)

// ReminderCommand is the message value consumed by the delivery worker.
type ReminderCommand struct {
	ReceiptID   string `json:"receipt_id"`
	Destination string `json:"destination"`
	Message     string `json:"message"`
	RequestedAt int64  `json:"requested_at"` // unix millis
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Notifier publishes one ReminderCommand per Send. The receipt is the command's
// ReceiptID, which is also the message key.
type Notifier struct {
	writer  messageWriter
	timeout time.Duration
}

func NewNotifier(brokers []string, topic string, timeout time.Duration) (*Notifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka notifier: topic is required")
	}

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}
	return &Notifier{writer: w, timeout: timeout}, nil
}

func (n *Notifier) Close() error { return n.writer.Close() }

func (n *Notifier) Send(ctx context.Context, destination, message string) (string, error) {
	cmd := ReminderCommand{
		ReceiptID:   uuid.NewString(),
		Destination: destination,
		Message:     message,
		RequestedAt: time.Now().UnixMilli(),
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(cmd.ReceiptID),
		Value: b,
		Time:  time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish reminder command: %w", err)
	}
	return cmd.ReceiptID, nil
}
