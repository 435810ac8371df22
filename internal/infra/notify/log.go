// Package notify holds the development notifier, which only logs.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogNotifier writes each reminder to the log instead of delivering it.
type LogNotifier struct {
	logger *logrus.Entry
}

func NewLogNotifier(logger *logrus.Entry) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, destination, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	receipt := "log-" + uuid.NewString()
	n.logger.WithFields(logrus.Fields{
		"destination": destination,
		"receipt":     receipt,
	}).Infof("Reminder (not delivered): %s", message)
	return receipt, nil
}
