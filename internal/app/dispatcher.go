package app

import (
	"context"
	"fmt"

	"appointment_reminder/internal/domain/notifier"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// reminderTemplate is the fixed reminder text; the appointment type is embedded verbatim.
const reminderTemplate = "Hello! Reminder: You have a %s appointment today. Please attend on time. Thank you!"

// DeliveryError wraps any failure of the notification provider.
type DeliveryError struct {
	Cause error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("reminder delivery failed: %v", e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// ReminderMessage renders the reminder text for appointmentType.
func ReminderMessage(appointmentType string) string {
	return fmt.Sprintf(reminderTemplate, appointmentType)
}

// ReminderDispatcher turns a due appointment into one outbound notification.
// It never retries; a failed attempt is reported and left to the caller.
type ReminderDispatcher struct {
	notifier notifier.Notifier
	limiter  *rate.Limiter // nil means unpaced
	logger   *logrus.Entry
}

// NewReminderDispatcher paces sends at ratePerSecond (burst 1). A non-positive rate disables pacing.
func NewReminderDispatcher(n notifier.Notifier, ratePerSecond float64, logger *logrus.Entry) *ReminderDispatcher {
	d := &ReminderDispatcher{notifier: n, logger: logger}
	if ratePerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return d
}

// Pace blocks until the next send is allowed or ctx is done.
func (d *ReminderDispatcher) Pace(ctx context.Context) error {
	if d.limiter == nil {
		return ctx.Err()
	}
	return d.limiter.Wait(ctx)
}

// Dispatch sends the reminder to phoneNumber and returns the provider receipt.
func (d *ReminderDispatcher) Dispatch(ctx context.Context, phoneNumber, appointmentType string) (string, error) {
	receipt, err := d.notifier.Send(ctx, phoneNumber, ReminderMessage(appointmentType))
	if err != nil {
		return "", &DeliveryError{Cause: err}
	}

	d.logger.WithFields(logrus.Fields{
		"destination": phoneNumber,
		"receipt":     receipt,
	}).Debug("Reminder handed to provider")
	return receipt, nil
}
