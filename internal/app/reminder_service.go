// internal/app/reminder_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"appointment_reminder/internal/domain/appointment"
	"appointment_reminder/internal/domain/datetime"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidRequest = errors.New("invalid schedule request")
	ErrPastReminder   = errors.New("reminder time is in the past")
)

// finalizeTimeout bounds the status write after a dispatch, which must outlive a cancelled cycle.
const finalizeTimeout = 5 * time.Second

// Dispatch outcomes reported to Metrics.
const (
	OutcomeSent       = "sent"
	OutcomeFailed     = "failed"
	OutcomeClaimLost  = "claim_lost"
	OutcomeStoreError = "store_error"
)

// Metrics receives scan-cycle observations.
type Metrics interface {
	ObserveDispatch(outcome string, took time.Duration)
	ObserveScanCycle(took time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDispatch(string, time.Duration) {}
func (nopMetrics) ObserveScanCycle(time.Duration)        {}

// ReminderProcessor runs one scan cycle. The scheduler depends on this, not on ReminderService.
type ReminderProcessor interface {
	ProcessDueReminders(ctx context.Context) (CycleReport, error)
}

// ScheduleRequest is the input of the scheduling request path.
type ScheduleRequest struct {
	PhoneNumber         string
	AppointmentDatetime string
	AppointmentType     string // Optional
}

type ScheduleResult struct {
	AppointmentID   string
	AppointmentTime time.Time
	ReminderTime    time.Time
	Message         string
}

// CycleReport summarises a scan cycle.
type CycleReport struct {
	Due         int
	Sent        int
	Failed      int
	Skipped     int // Claimed elsewhere or no longer scheduled
	StoreErrors int
}

type ReminderService struct {
	repo        appointment.Repository
	resolver    *datetime.Resolver
	dispatcher  *ReminderDispatcher
	logger      *logrus.Entry
	metrics     Metrics
	now         func() time.Time
	defaultType string
}

type Option func(*ReminderService)

// WithClock replaces time.Now as the source of "now" for resolution and due checks.
func WithClock(now func() time.Time) Option {
	return func(s *ReminderService) { s.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(s *ReminderService) { s.metrics = m }
}

func WithDefaultType(t string) Option {
	return func(s *ReminderService) {
		if t != "" {
			s.defaultType = t
		}
	}
}

func NewReminderService(
	repo appointment.Repository,
	resolver *datetime.Resolver,
	dispatcher *ReminderDispatcher,
	logger *logrus.Entry,
	opts ...Option,
) *ReminderService {
	s := &ReminderService{
		repo:        repo,
		resolver:    resolver,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     nopMetrics{},
		now:         time.Now,
		defaultType: "general",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleReminder resolves the requested datetime and persists a scheduled appointment.
// Nothing is stored when the request is invalid, unparseable or its reminder time has passed.
func (s *ReminderService) ScheduleReminder(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	phone := strings.TrimSpace(req.PhoneNumber)
	raw := strings.TrimSpace(req.AppointmentDatetime)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone_number is required", ErrInvalidRequest)
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: appointment_datetime is required", ErrInvalidRequest)
	}
	apptType := strings.TrimSpace(req.AppointmentType)
	if apptType == "" {
		apptType = s.defaultType
	}

	logCtx := s.logger.WithFields(logrus.Fields{
		"phone_number":     phone,
		"appointment_type": apptType,
		"raw_datetime":     raw,
	})

	now := s.now()
	res, err := s.resolver.Resolve(raw, now)
	if err != nil {
		logCtx.WithError(err).Warn("Could not resolve appointment datetime")
		return nil, err
	}
	if !res.ReminderTime.After(now) {
		logCtx.WithField("reminder_time", res.ReminderTime).Warn("Rejected reminder in the past")
		return nil, fmt.Errorf("%w: reminder would fire at %s", ErrPastReminder, res.ReminderTime.Format("2006-01-02 15:04"))
	}

	a := &appointment.Appointment{
		PhoneNumber:     phone,
		AppointmentTime: res.AppointmentTime,
		ReminderTime:    res.ReminderTime,
		AppointmentType: apptType,
	}
	id, err := s.repo.Insert(ctx, a)
	if err != nil {
		logCtx.WithError(err).Error("Failed to persist appointment")
		return nil, fmt.Errorf("failed to schedule reminder: %w", err)
	}

	logCtx.WithFields(logrus.Fields{
		"appointment_id": id,
		"reminder_time":  res.ReminderTime,
	}).Info("Reminder scheduled")

	return &ScheduleResult{
		AppointmentID:   id,
		AppointmentTime: res.AppointmentTime,
		ReminderTime:    res.ReminderTime,
		Message: fmt.Sprintf("Appointment reminder scheduled for %s (1 hour before your %s appointment)",
			res.ReminderTime.Format("2006-01-02 15:04"), apptType),
	}, nil
}

func (s *ReminderService) ListAppointments(ctx context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, filter.Status)
	}
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, nil
}

// ProcessDueReminders runs one scan cycle: every due reminder is claimed, dispatched once
// and moved to reminder_sent or failed. A failure on one record never aborts the others.
// When ctx ends mid-cycle the unprocessed records stay scheduled for the next cycle.
func (s *ReminderService) ProcessDueReminders(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	started := time.Now()
	defer func() { s.metrics.ObserveScanCycle(time.Since(started)) }()

	due, err := s.repo.DueReminders(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch due reminders")
		return report, fmt.Errorf("failed to fetch due reminders: %w", err)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ReminderTime.Before(due[j].ReminderTime)
	})
	report.Due = len(due)
	if report.Due == 0 {
		return report, nil
	}
	s.logger.WithField("due_count", report.Due).Info("Processing due reminders")

	for i, a := range due {
		if err := s.dispatcher.Pace(ctx); err != nil {
			s.logger.WithError(err).WithField("remaining", len(due)-i).
				Warn("Scan cycle interrupted, remaining reminders stay scheduled")
			return report, err
		}
		s.processOne(ctx, a, &report)
	}

	s.logger.WithFields(logrus.Fields{
		"due":          report.Due,
		"sent":         report.Sent,
		"failed":       report.Failed,
		"skipped":      report.Skipped,
		"store_errors": report.StoreErrors,
	}).Info("Scan cycle finished")
	return report, nil
}

func (s *ReminderService) processOne(ctx context.Context, a *appointment.Appointment, report *CycleReport) {
	logCtx := s.logger.WithFields(logrus.Fields{
		"appointment_id": a.ID,
		"reminder_time":  a.ReminderTime,
	})

	claimed, err := s.repo.Claim(ctx, a.ID, s.now())
	if err != nil {
		logCtx.WithError(err).Error("Failed to claim reminder")
		report.StoreErrors++
		s.metrics.ObserveDispatch(OutcomeStoreError, 0)
		return
	}
	if !claimed {
		logCtx.Debug("Reminder no longer scheduled, skipping")
		report.Skipped++
		s.metrics.ObserveDispatch(OutcomeClaimLost, 0)
		return
	}

	// Cancellation stops a cycle between records only. A claimed reminder is
	// carried through; the notifier's own timeout bounds the send.
	claimCtx := context.WithoutCancel(ctx)

	sendStarted := time.Now()
	receipt, err := s.dispatcher.Dispatch(claimCtx, a.PhoneNumber, a.AppointmentType)
	took := time.Since(sendStarted)

	upd := appointment.StatusUpdate{Status: appointment.StatusReminderSent, From: appointment.StatusInProgress, Receipt: receipt}
	outcome := OutcomeSent
	if err != nil {
		// Terminal: a failed reminder is never retried automatically.
		logCtx.WithError(err).Warn("Reminder delivery failed")
		upd = appointment.StatusUpdate{Status: appointment.StatusFailed, From: appointment.StatusInProgress, Error: err.Error()}
		outcome = OutcomeFailed
		report.Failed++
	} else {
		logCtx.WithField("receipt", receipt).Info("Reminder sent")
		report.Sent++
	}
	s.metrics.ObserveDispatch(outcome, took)

	writeCtx, cancel := context.WithTimeout(claimCtx, finalizeTimeout)
	defer cancel()
	ok, err := s.repo.UpdateStatus(writeCtx, a.ID, upd)
	switch {
	case err != nil:
		// Stays in_progress; visible to operators as a stale claim.
		logCtx.WithError(err).WithField("status", upd.Status).Error("Failed to record dispatch outcome")
		report.StoreErrors++
	case !ok:
		logCtx.WithField("status", upd.Status).Warn("Reminder no longer in progress, outcome not recorded")
	}
}
