package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"appointment_reminder/internal/domain/appointment"
	"appointment_reminder/internal/domain/datetime"
	"appointment_reminder/internal/infra/memory"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, destination, message string) (string, error) {
	args := m.Called(ctx, destination, message)
	return args.String(0), args.Error(1)
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	cycles   int
}

func (c *countingMetrics) ObserveDispatch(outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func (c *countingMetrics) ObserveScanCycle(time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles++
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo appointment.Repository, opts ...Option) (*ReminderService, *mockNotifier) {
	t.Helper()
	n := &mockNotifier{}
	dispatcher := NewReminderDispatcher(n, 0, testLogger())
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewReminderService(repo, datetime.NewResolver(), dispatcher, testLogger(), opts...), n
}

func insertAt(t *testing.T, repo appointment.Repository, phone, apptType string, reminderAt time.Time) string {
	t.Helper()
	id, err := repo.Insert(context.Background(), &appointment.Appointment{
		PhoneNumber:     phone,
		AppointmentTime: reminderAt.Add(appointment.ReminderLead),
		ReminderTime:    reminderAt,
		AppointmentType: apptType,
	})
	require.NoError(t, err)
	return id
}

func TestScheduleReminder_Tomorrow(t *testing.T) {
	repo := memory.NewAppointmentRepository()
	svc, _ := newTestService(t, repo)

	res, err := svc.ScheduleReminder(context.Background(), ScheduleRequest{
		PhoneNumber:         "+15550001",
		AppointmentDatetime: "tomorrow",
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), res.AppointmentTime)
	assert.Equal(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), res.ReminderTime)
	assert.Equal(t, "Appointment reminder scheduled for 2024-01-02 08:00 (1 hour before your general appointment)", res.Message)

	stored, err := repo.GetByID(context.Background(), res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, stored.Status)
	assert.Equal(t, "general", stored.AppointmentType)
	assert.Equal(t, "+15550001", stored.PhoneNumber)
}

func TestScheduleReminder_CustomDefaultType(t *testing.T) {
	svc, _ := newTestService(t, memory.NewAppointmentRepository(), WithDefaultType("checkup"))

	res, err := svc.ScheduleReminder(context.Background(), ScheduleRequest{PhoneNumber: "+1", AppointmentDatetime: "2024-06-25 14:30"})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "your checkup appointment")
	assert.Equal(t, time.Date(2024, 6, 25, 13, 30, 0, 0, time.UTC), res.ReminderTime)
}

func TestScheduleReminder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr error
	}{
		{"missing phone", ScheduleRequest{AppointmentDatetime: "tomorrow"}, ErrInvalidRequest},
		{"blank phone", ScheduleRequest{PhoneNumber: "  ", AppointmentDatetime: "tomorrow"}, ErrInvalidRequest},
		{"missing datetime", ScheduleRequest{PhoneNumber: "+1"}, ErrInvalidRequest},
		{"out of range clock", ScheduleRequest{PhoneNumber: "+1", AppointmentDatetime: "tomorrow 25:00"}, datetime.ErrUnparseableDatetime},
		{"reminder already passed", ScheduleRequest{PhoneNumber: "+1", AppointmentDatetime: "today 10:30"}, ErrPastReminder},
		{"absolute past date", ScheduleRequest{PhoneNumber: "+1", AppointmentDatetime: "2023-05-01 12:00"}, ErrPastReminder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewAppointmentRepository()
			svc, _ := newTestService(t, repo)

			res, err := svc.ScheduleReminder(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)

			all, err := repo.List(context.Background(), appointment.ListFilter{})
			require.NoError(t, err)
			assert.Empty(t, all, "nothing may be persisted on rejection")
		})
	}
}

func TestListAppointments_RejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService(t, memory.NewAppointmentRepository())

	_, err := svc.ListAppointments(context.Background(), appointment.ListFilter{Status: "pending"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProcessDueReminders_DeliversDueAndLateOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAppointmentRepository()
	metrics := &countingMetrics{}
	svc, n := newTestService(t, repo, WithMetrics(metrics))

	lateID := insertAt(t, repo, "+1", "dentist", testNow.Add(-3*time.Hour))
	dueID := insertAt(t, repo, "+2", "checkup", testNow)
	futureID := insertAt(t, repo, "+3", "general", testNow.Add(time.Minute))

	n.On("Send", mock.Anything, "+1", ReminderMessage("dentist")).Return("rcpt-late", nil).Once()
	n.On("Send", mock.Anything, "+2", ReminderMessage("checkup")).Return("rcpt-due", nil).Once()

	report, err := svc.ProcessDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Due: 2, Sent: 2}, report)

	for id, receipt := range map[string]string{lateID: "rcpt-late", dueID: "rcpt-due"} {
		a, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, appointment.StatusReminderSent, a.Status)
		assert.Equal(t, receipt, a.DeliveryReceipt.String)
		assert.True(t, a.ClaimedAt.Valid)
	}
	future, err := repo.GetByID(ctx, futureID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, future.Status)

	report, err = svc.ProcessDueReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Due)
	n.AssertNumberOfCalls(t, "Send", 2)
	n.AssertExpectations(t)

	assert.Equal(t, 2, metrics.outcomes[OutcomeSent])
	assert.Equal(t, 2, metrics.cycles)
}

func TestProcessDueReminders_OldestReminderFirst(t *testing.T) {
	repo := memory.NewAppointmentRepository()
	svc, n := newTestService(t, repo)

	insertAt(t, repo, "+newer", "general", testNow.Add(-time.Minute))
	insertAt(t, repo, "+older", "general", testNow.Add(-time.Hour))

	var order []string
	n.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.String(1)) }).
		Return("rcpt", nil)

	_, err := svc.ProcessDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"+older", "+newer"}, order)
}

func TestProcessDueReminders_FailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAppointmentRepository()
	svc, n := newTestService(t, repo)

	id := insertAt(t, repo, "+1", "general", testNow.Add(-time.Minute))
	n.On("Send", mock.Anything, "+1", mock.Anything).Return("", errors.New("number unreachable")).Once()

	report, err := svc.ProcessDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	a, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusFailed, a.Status)
	assert.Contains(t, a.LastError.String, "number unreachable")
	assert.False(t, a.DeliveryReceipt.Valid)

	_, err = svc.ProcessDueReminders(ctx)
	require.NoError(t, err)
	n.AssertNumberOfCalls(t, "Send", 1)
}

// flakyRepo fails Claim for one ID and can replay a stale due snapshot.
type flakyRepo struct {
	appointment.Repository
	failClaimFor string
	staleDue     []*appointment.Appointment
}

func (r *flakyRepo) DueReminders(ctx context.Context, now time.Time) ([]*appointment.Appointment, error) {
	if r.staleDue != nil {
		return r.staleDue, nil
	}
	return r.Repository.DueReminders(ctx, now)
}

func (r *flakyRepo) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	if id == r.failClaimFor {
		return false, appointment.ErrStore
	}
	return r.Repository.Claim(ctx, id, at)
}

func TestProcessDueReminders_StoreErrorDoesNotAbortCycle(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewAppointmentRepository()
	brokenID := insertAt(t, mem, "+broken", "general", testNow.Add(-2*time.Hour))
	okID := insertAt(t, mem, "+ok", "general", testNow.Add(-time.Hour))

	repo := &flakyRepo{Repository: mem, failClaimFor: brokenID}
	svc, n := newTestService(t, repo)
	n.On("Send", mock.Anything, "+ok", mock.Anything).Return("rcpt", nil).Once()

	report, err := svc.ProcessDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Due: 2, Sent: 1, StoreErrors: 1}, report)

	broken, err := mem.GetByID(ctx, brokenID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, broken.Status, "unclaimed record is retried next cycle")

	sent, err := mem.GetByID(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusReminderSent, sent.Status)
	n.AssertExpectations(t)
}

func TestProcessDueReminders_SkipsRecordsClaimedElsewhere(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewAppointmentRepository()
	id := insertAt(t, mem, "+1", "general", testNow.Add(-time.Minute))

	snapshot, err := mem.DueReminders(ctx, testNow)
	require.NoError(t, err)
	ok, err := mem.Claim(ctx, id, testNow)
	require.NoError(t, err)
	require.True(t, ok)

	svc, n := newTestService(t, &flakyRepo{Repository: mem, staleDue: snapshot})
	report, err := svc.ProcessDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Due: 1, Skipped: 1}, report)
	n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessDueReminders_CancelledContextLeavesRecordsScheduled(t *testing.T) {
	mem := memory.NewAppointmentRepository()
	id := insertAt(t, mem, "+1", "general", testNow.Add(-time.Minute))
	svc, n := newTestService(t, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ProcessDueReminders(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	a, err := mem.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, a.Status)
}

// slowNotifier blocks until released or until the send context ends.
type slowNotifier struct {
	started chan struct{}
	release chan struct{}
}

func (s *slowNotifier) Send(ctx context.Context, _, _ string) (string, error) {
	close(s.started)
	select {
	case <-s.release:
		return "rcpt-slow", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestProcessDueReminders_CancelMidSendStillRecordsOutcome(t *testing.T) {
	mem := memory.NewAppointmentRepository()
	id := insertAt(t, mem, "+1", "general", testNow.Add(-time.Minute))
	n := &slowNotifier{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewReminderService(mem, datetime.NewResolver(), NewReminderDispatcher(n, 0, testLogger()), testLogger(),
		WithClock(func() time.Time { return testNow }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan CycleReport, 1)
	go func() {
		report, _ := svc.ProcessDueReminders(ctx)
		done <- report
	}()

	<-n.started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(n.release)

	select {
	case report := <-done:
		assert.Equal(t, 1, report.Sent)
		assert.Zero(t, report.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not finish")
	}

	a, err := mem.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusReminderSent, a.Status)
	assert.Equal(t, "rcpt-slow", a.DeliveryReceipt.String)
	assert.False(t, a.LastError.Valid)
}

func TestProcessDueReminders_DoesNotOverwriteOperatorOutcome(t *testing.T) {
	mem := memory.NewAppointmentRepository()
	id := insertAt(t, mem, "+1", "general", testNow.Add(-time.Minute))
	svc, n := newTestService(t, mem)
	n.On("Send", mock.Anything, "+1", mock.Anything).Run(func(mock.Arguments) {
		_, err := mem.UpdateStatus(context.Background(), id, appointment.StatusUpdate{
			Status: appointment.StatusFailed, From: appointment.StatusInProgress, Error: "operator",
		})
		require.NoError(t, err)
	}).Return("rcpt-1", nil)

	_, err := svc.ProcessDueReminders(context.Background())
	require.NoError(t, err)

	a, err := mem.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusFailed, a.Status, "terminal status is never rewritten")
	assert.False(t, a.DeliveryReceipt.Valid)
}

func TestReminderDispatcher_WrapsProviderErrors(t *testing.T) {
	n := &mockNotifier{}
	cause := errors.New("provider down")
	n.On("Send", mock.Anything, "+1", "Hello! Reminder: You have a dentist appointment today. Please attend on time. Thank you!").
		Return("", cause)

	d := NewReminderDispatcher(n, 10, testLogger())
	_, err := d.Dispatch(context.Background(), "+1", "dentist")

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "reminder delivery failed: provider down", err.Error())
}

func TestReminderDispatcher_PaceHonoursContext(t *testing.T) {
	d := NewReminderDispatcher(&mockNotifier{}, 0.001, testLogger())
	require.NoError(t, d.Pace(context.Background()), "first token is available immediately")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, d.Pace(ctx))
}
