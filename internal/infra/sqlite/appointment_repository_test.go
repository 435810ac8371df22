package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"appointment_reminder/internal/domain/appointment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *AppointmentRepository {
	db, err := Init(filepath.Join(t.TempDir(), "reminders.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewAppointmentRepository(db)
}

func TestAppointmentRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Second)

	dueID, err := repo.Insert(ctx, &appointment.Appointment{
		PhoneNumber:     "+1",
		AppointmentTime: now.Add(30 * time.Minute),
		ReminderTime:    now.Add(-30 * time.Minute),
		AppointmentType: "checkup",
	})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, &appointment.Appointment{
		PhoneNumber:     "+2",
		AppointmentTime: now.Add(3 * time.Hour),
		ReminderTime:    now.Add(2 * time.Hour),
		AppointmentType: "checkup",
	})
	require.NoError(t, err)

	due, err := repo.DueReminders(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueID, due[0].ID)

	ok, err := repo.Claim(ctx, dueID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Claim(ctx, dueID, now)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	ok, err = repo.UpdateStatus(ctx, dueID, appointment.StatusUpdate{
		Status: appointment.StatusReminderSent, From: appointment.StatusInProgress, Receipt: "rcpt",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateStatus(ctx, dueID, appointment.StatusUpdate{
		Status: appointment.StatusFailed, From: appointment.StatusInProgress, Error: "stale",
	})
	require.NoError(t, err)
	assert.False(t, ok, "reminder_sent is not rewritten")

	got, err := repo.GetByID(ctx, dueID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusReminderSent, got.Status)
	assert.Equal(t, "rcpt", got.DeliveryReceipt.String)
	assert.True(t, got.ClaimedAt.Valid)

	due, err = repo.DueReminders(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	byPhone, err := repo.List(ctx, appointment.ListFilter{PhoneNumber: "+2"})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, appointment.StatusScheduled, byPhone[0].Status)

	ok, err = repo.UpdateStatus(ctx, "unknown", appointment.StatusUpdate{Status: appointment.StatusFailed})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.GetByID(ctx, "unknown")
	assert.ErrorIs(t, err, appointment.ErrNotFound)
}
