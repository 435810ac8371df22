// Package memory provides a process-local appointment store.
// Records do not survive a restart; use it for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"appointment_reminder/internal/domain/appointment"

	"github.com/google/uuid"
)

type AppointmentRepository struct {
	mu    sync.RWMutex
	items []*appointment.Appointment // insertion order
	byID  map[string]*appointment.Appointment
	now   func() time.Time
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		byID: make(map[string]*appointment.Appointment),
		now:  time.Now,
	}
}

// WithClock overrides the clock used for audit timestamps.
func (r *AppointmentRepository) WithClock(now func() time.Time) *AppointmentRepository {
	r.now = now
	return r
}

func (r *AppointmentRepository) Insert(_ context.Context, a *appointment.Appointment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	a.ID = uuid.NewString()
	a.Status = appointment.StatusScheduled
	a.CreatedAt = now
	a.UpdatedAt = now

	stored := *a
	r.items = append(r.items, &stored)
	r.byID[stored.ID] = &stored
	return stored.ID, nil
}

func (r *AppointmentRepository) GetByID(_ context.Context, id string) (*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AppointmentRepository) List(_ context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*appointment.Appointment, 0)
	for _, a := range r.items {
		if filter.Matches(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *AppointmentRepository) DueReminders(_ context.Context, now time.Time) ([]*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*appointment.Appointment, 0)
	for _, a := range r.items {
		if a.IsDue(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReminderTime.Before(out[j].ReminderTime)
	})
	return out, nil
}

func (r *AppointmentRepository) Claim(_ context.Context, id string, claimedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || a.Status != appointment.StatusScheduled {
		return false, nil
	}
	a.Status = appointment.StatusInProgress
	a.ClaimedAt.Time, a.ClaimedAt.Valid = claimedAt, true
	a.UpdatedAt = r.now()
	return true, nil
}

func (r *AppointmentRepository) UpdateStatus(_ context.Context, id string, upd appointment.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || (upd.From != "" && a.Status != upd.From) {
		return false, nil
	}
	a.Status = upd.Status
	if upd.Receipt != "" {
		a.DeliveryReceipt.String, a.DeliveryReceipt.Valid = upd.Receipt, true
	}
	if upd.Error != "" {
		a.LastError.String, a.LastError.Valid = upd.Error, true
	}
	a.UpdatedAt = r.now()
	return true, nil
}
