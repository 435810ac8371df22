// Package sqlite keeps appointments in a local SQLite file through gorm.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"appointment_reminder/internal/domain/appointment"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Times are stored in UTC: the driver writes them as text, so comparisons are lexicographic.
type appointmentRecord struct {
	ID              string    `gorm:"primaryKey"`
	PhoneNumber     string    `gorm:"not null;index"`
	AppointmentTime time.Time `gorm:"not null"`
	ReminderTime    time.Time `gorm:"not null;index:idx_due,priority:2"`
	AppointmentType string    `gorm:"not null"`
	Status          string    `gorm:"not null;index:idx_due,priority:1"`
	ClaimedAt       sql.NullTime
	DeliveryReceipt sql.NullString
	LastError       sql.NullString
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (appointmentRecord) TableName() string { return "appointments" }

func (r appointmentRecord) toDomain() *appointment.Appointment {
	return &appointment.Appointment{
		ID:              r.ID,
		PhoneNumber:     r.PhoneNumber,
		AppointmentTime: r.AppointmentTime,
		ReminderTime:    r.ReminderTime,
		AppointmentType: r.AppointmentType,
		Status:          appointment.Status(r.Status),
		ClaimedAt:       r.ClaimedAt,
		DeliveryReceipt: r.DeliveryReceipt,
		LastError:       r.LastError,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", appointment.ErrStore, op, err)
}

func (r *AppointmentRepository) Insert(ctx context.Context, a *appointment.Appointment) (string, error) {
	now := time.Now()
	rec := appointmentRecord{
		ID:              uuid.NewString(),
		PhoneNumber:     a.PhoneNumber,
		AppointmentTime: a.AppointmentTime.UTC(),
		ReminderTime:    a.ReminderTime.UTC(),
		AppointmentType: a.AppointmentType,
		Status:          string(appointment.StatusScheduled),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", storeErr("inserting appointment", err)
	}
	a.ID, a.Status, a.CreatedAt, a.UpdatedAt = rec.ID, appointment.StatusScheduled, now, now
	return rec.ID, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*appointment.Appointment, error) {
	var rec appointmentRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appointment.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("getting appointment", err)
	}
	return rec.toDomain(), nil
}

func (r *AppointmentRepository) List(ctx context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error) {
	q := r.db.WithContext(ctx).Model(&appointmentRecord{})
	if filter.PhoneNumber != "" {
		q = q.Where("phone_number = ?", filter.PhoneNumber)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var recs []appointmentRecord
	if err := q.Order("created_at asc").Order("id asc").Find(&recs).Error; err != nil {
		return nil, storeErr("listing appointments", err)
	}
	return toDomainList(recs), nil
}

func (r *AppointmentRepository) DueReminders(ctx context.Context, now time.Time) ([]*appointment.Appointment, error) {
	var recs []appointmentRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", string(appointment.StatusScheduled)).
		Where("reminder_time <= ?", now.UTC()).
		Order("reminder_time asc").
		Order("id asc").
		Find(&recs).Error
	if err != nil {
		return nil, storeErr("listing due reminders", err)
	}
	return toDomainList(recs), nil
}

func (r *AppointmentRepository) Claim(ctx context.Context, id string, claimedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&appointmentRecord{}).
		Where("id = ? AND status = ?", id, string(appointment.StatusScheduled)).
		Updates(map[string]any{
			"status":     string(appointment.StatusInProgress),
			"claimed_at": claimedAt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, storeErr("claiming appointment", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, upd appointment.StatusUpdate) (bool, error) {
	fields := map[string]any{
		"status":     string(upd.Status),
		"updated_at": time.Now(),
	}
	if upd.Receipt != "" {
		fields["delivery_receipt"] = upd.Receipt
	}
	if upd.Error != "" {
		fields["last_error"] = upd.Error
	}

	q := r.db.WithContext(ctx).Model(&appointmentRecord{}).Where("id = ?", id)
	if upd.From != "" {
		q = q.Where("status = ?", string(upd.From))
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return false, storeErr("updating appointment status", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func toDomainList(recs []appointmentRecord) []*appointment.Appointment {
	out := make([]*appointment.Appointment, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out
}
