// internal/infra/database/postgres_appointment_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"appointment_reminder/internal/domain/appointment"

	"github.com/google/uuid"
)

const appointmentColumns = `id, phone_number, appointment_time, reminder_time, appointment_type, status,
               claimed_at, delivery_receipt, last_error, created_at, updated_at`

type PostgresAppointmentRepository struct {
	db *sql.DB
}

func NewPostgresAppointmentRepository(db *sql.DB) *PostgresAppointmentRepository {
	return &PostgresAppointmentRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*appointment.Appointment, error) {
	a := &appointment.Appointment{}
	err := row.Scan(
		&a.ID, &a.PhoneNumber, &a.AppointmentTime, &a.ReminderTime, &a.AppointmentType, &a.Status,
		&a.ClaimedAt, &a.DeliveryReceipt, &a.LastError, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresAppointmentRepository) Insert(ctx context.Context, a *appointment.Appointment) (string, error) {
	query := `INSERT INTO appointments (id, phone_number, appointment_time, reminder_time, appointment_type, status)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING created_at, updated_at`

	id := uuid.NewString()
	err := r.db.QueryRowContext(ctx, query, id, a.PhoneNumber, a.AppointmentTime, a.ReminderTime, a.AppointmentType, appointment.StatusScheduled).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("%w: error inserting appointment: %w", appointment.ErrStore, err)
	}
	a.ID = id
	a.Status = appointment.StatusScheduled
	return id, nil
}

func (r *PostgresAppointmentRepository) GetByID(ctx context.Context, id string) (*appointment.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appointment.ErrNotFound
		}
		return nil, fmt.Errorf("%w: error getting appointment by ID: %w", appointment.ErrStore, err)
	}
	return a, nil
}

func (r *PostgresAppointmentRepository) List(ctx context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.PhoneNumber != "" {
		args = append(args, filter.PhoneNumber)
		conds = append(conds, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + appointmentColumns + ` FROM appointments`)
	if len(conds) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conds, " AND "))
	}
	query.WriteString(" ORDER BY created_at, id")

	return r.queryAppointments(ctx, "listing appointments", query.String(), args...)
}

func (r *PostgresAppointmentRepository) DueReminders(ctx context.Context, now time.Time) ([]*appointment.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
               WHERE status = $1 AND reminder_time <= $2
               ORDER BY reminder_time, id`
	return r.queryAppointments(ctx, "listing due reminders", query, appointment.StatusScheduled, now)
}

func (r *PostgresAppointmentRepository) queryAppointments(ctx context.Context, op string, query string, args ...any) ([]*appointment.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: error %s: %w", appointment.ErrStore, op, err)
	}
	defer rows.Close()

	out := make([]*appointment.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: error scanning appointment while %s: %w", appointment.ErrStore, op, err)
		}
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating appointments while %s: %w", appointment.ErrStore, op, err)
	}
	return out, nil
}

// Claim relies on the status predicate in the UPDATE for atomicity:
// of two concurrent claims only one can see status = 'scheduled'.
func (r *PostgresAppointmentRepository) Claim(ctx context.Context, id string, claimedAt time.Time) (bool, error) {
	query := `UPDATE appointments
               SET status = $1, claimed_at = $2, updated_at = NOW()
               WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, appointment.StatusInProgress, claimedAt, id, appointment.StatusScheduled)
	if err != nil {
		return false, fmt.Errorf("%w: error claiming appointment %s: %w", appointment.ErrStore, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: error reading claim result for %s: %w", appointment.ErrStore, id, err)
	}
	return n == 1, nil
}

func (r *PostgresAppointmentRepository) UpdateStatus(ctx context.Context, id string, upd appointment.StatusUpdate) (bool, error) {
	query := `UPDATE appointments
               SET status = $1,
                   delivery_receipt = COALESCE($2, delivery_receipt),
                   last_error = COALESCE($3, last_error),
                   updated_at = NOW()
               WHERE id = $4`
	args := []any{upd.Status, nullString(upd.Receipt), nullString(upd.Error), id}
	if upd.From != "" {
		query += ` AND status = $5`
		args = append(args, upd.From)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: error updating appointment %s status: %w", appointment.ErrStore, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: error reading update result for %s: %w", appointment.ErrStore, id, err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
