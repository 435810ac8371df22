// internal/domain/appointment/repository.go
package appointment

import (
	"context"
	"time"
)

// Repository defines the persistence operations the reminder flow relies on.
// Implementations must be safe for concurrent use: the request path inserts
// while the scheduler scans and updates.
type Repository interface {
	// Insert assigns an ID, forces StatusScheduled and sets the audit timestamps.
	Insert(ctx context.Context, a *Appointment) (string, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)
	// List returns matching records ordered by creation time, then ID.
	List(ctx context.Context, filter ListFilter) ([]*Appointment, error)
	// DueReminders returns scheduled records with ReminderTime <= now, oldest reminder first.
	DueReminders(ctx context.Context, now time.Time) ([]*Appointment, error)
	// Claim atomically moves a scheduled record to in_progress.
	// It returns false when the record is unknown or no longer scheduled.
	Claim(ctx context.Context, id string, claimedAt time.Time) (bool, error)
	// UpdateStatus returns false, without error, when the ID is unknown
	// or the record is no longer in upd.From. It does not enforce CanTransition.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (bool, error)
}
