// internal/domain/appointment/appointment.go
package appointment

import (
	"database/sql"
	"time"
)

// ReminderLead is how long before the appointment the reminder fires.
const ReminderLead = time.Hour

// Appointment is a single reminder request and its delivery lifecycle.
// Corresponds to the 'appointments' table / document.
type Appointment struct {
	ID              string
	PhoneNumber     string    // Destination identifier, opaque to this service
	AppointmentTime time.Time // Absolute time of the appointment
	ReminderTime    time.Time // AppointmentTime - ReminderLead, fixed at creation
	AppointmentType string    // Free-text label used verbatim in the reminder
	Status          Status
	ClaimedAt       sql.NullTime   // Set when the scheduler claims the record for dispatch
	DeliveryReceipt sql.NullString // Provider receipt, only on successful dispatch
	LastError       sql.NullString // Provider error text, only on failed dispatch
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsDue reports whether the reminder should be dispatched at now.
// Lateness does not suppress delivery: anything at or past its reminder time is due.
func (a *Appointment) IsDue(now time.Time) bool {
	return a.Status == StatusScheduled && !a.ReminderTime.After(now)
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	PhoneNumber string
	Status      Status
}

// Matches reports whether a satisfies the filter.
func (f ListFilter) Matches(a *Appointment) bool {
	if f.PhoneNumber != "" && a.PhoneNumber != f.PhoneNumber {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// StatusUpdate is the change applied by UpdateStatus.
// Receipt and Error are only written when non-empty.
// When From is set the update applies only while the record is still in that status.
type StatusUpdate struct {
	Status  Status
	From    Status
	Receipt string
	Error   string
}
