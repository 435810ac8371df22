// internal/domain/appointment/status.go
package appointment

// Status represents where an appointment is in its reminder lifecycle.
type Status string

const (
	StatusScheduled    Status = "scheduled"
	StatusInProgress   Status = "in_progress" // Claimed by the scheduler, dispatch under way
	StatusReminderSent Status = "reminder_sent"
	StatusFailed       Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusReminderSent, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusReminderSent || s == StatusFailed
}

// CanTransition encodes the forward-only lifecycle:
//
//	scheduled -> in_progress -> reminder_sent | failed
//	scheduled -> reminder_sent | failed
//
// Nothing ever goes back to scheduled. Stores do not enforce this; callers do.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusScheduled:
		return to == StatusInProgress || to == StatusReminderSent || to == StatusFailed
	case StatusInProgress:
		return to == StatusReminderSent || to == StatusFailed
	default:
		return false
	}
}
