package app

import (
	"context"
	"fmt"
	"time"

	"appointment_reminder/internal/domain/appointment"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrNotInProgress = fmt.Errorf("appointment is not in progress")
var ErrClaimNotStale = fmt.Errorf("claim is not stale yet")

// staleClaimReason is recorded as last_error when an operator fails a stuck claim.
const staleClaimReason = "marked failed by operator: claim went stale without a recorded outcome"

// AdminService lets the operator resolve reminders left in_progress,
// e.g. when the process died between dispatch and the status write.
type AdminService struct {
	repo            appointment.Repository
	adminTelegramID int64
	staleAfter      time.Duration
	now             func() time.Time
}

func NewAdminService(repo appointment.Repository, adminID int64, staleAfter time.Duration) *AdminService {
	return &AdminService{
		repo:            repo,
		adminTelegramID: adminID,
		staleAfter:      staleAfter,
		now:             time.Now,
	}
}

// IsAdmin reports whether userID is the configured admin. An unset admin ID matches nobody.
func (s *AdminService) IsAdmin(userID int64) bool {
	return s.adminTelegramID != 0 && userID == s.adminTelegramID
}

func (s *AdminService) isStale(a *appointment.Appointment) bool {
	return a.ClaimedAt.Valid && s.now().Sub(a.ClaimedAt.Time) >= s.staleAfter
}

// ListStuckClaims returns in_progress appointments claimed at least staleAfter ago.
func (s *AdminService) ListStuckClaims(ctx context.Context, performingAdminID int64) ([]*appointment.Appointment, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}

	claimed, err := s.repo.List(ctx, appointment.ListFilter{Status: appointment.StatusInProgress})
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress appointments: %w", err)
	}

	stuck := make([]*appointment.Appointment, 0, len(claimed))
	for _, a := range claimed {
		if s.isStale(a) {
			stuck = append(stuck, a)
		}
	}
	return stuck, nil
}

// MarkClaimFailed moves a stale in_progress appointment to failed. It never re-arms a reminder.
func (s *AdminService) MarkClaimFailed(ctx context.Context, performingAdminID int64, id string) (*appointment.Appointment, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}

	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err // ErrNotFound is propagated as is
	}
	if target.Status != appointment.StatusInProgress || !appointment.CanTransition(target.Status, appointment.StatusFailed) {
		return target, ErrNotInProgress
	}
	if !s.isStale(target) {
		return target, ErrClaimNotStale
	}

	// The dispatch may still finish between the read above and this write.
	ok, err := s.repo.UpdateStatus(ctx, id, appointment.StatusUpdate{
		Status: appointment.StatusFailed,
		From:   appointment.StatusInProgress,
		Error:  staleClaimReason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark appointment as failed: %w", err)
	}
	if !ok {
		return target, ErrNotInProgress
	}

	target.Status = appointment.StatusFailed
	target.LastError.String, target.LastError.Valid = staleClaimReason, true
	return target, nil
}
