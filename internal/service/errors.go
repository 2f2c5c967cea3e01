package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInternal            = errors.New("internal server error")
	ErrNotFound            = errors.New("notification not found")
	ErrForbidden           = errors.New("notification belongs to another user")
	ErrInvalidType         = errors.New("notification is not a project invitation")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrBrokenInvariant     = errors.New("notification state invariant violated")
	ErrGrantPending        = errors.New("membership grant is pending reconciliation")
)

// ExternalFailureError means the invitation is recorded as accepted but the
// membership grant did not go through. The flag is never rolled back; the
// grant is re-driven by reconciliation. Retries keep failing with
// ErrGrantPending until it lands, then return AlreadyAccepted.
type ExternalFailureError struct {
	NotificationID uuid.UUID
	Reason         error
}

func (e *ExternalFailureError) Error() string {
	return fmt.Sprintf("membership grant failed for accepted invitation(%s): %s", e.NotificationID.String(), e.Reason.Error())
}

func (e *ExternalFailureError) Unwrap() error {
	return e.Reason
}

func (e *ExternalFailureError) Retryable() bool {
	return true
}
