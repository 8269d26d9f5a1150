package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Pipeline errors
	ErrNormalization          = errors.New("normalization failed")
	ErrReferenceNotFound      = errors.New("reference not found")
	ErrDuplicateWriteConflict = errors.New("duplicate write conflict")
	ErrExternalAPI            = errors.New("external api error")

	// Lookup errors
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrPaymentNotFound      = errors.New("payment not found")

	// Run errors
	ErrStoreUnavailable = errors.New("document store unavailable")
	ErrRunLocked        = errors.New("another reconcile run holds the lock")
	ErrEmptyDocument    = errors.New("document is empty")
)

// NormalizationError is raised when an identifying field cannot be found
// under any known legacy name. TicketIndex is -1 for registration-level errors.
type NormalizationError struct {
	RegistrationID string
	TicketIndex    int
	Field          string
	Reason         string
	// Kept is set when the ticket survives and only the field was left as stored
	Kept bool
}

func (e *NormalizationError) Error() string {
	if e.TicketIndex >= 0 {
		return fmt.Sprintf("registration %s ticket %d: %s: %s", e.RegistrationID, e.TicketIndex, e.Field, e.Reason)
	}
	return fmt.Sprintf("registration %s: %s: %s", e.RegistrationID, e.Field, e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	return ErrNormalization
}

// ReferenceNotFoundError tags a ticket whose eventTicketId resolves to
// neither an event ticket nor a package
type ReferenceNotFoundError struct {
	RegistrationID string
	TicketID       string
	EventTicketID  string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("registration %s ticket %s: event ticket %q not found", e.RegistrationID, e.TicketID, e.EventTicketID)
}

func (e *ReferenceNotFoundError) Unwrap() error {
	return ErrReferenceNotFound
}

// DuplicateWriteConflict records two raw shapes that normalize to the same
// canonical field. Resolution is always in favour of the canonical shape.
type DuplicateWriteConflict struct {
	RegistrationID string
	Canonical      string
	Legacy         string
}

func (e *DuplicateWriteConflict) Error() string {
	return fmt.Sprintf("registration %s: both %s and %s present, keeping %s", e.RegistrationID, e.Canonical, e.Legacy, e.Canonical)
}

func (e *DuplicateWriteConflict) Unwrap() error {
	return ErrDuplicateWriteConflict
}

// ExternalAPIError wraps a payment provider failure
type ExternalAPIError struct {
	Provider   string
	PaymentID  string
	StatusCode int
	Err        error
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s payment %s: status %d: %v", e.Provider, e.PaymentID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s payment %s: %v", e.Provider, e.PaymentID, e.Err)
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrExternalAPI) hold for every provider failure
func (e *ExternalAPIError) Is(target error) bool {
	return target == ErrExternalAPI
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrReferenceNotFound)
}

// IsRecordableError reports errors that are recorded per document while the
// batch continues
func IsRecordableError(err error) bool {
	return errors.Is(err, ErrNormalization) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrDuplicateWriteConflict) ||
		errors.Is(err, ErrExternalAPI)
}

// IsFatalError reports errors that abort the whole run
func IsFatalError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrRunLocked)
}
