package tickstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios. Every transition that
// returns one of these left the ledger unchanged.
var (
	// General errors
	ErrInvalidInput = errors.New("tickstream: invalid input")
	ErrBadOrigin    = errors.New("tickstream: bad origin")
	ErrUnknownCall  = errors.New("tickstream: unknown call")

	// Stream errors
	ErrStreamExists   = errors.New("tickstream: stream already exists")
	ErrStreamNotFound = errors.New("tickstream: stream not found")

	// Escrow errors
	ErrInsufficientFunds   = errors.New("tickstream: insufficient funds")
	ErrReservationNotFound = errors.New("tickstream: reservation not found")

	// Metering errors
	ErrInsufficientBalance = errors.New("tickstream: insufficient reserved balance")
	ErrInvalidTicks        = errors.New("tickstream: ticks must be positive")
	ErrTransferFailed      = errors.New("tickstream: transfer failed")
	ErrTickConflict        = errors.New("tickstream: stream advanced concurrently")

	// Arithmetic errors
	ErrArithmeticOverflow = errors.New("tickstream: arithmetic overflow")

	// Store errors
	ErrStoreNotReady   = errors.New("tickstream: store not ready")
	ErrStoreClosed     = errors.New("tickstream: store is closed")
	ErrMigrationFailed = errors.New("tickstream: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tickstream: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tickstream: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tickstream: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStreamNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsRejected returns true if the error is a domain rejection of a
// transition, as opposed to an infrastructure failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrBadOrigin) ||
		errors.Is(err, ErrUnknownCall) ||
		errors.Is(err, ErrStreamExists) ||
		errors.Is(err, ErrStreamNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTicks) ||
		errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrArithmeticOverflow)
}

// IsRetryable returns true if the error is temporary and the caller may
// resubmit. The engine itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTickConflict)
}
