package custody

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("custody: not found")
	ErrAlreadyExists = errors.New("custody: already exists")
	ErrInvalidInput  = errors.New("custody: invalid input")

	// Auth errors
	ErrUnknownIdentity = errors.New("custody: unknown identity")
	ErrReplayedNonce   = errors.New("custody: nonce already used")

	// Validation errors
	ErrInvalidNetwork         = errors.New("custody: unknown network")
	ErrUnknownInternalAddress = errors.New("custody: unknown internal address")
	ErrInvalidAmount          = errors.New("custody: amount must be positive")

	// Funds errors
	ErrInsufficientFunds = errors.New("custody: insufficient available funds")

	// Backend errors
	ErrWalletUnavailable = errors.New("custody: wallet backend unavailable")

	// Persistence errors
	ErrLedgerUnavailable = errors.New("custody: ledger store unavailable")
	ErrStoreClosed       = errors.New("custody: store is closed")
	ErrMigrationFailed   = errors.New("custody: migration failed")

	// Account errors
	ErrUserNotFound       = errors.New("custody: user not found")
	ErrUsernameTaken      = errors.New("custody: username or key already registered")
	ErrRegistrationFailed = errors.New("custody: registration failed")

	// Transfer errors
	ErrDebitNotFound   = errors.New("custody: debit not found")
	ErrAddressNotFound = errors.New("custody: address not found")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("custody: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "custody: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("custody: %d errors occurred", len(e.Errors))
}

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

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrDebitNotFound) ||
		errors.Is(err, ErrAddressNotFound)
}

// IsAlreadyExists returns true if the error is a uniqueness conflict.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrUsernameTaken)
}

// IsInsufficientFunds returns true if the error is a funds rejection.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsAuthError returns true if the error means the request must not be
// processed for identity or replay reasons.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnknownIdentity) ||
		errors.Is(err, ErrReplayedNonce)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried. Replay rejections are NOT retryable with the same
// nonce; callers must mint a new one.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable) ||
		errors.Is(err, ErrWalletUnavailable)
}
