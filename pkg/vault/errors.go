package vault

import (
	"errors"
	"fmt"
)

// Sentinel causes. They are always returned wrapped in one of the
// categorized error types below, so callers can match either the
// category (errors.As) or the cause (errors.Is).
var (
	ErrVaultLocked        = errors.New("vault: vault is locked")
	ErrNotInitialized     = errors.New("vault: vault has not been set up")
	ErrAlreadyInitialized = errors.New("vault: vault is already set up")
	ErrPasswordTooShort   = fmt.Errorf("vault: password must be at least %d characters", MinPasswordLength)
	ErrInvalidDataKey     = errors.New("vault: malformed data key")
	ErrWrongSecret        = errors.New("vault: password or data key is incorrect")
	ErrTampered           = errors.New("vault: record failed authentication")
	ErrNotFound           = errors.New("vault: record not found")
	ErrNotTrashed         = errors.New("vault: note is not in trash")
	ErrInsufficientDisk   = errors.New("vault: insufficient disk space")
)

// AuthError reports a password or data key that did not unwrap the master
// key. It never says which part of the check failed.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError reports malformed input.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// StateError reports an operation that is not valid in the current state,
// such as any data access while the vault is locked.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StateError) Unwrap() error { return e.Err }

// IntegrityError reports a record whose authentication tag did not verify.
// Record names the affected row as "<table>/<id>" when known.
type IntegrityError struct {
	Op     string
	Record string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Record, e.Err)
	}
	return e.Op + ": " + e.Err.Error()
}
func (e *IntegrityError) Unwrap() error { return e.Err }

// IOError reports a filesystem or storage failure.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// Helpers for the common cases.

func lockedErr(op string) error { return &StateError{Op: op, Err: ErrVaultLocked} }

// Validation wraps err as a ValidationError.
func Validation(op string, err error) error { return &ValidationError{Op: op, Err: err} }

// NotFound reports a missing record as a ValidationError.
func NotFound(op, what, id string) error {
	return &ValidationError{Op: op, Err: fmt.Errorf("%w: %s %s", ErrNotFound, what, id)}
}

// State wraps err as a StateError.
func State(op string, err error) error { return &StateError{Op: op, Err: err} }

// IO wraps err as an IOError unless it is already categorized.
func IO(op string, err error) error {
	if err == nil || IsCategorized(err) {
		return err
	}
	return &IOError{Op: op, Err: err}
}

// Auth builds an AuthError for a secret that failed to unwrap.
func Auth(op string) error { return &AuthError{Op: op, Err: ErrWrongSecret} }

// IsCategorized reports whether err already carries one of the taxonomy types.
func IsCategorized(err error) bool {
	var (
		a *AuthError
		v *ValidationError
		s *StateError
		i *IntegrityError
		o *IOError
	)
	return errors.As(err, &a) || errors.As(err, &v) || errors.As(err, &s) ||
		errors.As(err, &i) || errors.As(err, &o)
}
