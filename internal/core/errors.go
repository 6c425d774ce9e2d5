package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty account name")
	ErrSameAccount      = errors.New("debit and credit account must differ")
)

// ValidationError reports bad input shape or range. Callers must not
// blindly retry; the request itself is wrong.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ConflictError reports a uniqueness, idempotency or referential
// conflict. Automation treats it as "already satisfied"; user-initiated
// operations surface it as a real failure.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// NewConflictError builds a ConflictError with a formatted reason.
func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError blocks billing math when mandatory credit-card
// fields are missing. MissingFields names each absent field so the
// caller can guide remediation.
type ConfigurationError struct {
	AccountName   string
	MissingFields []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("account %q is missing required credit-card settings: %s",
		e.AccountName, strings.Join(e.MissingFields, ", "))
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsValidation reports whether err is (or wraps) a ValidationError or
// one of the validation sentinels.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEmptyDescription) ||
		errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrSameAccount)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
