// Package businessflow contains the core business logic of the visit counter and milestone issuance
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Counter-related errors
	ErrCounterNotFound      = errors.New("counter not found")
	ErrCounterAlreadyExists = errors.New("counter already exists")
	ErrInvalidInitialCount  = errors.New("initial count must not be negative")
	ErrInvalidDigitWidth    = errors.New("digit width must be between 1 and 8")
	ErrInvalidMilestoneKind = errors.New("unknown milestone kind")

	// Asset-related errors
	ErrAssetNotFound      = errors.New("asset not found")
	ErrAssetAlreadyExists = errors.New("asset already exists")

	// Issuance-related errors
	ErrIssuanceFailed       = errors.New("token issuance failed")
	ErrNotMilestone         = errors.New("count is not a milestone")
	ErrMilestoneNotReached  = errors.New("milestone has not been reached yet")
	ErrOwnerIDRequired      = errors.New("owner id is required")
	ErrIssuanceNotCompleted = errors.New("issuance has not completed for this token")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCounterNotFound(err error) bool {
	return errors.Is(err, ErrCounterNotFound)
}

func IsCounterAlreadyExists(err error) bool {
	return errors.Is(err, ErrCounterAlreadyExists)
}

func IsAssetNotFound(err error) bool {
	return errors.Is(err, ErrAssetNotFound)
}

func IsAssetAlreadyExists(err error) bool {
	return errors.Is(err, ErrAssetAlreadyExists)
}

// IsNotFound reports whether err maps to a missing resource
func IsNotFound(err error) bool {
	return IsCounterNotFound(err) || IsAssetNotFound(err)
}

// IsAlreadyExists reports whether err maps to a conflicting write
func IsAlreadyExists(err error) bool {
	return IsCounterAlreadyExists(err) || IsAssetAlreadyExists(err)
}

// IsValidationError reports whether err was caused by invalid caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInitialCount) ||
		errors.Is(err, ErrInvalidDigitWidth) ||
		errors.Is(err, ErrInvalidMilestoneKind) ||
		errors.Is(err, ErrNotMilestone) ||
		errors.Is(err, ErrMilestoneNotReached) ||
		errors.Is(err, ErrOwnerIDRequired)
}

func IsIssuanceNotCompleted(err error) bool {
	return errors.Is(err, ErrIssuanceNotCompleted)
}
