package services

import (
	"errors"
	"fmt"

	"github.com/avtotestprime/avtotest-service/internal/validator"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("test session %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)

	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("administrator access required")
	ErrInvalidCredentials = errors.New("invalid username or password")

	ErrValidationFailed = errors.New("validation failed")

	ErrSessionExpired   = errors.New("test session expired")
	ErrAlreadyCompleted = errors.New("test session already completed")
)

// ValidationError carries field errors and matches ErrValidationFailed
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	return e.Errors.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError wraps validator output. Anything else becomes a single
// unnamed field error.
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		return &ValidationError{Errors: errs}
	}
	return &ValidationError{Errors: validator.ValidationErrors{{Message: err.Error(), Rule: "invalid"}}}
}

func newFieldValidationError(field, rule, message string) error {
	return &ValidationError{Errors: validator.NewFieldError(field, rule, message)}
}
