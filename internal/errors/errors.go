package errors

import (
	"errors"
	"fmt"
	"strings"
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// NewIndexedValidationError reports a problem with the n-th element of a list (1-based).
func NewIndexedValidationError(kind string, index int, msg string) error {
	return &ValidationError{Msg: fmt.Sprintf("Validation error at %s %d: %s", kind, index, msg)}
}

type ValidationErrors struct {
	Errors []error
}

func (ve *ValidationErrors) Error() string {
	errorMessages := ve.Messages()
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(errorMessages, "; "))
}

func (ve *ValidationErrors) Add(err error) {
	ve.Errors = append(ve.Errors, err)
}

func (ve *ValidationErrors) Messages() []string {
	errorMessages := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		errorMessages[i] = err.Error()
	}
	return errorMessages
}

// OrNil returns nil when nothing was collected so callers can `return ve.OrNil()`.
func (ve *ValidationErrors) OrNil() error {
	if len(ve.Errors) == 0 {
		return nil
	}
	return ve
}

func IsValidationErrors(err error) bool {
	var validationErrors *ValidationErrors
	return errors.As(err, &validationErrors)
}

// AsValidationErrors returns the collected messages when err is a *ValidationErrors.
func AsValidationErrors(err error) ([]string, bool) {
	var validationErrors *ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil, false
	}
	return validationErrors.Messages(), true
}
