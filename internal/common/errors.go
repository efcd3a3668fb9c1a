package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotPDF       = errors.New("not a PDF document")
	ErrNoDocuments  = errors.New("no documents selected")

	// ErrAcquisition covers page read, render and OCR failures. Fatal to the run.
	ErrAcquisition = errors.New("document text acquisition failed")

	ErrEmptyResponse     = errors.New("empty response from generation backend")
	ErrMalformedResponse = errors.New("malformed response from generation backend")
	ErrBackend           = errors.New("generation backend request failed")

	ErrQA            = errors.New("question could not be answered")
	ErrRunInProgress = errors.New("an extraction run is already in progress")
	ErrDatabase      = errors.New("database error")
)

// Error codes used with AppError.
const (
	CodeConfig    = "CONFIG_ERROR"
	CodeInput     = "INPUT_ERROR"
	CodeDatabase  = "DATABASE_ERROR"
	CodeInterrupt = "INTERRUPTED"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsRecoverable reports whether err belongs to a category handled locally
// (bad input or a failed question) rather than one that ends a run.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNotPDF) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrQA)
}
