// Package apperrors holds the error kinds shared by the record store, the
// job queue and the workers.
package apperrors

import "errors"

// Caller-facing errors. These are returned synchronously and never retried.
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrNotFound         = errors.New("resource not found")
)

// Job errors.
var (
	// ErrFileNotFound is terminal for an import attempt.
	ErrFileNotFound = errors.New("file not found")

	// ErrRowValidation and ErrStoreWrite abort the current attempt and are
	// retried up to the job's attempt budget.
	ErrRowValidation = errors.New("row validation error")
	ErrStoreWrite    = errors.New("store write error")

	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// CustomError carries a human readable message and optional details on top
// of one of the sentinel errors above.
type CustomError struct {
	Err     error
	Message string
	Details map[string]any
}

// Error implements error.
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap lets errors.Is match the sentinel.
func (e *CustomError) Unwrap() error {
	return e.Err
}

// WithDetails attaches context to the error.
func (e *CustomError) WithDetails(details map[string]any) *CustomError {
	e.Details = details
	return e
}

// New wraps a sentinel with a message.
func New(kind error, message string) *CustomError {
	return &CustomError{Err: kind, Message: message}
}

// Validation returns a ValidationFailed error with the given message.
func Validation(message string) *CustomError {
	return New(ErrValidationFailed, message)
}

// NotFound returns a NotFound error with the given message.
func NotFound(message string) *CustomError {
	return New(ErrNotFound, message)
}

// DetailsOf returns the details attached to the first CustomError in err's
// chain, or nil.
func DetailsOf(err error) map[string]any {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Details
	}
	return nil
}
