package evidence

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for evidence sources.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorOutage         ErrorCategory = "provider_outage"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorInternal       ErrorCategory = "internal"
)

// ErrUnavailable marks any evidence source failure. The pipeline fails closed on it.
var ErrUnavailable = errors.New("evidence unavailable")

// SourceError wraps an evidence source failure with its category.
type SourceError struct {
	Category ErrorCategory
	Source   string
	Message  string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evidence source %s [%s]: %s: %v", e.Source, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("evidence source %s [%s]: %s", e.Source, e.Category, e.Message)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Err}
}

// NewSourceError builds a SourceError, classifying context deadlines as timeouts.
func NewSourceError(category ErrorCategory, source, message string, err error) *SourceError {
	if errors.Is(err, context.DeadlineExceeded) {
		category = ErrorTimeout
	}
	return &SourceError{Category: category, Source: source, Message: message, Err: err}
}

// CategoryOf extracts the category of an evidence error.
func CategoryOf(err error) ErrorCategory {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorInternal
}
