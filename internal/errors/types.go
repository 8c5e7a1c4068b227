package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an error for the dispatcher's retry policy and for
// user-facing messaging.
type ErrorCode string

const (
	// Webhook ingestion
	ErrCodeDuplicateEvent ErrorCode = "DUPLICATE_EVENT"
	ErrCodePayload        ErrorCode = "PAYLOAD_ERROR"

	// Gateway responses
	ErrCodeNotFoundUpstream ErrorCode = "NOT_FOUND_UPSTREAM"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeTransient        ErrorCode = "TRANSIENT_PROVIDER"

	// Agent pipeline
	ErrCodeToolExecution   ErrorCode = "TOOL_EXECUTION"
	ErrCodeReplyGeneration ErrorCode = "REPLY_GENERATION"

	// Internal
	ErrCodeDatabase ErrorCode = "DATABASE"
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// AppError is a classified application error. Callers inspect the code, not
// raw gateway status codes.
type AppError struct {
	Code        ErrorCode
	Message     string
	Cause       error
	Retryable   bool
	UserMessage string
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

// WithUserMessage sets a plain-language message suitable for an in-chat
// failure notice.
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: defaultRetryable(code),
	}
}

// Wrap wraps an existing error with a classification.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: defaultRetryable(code),
	}
}

func defaultRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeTransient, ErrCodeDatabase:
		return true
	default:
		return false
	}
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode extracts the classification of an error; unclassified errors are
// internal.
func GetCode(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether the dispatcher may retry after this error.
func IsRetryable(err error) bool {
	if appErr, ok := asAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// IsRateLimited reports whether the error is the gateway's throttling signal.
func IsRateLimited(err error) bool {
	return GetCode(err) == ErrCodeRateLimited
}

// IsForbidden reports whether the error indicates a credentials or
// permissions problem that retrying cannot fix.
func IsForbidden(err error) bool {
	return GetCode(err) == ErrCodeForbidden
}

// IsNotFoundUpstream reports whether the gateway answered "no such data"
// (e.g. no profile picture), which callers treat as absent data.
func IsNotFoundUpstream(err error) bool {
	return GetCode(err) == ErrCodeNotFoundUpstream
}

// IsPayload reports whether the error came from a malformed webhook payload.
func IsPayload(err error) bool {
	return GetCode(err) == ErrCodePayload
}

// GetUserMessage extracts a user-facing message from an error, falling back
// to a generic notice.
func GetUserMessage(err error) string {
	if appErr, ok := asAppError(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "something went wrong on my end"
}
