package errors

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeSession     = "SESSION_ERROR"
	CodeRateLimit   = "RATE_LIMIT_ERROR"
	CodeUnavailable = "UNAVAILABLE_ERROR"
	CodeGeneration  = "GENERATION_ERROR"
	CodeValidation  = "VALIDATION_ERROR"
	CodeCache       = "CACHE_ERROR"
	CodeStore       = "STORE_ERROR"
	CodeOwnership   = "OWNERSHIP_ERROR"
)

type SessionError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

func NewSessionError(message, code string, statusCode int, context map[string]any) *SessionError {
	return &SessionError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *SessionError) WithCause(cause error) *SessionError {
	e.Cause = cause
	return e
}

// RateLimitError signals the provider explicitly rejected the call for quota
// reasons. The turn engine waits a fixed delay before retrying these.
type RateLimitError struct {
	*SessionError
}

func NewRateLimitError(message string, cause error) *RateLimitError {
	return &RateLimitError{
		SessionError: &SessionError{
			Message:    message,
			Code:       CodeRateLimit,
			StatusCode: 429,
			Cause:      cause,
		},
	}
}

// UnavailableError signals a transient provider outage. The turn engine
// retries these with exponential backoff.
type UnavailableError struct {
	*SessionError
}

func NewUnavailableError(message string, cause error) *UnavailableError {
	return &UnavailableError{
		SessionError: &SessionError{
			Message:    message,
			Code:       CodeUnavailable,
			StatusCode: 503,
			Cause:      cause,
		},
	}
}

// GenerationError covers every non-retriable generator failure.
type GenerationError struct {
	*SessionError
	Operation string
}

func NewGenerationError(message, operation string, cause error) *GenerationError {
	return &GenerationError{
		SessionError: &SessionError{
			Message:    message,
			Code:       CodeGeneration,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
			},
			Cause: cause,
		},
		Operation: operation,
	}
}

type ValidationError struct {
	*SessionError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		SessionError: &SessionError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*SessionError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		SessionError: &SessionError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type StoreError struct {
	*SessionError
	Operation string
}

func NewStoreError(message, operation string, cause error) *StoreError {
	return &StoreError{
		SessionError: &SessionError{
			Message:    message,
			Code:       CodeStore,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
			},
			Cause: cause,
		},
		Operation: operation,
	}
}

// OwnershipError rejects publish-style actions issued without a valid creator.
// Fatal to the action, never to the session.
type OwnershipError struct {
	*SessionError
}

func NewOwnershipError(message string) *OwnershipError {
	return &OwnershipError{
		SessionError: &SessionError{
			Message:    message,
			Code:       CodeOwnership,
			StatusCode: 403,
		},
	}
}

// IsRateLimit reports whether err belongs to the rate-limit retry class.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsUnavailable reports whether err belongs to the transient-unavailable retry class.
func IsUnavailable(err error) bool {
	var ua *UnavailableError
	return errors.As(err, &ua)
}

// IsRetriable reports whether the turn engine may retry after err.
func IsRetriable(err error) bool {
	return IsRateLimit(err) || IsUnavailable(err)
}
