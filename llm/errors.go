package llm

import (
	"errors"
	"time"
)

// Error represents a provider-neutral LLM error.
// Type is assigned once, at the transport boundary, and consumed structurally
// by callers instead of inspecting message text.
type Error struct {
	Type        ErrorType
	Message     string
	Model       string // Model the failing call targeted, if known
	Endpoint    string // Endpoint the failing call targeted, if known
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectivity      ErrorType = "connectivity"
	ErrorTypeModelNotFound     ErrorType = "model_not_found"
	ErrorTypeUpstreamStream    ErrorType = "upstream_stream"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeConfiguration     ErrorType = "configuration"
	ErrorTypeNoModels          ErrorType = "no_models"
	ErrorTypeEmptyResponse     ErrorType = "empty_response"
	ErrorTypeServer            ErrorType = "server"
	ErrorTypeProvider          ErrorType = "provider"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown when err
// is not (and does not wrap) an *Error.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given ErrorType.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	return IsType(err, ErrorTypeRateLimit)
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewTimeoutError creates an error for a call that got no complete response within its budget.
func NewTimeoutError(model, endpoint string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeTimeout,
		Message:     "request timed out",
		Model:       model,
		Endpoint:    endpoint,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewConnectivityError creates an error for an unreachable model server.
func NewConnectivityError(endpoint string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeConnectivity,
		Message:     "cannot connect to " + endpoint,
		Endpoint:    endpoint,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewModelNotFoundError creates an error for a model the server does not have.
func NewModelNotFoundError(model string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeModelNotFound,
		Message:     "model '" + model + "' not found",
		Model:       model,
		Retryable:   true,
		StatusCode:  404,
		ProviderErr: providerErr,
	}
}

// NewUpstreamStreamError creates an error for an explicit error chunk in a response stream.
func NewUpstreamStreamError(message string) *Error {
	return &Error{
		Type:      ErrorTypeUpstreamStream,
		Message:   "stream error: " + message,
		Retryable: true,
	}
}

// NewEmptyResponseError creates an error for a response that carried no text.
func NewEmptyResponseError(model string) *Error {
	return &Error{
		Type:      ErrorTypeEmptyResponse,
		Message:   "no response content received",
		Model:     model,
		Retryable: true,
	}
}

// NewMalformedResponseError creates an error for a reply that could not be turned into valid JSON.
func NewMalformedResponseError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeMalformedResponse,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewConfigurationError creates an error for a misconfigured or disabled service.
func NewConfigurationError(message string) *Error {
	return &Error{
		Type:      ErrorTypeConfiguration,
		Message:   message,
		Retryable: false,
	}
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  429,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, statusCode int, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   true,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
}
