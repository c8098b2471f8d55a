package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error shape shared by the gateway and the voice client.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
	RetryAfter    *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// Tool and session taxonomy.
	ErrInvalidArgument    ErrorType = "invalid_argument"
	ErrMalformedArguments ErrorType = "malformed_arguments"
	ErrUnknownTool        ErrorType = "unknown_tool"
	ErrUpstream           ErrorType = "upstream_error"
	ErrConfiguration      ErrorType = "configuration_error"
	ErrCredential         ErrorType = "credential_error"
	ErrTransport          ErrorType = "transport_error"

	// Gateway surface.
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
)

// NewInvalidArgument creates an argument validation error for param.
func NewInvalidArgument(param, message string) *Error {
	return &Error{Type: ErrInvalidArgument, Message: message, Param: param}
}

// NewMalformedArguments reports tool arguments that are not valid JSON.
func NewMalformedArguments(cause error) *Error {
	msg := "arguments are not valid JSON"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{Type: ErrMalformedArguments, Message: msg, cause: cause}
}

// NewUnknownTool reports a tool name outside the declared set.
func NewUnknownTool(name string) *Error {
	return &Error{Type: ErrUnknownTool, Message: fmt.Sprintf("unknown tool %q", name), Param: "name"}
}

// NewUpstreamError wraps a provider failure.
func NewUpstreamError(provider string, cause error) *Error {
	e := &Error{Type: ErrUpstream, Message: provider + " request failed", cause: cause}
	if cause != nil {
		e.Message = fmt.Sprintf("%s: %v", provider, cause)
		e.ProviderError = cause.Error()
	}
	return e
}

// NewConfigurationError reports a missing credential or setting.
func NewConfigurationError(message string) *Error {
	return &Error{Type: ErrConfiguration, Message: message}
}

// NewCredentialError reports a failure to mint a realtime credential.
func NewCredentialError(cause error) *Error {
	e := &Error{Type: ErrCredential, Message: "could not issue realtime credential", cause: cause}
	if cause != nil {
		e.Message = fmt.Sprintf("%s: %v", e.Message, cause)
	}
	return e
}

// NewTransportError reports a realtime channel failure.
func NewTransportError(message string, cause error) *Error {
	e := &Error{Type: ErrTransport, Message: message, cause: cause}
	if cause != nil {
		e.Message = fmt.Sprintf("%s: %v", message, cause)
	}
	return e
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{Type: ErrRateLimit, Message: message, RetryAfter: &retryAfter}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrUpstream, ErrAPI:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsType reports whether err wraps a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Type == t
}

// TypeOf returns the taxonomy type of err, or ErrAPI for unclassified errors.
func TypeOf(err error) ErrorType {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrAPI
}
