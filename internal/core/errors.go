package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories the request layer can
// produce. Every fallible operation in the core surfaces one of these.
type ErrorKind string

const (
	ErrRateLimited ErrorKind = "rate_limited"
	ErrAuthExpired ErrorKind = "auth_expired"
	ErrNotFound    ErrorKind = "not_found"
	ErrAPIError    ErrorKind = "api_error"
	ErrNetwork     ErrorKind = "network_error"
	ErrParse       ErrorKind = "parse_error"
)

// ToolError is the error value carried across the request contract.
// Retryable is true only for rate limiting and transient network failures.
type ToolError struct {
	Kind      ErrorKind
	Provider  string
	Message   string
	Retryable bool
	Err       error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

func NewToolError(kind ErrorKind, provider, message string) *ToolError {
	return &ToolError{
		Kind:      kind,
		Provider:  provider,
		Message:   message,
		Retryable: kind == ErrRateLimited,
	}
}

func RateLimitedError(provider, message string) *ToolError {
	return &ToolError{Kind: ErrRateLimited, Provider: provider, Message: message, Retryable: true}
}

func AuthExpiredError(provider, message string) *ToolError {
	return &ToolError{Kind: ErrAuthExpired, Provider: provider, Message: message}
}

func NotFoundError(provider, message string) *ToolError {
	return &ToolError{Kind: ErrNotFound, Provider: provider, Message: message}
}

func APIError(provider, message string, retryable bool) *ToolError {
	return &ToolError{Kind: ErrAPIError, Provider: provider, Message: message, Retryable: retryable}
}

func NetworkError(provider string, err error) *ToolError {
	return &ToolError{
		Kind:      ErrNetwork,
		Provider:  provider,
		Message:   "network request failed",
		Retryable: true,
		Err:       err,
	}
}

func ParseError(provider, message string, err error) *ToolError {
	return &ToolError{Kind: ErrParse, Provider: provider, Message: message, Err: err}
}

// AsToolError unwraps err to the *ToolError the request contract promises.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Hint returns a short remediation or retry hint for CLI rendering.
func (e *ToolError) Hint() string {
	switch e.Kind {
	case ErrRateLimited:
		return "rate limited; retry after a short wait (daily quotas reset at midnight KST)"
	case ErrAuthExpired:
		return "authentication rejected; check the API key / app credentials"
	case ErrNotFound:
		return "no data for this query; check the identifier and period"
	case ErrNetwork:
		return "transient network failure; retry"
	case ErrParse:
		return "upstream returned an unexpected payload; report if persistent"
	default:
		return "upstream API error"
	}
}
