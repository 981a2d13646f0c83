// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Provider errors. Every adapter failure is classified as exactly
	// one of the three provider codes; the orchestrator switches on
	// the code for health accounting and rate-limit cool-downs.
	ErrProviderNetwork     = &Error{Code: "PROVIDER_NETWORK", Message: "provider unreachable"}
	ErrProviderRateLimited = &Error{Code: "PROVIDER_RATE_LIMITED", Message: "provider rate limited"}
	ErrProviderMalformed   = &Error{Code: "PROVIDER_MALFORMED", Message: "provider response malformed"}

	// Data errors
	ErrNoData       = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrAssetUnknown = &Error{Code: "ASSET_UNKNOWN", Message: "asset not tracked"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
