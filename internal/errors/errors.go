// Package errors defines structured error types for failed RecroGrid API calls.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode classifies why a call to the RecroGrid server failed.
type ErrorCode string

const (
	// ErrTransport is returned when the request never got an HTTP response
	ErrTransport ErrorCode = "TRANSPORT_ERROR"
	// ErrDecode is returned when the response body is not the expected JSON
	ErrDecode ErrorCode = "DECODE_ERROR"
	// ErrValidationFailed is returned when the server rejects the request data
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrNotFound is returned when the entity or resource does not exist
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrUnauthorized is returned when the access token is missing or invalid
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrForbidden is returned when the user lacks permission on the entity
	ErrForbidden ErrorCode = "FORBIDDEN"
	// ErrTooManyRequests is returned when the server throttles the client
	ErrTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	// ErrInternal is returned for any other non-2xx response
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	for k, v := range details {
		e.details[k] = v
	}
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Message returns the message without the wrapped error.
func (e *APIError) Message() string {
	return e.message
}

// StatusCode returns the HTTP status code, or 0 when no response was received.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// FromStatus creates the error for a non-2xx response. The message defaults
// to the status text.
func FromStatus(statusCode int, message string) *APIError {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return NewAPIError(statusCode, codeForStatus(statusCode), message)
}

func codeForStatus(statusCode int) ErrorCode {
	switch statusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidationFailed
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrTooManyRequests
	default:
		return ErrInternal
	}
}

// Transport creates an error for a request that got no response.
func Transport(err error) *APIError {
	return NewAPIError(0, ErrTransport, "request failed").Wrap(err)
}

// Decode creates an error for an undecodable response body.
func Decode(statusCode int, err error) *APIError {
	return NewAPIError(statusCode, ErrDecode, "invalid response body").Wrap(err)
}

// IsRetryable reports whether repeating the request may succeed.
func IsRetryable(err ErrorWithStatus) bool {
	if err.Code() == ErrTransport || err.Code() == ErrTooManyRequests {
		return true
	}
	return err.StatusCode() >= http.StatusInternalServerError
}
