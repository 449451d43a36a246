// Package errors provides the service error taxonomy shared by all COACH
// microservices. A ServiceError carries a stable code and the HTTP status it
// renders as, so that errors survive a round trip through a proxy call.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure across service boundaries.
type ErrorCode string

const (
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken     ErrorCode = "INVALID_TOKEN"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeRateLimited      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable      ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// InvalidUserTokenMessage is the message returned whenever a user_id/token
// pair fails validation.
const InvalidUserTokenMessage = "Invalid user token"

// ServiceError is an error with a code, an HTTP status and optional details.
type ServiceError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// MissingParameter reports a declared endpoint parameter absent from a request.
func MissingParameter(name string) *ServiceError {
	return newError(CodeMissingParameter, http.StatusBadRequest,
		fmt.Sprintf("missing parameter: %s", name), nil).WithDetails("parameter", name)
}

// InvalidInput reports a malformed value.
func InvalidInput(field, reason string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest,
		fmt.Sprintf("%s: %s", field, reason), nil).WithDetails("field", field)
}

func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidUserToken is returned when a user_id/token pair does not validate.
func InvalidUserToken() *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, InvalidUserTokenMessage, nil)
}

func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound reports a missing resource. id may be empty.
func NotFound(resource, id string) *ServiceError {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", resource, id)
	}
	return newError(CodeNotFound, http.StatusNotFound, msg, nil)
}

func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// Unavailable reports a peer service that could not be reached.
func Unavailable(service string, err error) *ServiceError {
	return newError(CodeUnavailable, http.StatusBadGateway,
		fmt.Sprintf("%s unavailable", service), err).WithDetails("service", service)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// FromStatus builds a ServiceError for a remote failure that did not carry
// a structured body.
func FromStatus(status int, message string) *ServiceError {
	code := CodeInternal
	switch status {
	case http.StatusBadRequest:
		code = CodeInvalidInput
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusForbidden:
		code = CodeForbidden
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusConflict:
		code = CodeConflict
	case http.StatusTooManyRequests:
		code = CodeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = CodeUnavailable
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return newError(code, status, message, nil)
}

// GetServiceError extracts a ServiceError from err's chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status err should render as.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil && se.HTTPStatus != 0 {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// Re-exported so callers can import this package alone.
var (
	New    = stderrors.New
	As     = stderrors.As
	Unwrap = stderrors.Unwrap
	Join   = stderrors.Join
)

// IsError wraps the standard library errors.Is.
func IsError(err, target error) bool {
	return stderrors.Is(err, target)
}
