package utils

import (
	"fmt"
	"net/http"
)

// AppError is what a handler returns when a request fails: the HTTP status,
// the localized message sent to the client and the cause, which is only logged.
type AppError struct {
	Code    int
	Message string
	Err     error
	Fields  map[string]string // extra log fields such as the failing protocol stage
}

// NewAppError creates an AppError for an arbitrary status code.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// With attaches a log field and returns e.
func (e *AppError) With(key, value string) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

func BadRequestError(message string, err error) *AppError {
	return NewAppError(http.StatusBadRequest, message, err)
}

func UnauthorizedError(message string, err error) *AppError {
	return NewAppError(http.StatusUnauthorized, message, err)
}

func ForbiddenError(message string, err error) *AppError {
	return NewAppError(http.StatusForbidden, message, err)
}

func NotFoundError(message string, err error) *AppError {
	return NewAppError(http.StatusNotFound, message, err)
}

// ConflictError reports a sync that is already running.
func ConflictError(message string, err error) *AppError {
	return NewAppError(http.StatusConflict, message, err)
}

func InternalServerError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, message, err)
}

// BadGatewayError reports a mail server that failed or refused the request.
func BadGatewayError(message string, err error) *AppError {
	return NewAppError(http.StatusBadGateway, message, err)
}

// GatewayTimeoutError reports a mail server that did not answer in time.
func GatewayTimeoutError(message string, err error) *AppError {
	return NewAppError(http.StatusGatewayTimeout, message, err)
}
