package shared

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSessionNotStarted = errors.New("session not started")
	ErrBusy              = errors.New("session busy")
	ErrSessionClosed     = errors.New("session closed")
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func BadRequest(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusBadRequest)
}

func NotFound(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusNotFound)
}

func TooManyRequests(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusTooManyRequests)
}

func InternalError(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusInternalServerError)
}
