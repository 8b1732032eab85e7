package common

import (
	"errors"
	"net/http"
)

// Codes shared by every route. Checkout-specific codes live with checkout.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL"
	CodeRateLimited     = "RATE_LIMITED"
	CodeReplay          = "IDEMPOTENT_REPLAY"
	CodeTooLarge        = "PAYLOAD_TOO_LARGE"
)

// AppError is an error that already knows how it should be rendered.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	ErrorType  string
	Details    any
	Err        error
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BadRequest is a 400 VALIDATION_ERROR carrying message verbatim.
func BadRequest(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
