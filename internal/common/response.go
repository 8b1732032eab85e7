package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrorBody is the flat error payload returned by the API. Browser clients
// read message directly, so it is never nested.
type ErrorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{Code: code, Message: message, Details: details})
}

// WriteError renders err. AppErrors keep their status and code; anything else
// becomes a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	JSON(w, status, ErrorBody{
		Message:   appErr.Message,
		Code:      appErr.Code,
		ErrorType: appErr.ErrorType,
		Details:   appErr.Details,
	})
}

// DecodeJSON decodes the request body into dst. An empty body leaves dst
// untouched so optional payloads decode as zero values.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &AppError{Code: CodeTooLarge, Message: "request entity too large", HTTPStatus: http.StatusRequestEntityTooLarge, Err: err}
		}
		return BadRequest("invalid JSON body")
	}
	return nil
}
