package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/common"
)

func TestWriteErrorKeepsFlatShape(t *testing.T) {
	rr := httptest.NewRecorder()
	err := &common.AppError{Code: "card_declined", ErrorType: "card_error", Message: "Your card was declined.", HTTPStatus: http.StatusInternalServerError}
	common.WriteError(rr, err)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Your card was declined.", body["message"])
	require.Equal(t, "card_error", body["errorType"])
	require.Equal(t, "card_declined", body["code"])
	require.NotContains(t, body, "error")
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

func TestWriteErrorFindsWrappedAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, fmt.Errorf("select service: %w", common.BadRequest("serviceId is required")))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"message":"serviceId is required","code":"VALIDATION_ERROR"}`, rr.Body.String())
}
