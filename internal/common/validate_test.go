package common_test

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/common"
)

type samplePayload struct {
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	InvoiceIDs []int64         `json:"invoiceIds" validate:"required,min=1,dive,gt=0"`
	OrderID    string          `json:"orderId" validate:"omitempty,max=64"`
}

func TestValidateReportsFirstViolationWithJSONNames(t *testing.T) {
	err := common.Validate(samplePayload{Amount: decimal.Zero, InvoiceIDs: []int64{1}})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	require.Equal(t, common.CodeValidation, appErr.Code)
	require.Equal(t, "amount must be greater than 0", appErr.Message)

	err = common.Validate(samplePayload{Amount: decimal.NewFromInt(5), InvoiceIDs: []int64{}})
	appErr, ok = common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "invoiceIds must contain at least 1 item(s)", appErr.Message)

	err = common.Validate(samplePayload{Amount: decimal.NewFromInt(5)})
	appErr, ok = common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "invoiceIds is required", appErr.Message)
}

func TestValidateAcceptsFractionalAmounts(t *testing.T) {
	require.NoError(t, common.Validate(samplePayload{
		Amount:     decimal.RequireFromString("0.01"),
		InvoiceIDs: []int64{2, 3},
	}))
}
