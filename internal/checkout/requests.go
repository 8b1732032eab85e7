package checkout

import "github.com/shopspring/decimal"

// Amounts sent by clients are display hints; the charge is always priced
// from the catalog or invoice repository.

type serviceIntentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required,gt=0"`
	ServiceID int64           `json:"serviceId" validate:"required,gt=0"`
}

type invoiceIntentRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"required,gt=0"`
	InvoiceIDs []int64         `json:"invoiceIds" validate:"required,min=1,dive,gt=0"`
}

type paypalOrderRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required,gt=0"`
	IsTestPayment bool            `json:"isTestPayment"`
	ServiceID     int64           `json:"serviceId" validate:"omitempty,gt=0"`
	InvoiceIDs    []int64         `json:"invoiceIds" validate:"omitempty,dive,gt=0"`
}

type captureRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type serviceIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

type invoiceIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type testPaymentResponse struct {
	ClientSecret string  `json:"clientSecret"`
	Amount       float64 `json:"amount"`
	Message      string  `json:"message"`
}
