// Package checkout exposes the HTTP entry points that turn a visitor's
// selection into a Stripe payment intent or a PayPal order.
package checkout

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/agency-api/internal/auth"
	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/common"
	"github.com/noah-isme/agency-api/internal/payment"
)

const paymentTypeTest = "test"

// Diagnoser is implemented by adapters that can describe their setup.
type Diagnoser interface {
	Diagnostics() payment.Diagnostics
}

// PublicKeys are the browser-side credentials handed to clients.
type PublicKeys struct {
	StripePublishableKey string
	PayPalClientID       string
}

// Handler serves the checkout routes.
type Handler struct {
	Payments *payment.Service
	Catalog  billing.Repository
	Keys     PublicKeys
}

// Mount registers the checkout routes. requireAuth guards session-only routes;
// callers resolve optional identities beforehand.
func (h *Handler) Mount(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.With(requireAuth).Post("/create-payment-intent", h.CreatePaymentIntent)
	r.With(requireAuth).Post("/create-invoice-payment-intent", h.CreateInvoicePaymentIntent)
	r.Post("/test-payment", h.TestPayment)
	r.Post("/create-paypal-order", h.CreatePayPalOrder)
	r.With(requireAuth).Post("/capture-paypal-order", h.CapturePayPalOrder)
	r.Get("/check-paypal-status", h.CheckPayPalStatus)
	r.Get("/config/payments", h.PaymentConfig)
}

// CreatePaymentIntent handles POST /api/create-payment-intent.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req serviceIntentRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	sel, err := billing.SelectServices(ctx, h.Catalog, req.ServiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, _ := common.UserID(ctx)
	checkHint(ctx, req.Amount, sel)

	in, err := h.Payments.CreateIntent(ctx, payment.Stripe, sel, userID, createOptions(ctx, nil))
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, serviceIntentResponse{ClientSecret: in.ClientSecret})
}

// CreateInvoicePaymentIntent handles POST /api/create-invoice-payment-intent.
func (h *Handler) CreateInvoicePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req invoiceIntentRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID, _ := common.UserID(ctx)
	sel, err := billing.SelectInvoices(ctx, h.Catalog, userID, req.InvoiceIDs...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	checkHint(ctx, req.Amount, sel)

	in, err := h.Payments.CreateIntent(ctx, payment.Stripe, sel, userID, createOptions(ctx, nil))
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, invoiceIntentResponse{ClientSecret: in.ClientSecret, PaymentIntentID: in.ID})
}

// TestPayment handles POST /api/test-payment: a fixed $1.00 card intent
// that needs no session.
func (h *Handler) TestPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := common.UserID(ctx)
	sel := billing.NewSelection(billing.TestItem())

	in, err := h.Payments.CreateIntent(ctx, payment.Stripe, sel, userID,
		createOptions(ctx, map[string]string{payment.MetaPaymentType: paymentTypeTest}))
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, testPaymentResponse{
		ClientSecret: in.ClientSecret,
		Amount:       billing.TestItemPrice.InexactFloat64(),
		Message:      "Test payment intent created for $1.00",
	})
}

// CreatePayPalOrder handles POST /api/create-paypal-order.
func (h *Handler) CreatePayPalOrder(w http.ResponseWriter, r *http.Request) {
	if !h.paypalReady() {
		writePayPalNotInitialized(w)
		return
	}
	var req paypalOrderRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID, authed := common.UserID(ctx)

	var (
		sel  *billing.Selection
		meta map[string]string
		err  error
	)
	switch {
	case req.IsTestPayment:
		sel = billing.NewSelection(billing.TestItem())
		meta = map[string]string{payment.MetaPaymentType: paymentTypeTest}
	case !authed || userID == "":
		auth.Unauthorized(w)
		return
	case len(req.InvoiceIDs) > 0:
		sel, err = billing.SelectInvoices(ctx, h.Catalog, userID, req.InvoiceIDs...)
	case req.ServiceID > 0:
		sel, err = billing.SelectServices(ctx, h.Catalog, req.ServiceID)
	default:
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "serviceId or invoiceIds is required", nil)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	checkHint(ctx, req.Amount, sel)

	in, err := h.Payments.CreateIntent(ctx, payment.PayPal, sel, userID, createOptions(ctx, meta))
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, in.Raw)
}

// CapturePayPalOrder handles POST /api/capture-paypal-order.
func (h *Handler) CapturePayPalOrder(w http.ResponseWriter, r *http.Request) {
	if !h.paypalReady() {
		writePayPalNotInitialized(w)
		return
	}
	var req captureRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID, _ := common.UserID(ctx)
	in, err := h.Payments.Capture(ctx, payment.PayPal, strings.TrimSpace(req.OrderID), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, in.Raw)
}

// CheckPayPalStatus handles GET /api/check-paypal-status.
func (h *Handler) CheckPayPalStatus(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, h.paypalDiagnostics())
}

type providerConfig struct {
	Enabled        bool   `json:"enabled"`
	PublishableKey string `json:"publishableKey,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	Environment    string `json:"environment,omitempty"`
}

// PaymentConfig handles GET /api/config/payments so clients know which
// tabs to render.
func (h *Handler) PaymentConfig(w http.ResponseWriter, r *http.Request) {
	stripeEnabled := false
	if p, ok := h.Payments.Provider(payment.Stripe); ok {
		stripeEnabled = p.Initialized() && h.Keys.StripePublishableKey != ""
	}
	diag := h.paypalDiagnostics()
	common.JSON(w, http.StatusOK, map[string]providerConfig{
		string(payment.Stripe): {
			Enabled:        stripeEnabled,
			PublishableKey: h.Keys.StripePublishableKey,
		},
		string(payment.PayPal): {
			Enabled:     diag.Initialized && h.Keys.PayPalClientID != "",
			ClientID:    h.Keys.PayPalClientID,
			Environment: diag.Environment,
		},
	})
}

func (h *Handler) paypalReady() bool {
	p, ok := h.Payments.Provider(payment.PayPal)
	return ok && p.Initialized()
}

func (h *Handler) paypalDiagnostics() payment.Diagnostics {
	p, ok := h.Payments.Provider(payment.PayPal)
	if !ok {
		return payment.Diagnostics{Environment: payment.EnvSandbox, Message: "PayPal provider not registered"}
	}
	if d, ok := p.(Diagnoser); ok {
		return d.Diagnostics()
	}
	return payment.Diagnostics{Initialized: p.Initialized(), Environment: payment.EnvSandbox}
}

func createOptions(ctx context.Context, meta map[string]string) payment.CreateOptions {
	return payment.CreateOptions{
		IdempotencyKey: common.IdempotencyKey(ctx),
		Metadata:       meta,
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := common.DecodeJSON(r, dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	if err := common.Validate(dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	return true
}

// checkHint logs when the client-displayed amount differs from the price
// being charged.
func checkHint(ctx context.Context, hint decimal.Decimal, sel *billing.Selection) {
	if total := sel.Total(); !hint.Round(2).Equal(total) {
		zerolog.Ctx(ctx).Warn().
			Str("client_amount", hint.String()).
			Str("charged_amount", total.StringFixed(2)).
			Msg("client amount differs from server price")
	}
}
