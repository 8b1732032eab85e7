package checkout

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/common"
	"github.com/noah-isme/agency-api/internal/payment"
	"github.com/noah-isme/agency-api/internal/resilience"
)

// Error codes specific to checkout routes.
const (
	CodeStripeNotConfigured  = "STRIPE_NOT_CONFIGURED"
	CodePayPalNotInitialized = "PAYPAL_NOT_INITIALIZED"
	CodePayPalAuthFailed     = "PAYPAL_AUTH_FAILED"
	CodeUnknown              = "UNKNOWN_ERROR"
	CodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
)

func writePayPalNotInitialized(w http.ResponseWriter) {
	common.JSONError(w, http.StatusServiceUnavailable, CodePayPalNotInitialized,
		"PayPal is not initialized",
		"PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET must be configured")
}

// writeError maps checkout failures onto the public error bodies.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())

	if _, ok := common.AsAppError(err); ok {
		common.WriteError(w, err)
		return
	}

	var pe *payment.ProviderError
	switch {
	case errors.Is(err, billing.ErrNotFound):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "selected item not found", nil)
	case errors.Is(err, billing.ErrNotPayable):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invoice is not payable", nil)
	case errors.Is(err, payment.ErrEmptySelection), errors.Is(err, payment.ErrInvalidAmount):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "amount must be greater than 0", nil)
	case errors.Is(err, payment.ErrNotConfigured):
		common.JSONError(w, http.StatusInternalServerError, CodeStripeNotConfigured, "Stripe not configured", nil)
	case errors.Is(err, payment.ErrNotInitialized):
		writePayPalNotInitialized(w)
	case errors.Is(err, payment.ErrIntentNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "payment not found", nil)
	case errors.Is(err, resilience.ErrOpenCircuit):
		log.Warn().Err(err).Msg("payment provider circuit open")
		common.JSONError(w, http.StatusServiceUnavailable, CodeProviderUnavailable, "payment provider temporarily unavailable", nil)
	case errors.As(err, &pe):
		writeProviderError(w, r, pe)
	default:
		log.Error().Err(err).Msg("checkout failed")
		common.WriteError(w, err)
	}
}

func writeProviderError(w http.ResponseWriter, r *http.Request, pe *payment.ProviderError) {
	zerolog.Ctx(r.Context()).Error().
		Str("provider", string(pe.Provider)).
		Str("error_type", pe.Type).
		Str("error_code", pe.Code).
		Int("provider_status", pe.HTTPStatus).
		Msg(pe.Message)

	if pe.Provider == payment.PayPal {
		if pe.AuthFailure {
			common.JSONError(w, http.StatusUnauthorized, CodePayPalAuthFailed, "PayPal authentication failed", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, CodeUnknown, pe.Message, nil)
		return
	}
	common.JSON(w, http.StatusInternalServerError, common.ErrorBody{
		Message:   pe.Message,
		Code:      pe.Code,
		ErrorType: pe.Type,
	})
}
