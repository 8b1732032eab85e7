package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/noah-isme/agency-api/internal/common"
	"github.com/noah-isme/agency-api/internal/obs"
)

const maxWebhookBody = 64 << 10

// StripeWebhook reconciles PaymentIntent events into the ledger.
type StripeWebhook struct {
	Secret  string
	Service *Service
	Logger  zerolog.Logger
}

func (h StripeWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := "error"
	defer func() { obs.PaymentWebhookTotal.WithLabelValues(string(Stripe), result).Inc() }()

	if h.Service == nil || h.Secret == "" {
		common.JSONError(w, http.StatusServiceUnavailable, "WEBHOOK_DISABLED", "Stripe webhook not configured", nil)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "unable to read payload", nil)
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		result = "invalid_signature"
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "invalid webhook signature", nil)
		return
	}

	status, handled := eventStatus(event.Type)
	if !handled {
		result = "ignored"
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	ctx := r.Context()
	log := h.Logger.With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()
	ledger := h.Service.Ledger
	claimKey := "stripe:event:" + event.ID
	if ledger != nil {
		first, err := ledger.Claim(ctx, claimKey)
		if err != nil {
			log.Error().Err(err).Msg("webhook claim failed")
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "temporarily unavailable", nil)
			return
		}
		if !first {
			result = "duplicate"
			common.JSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
		result = "invalid_payload"
		if ledger != nil {
			if err := ledger.Release(ctx, claimKey); err != nil {
				log.Warn().Err(err).Msg("webhook claim release failed")
			}
		}
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payment intent payload", nil)
		return
	}
	in := stripeIntent(&pi)
	in.Status = status

	if err := h.Service.Observe(ctx, in); err != nil {
		if ledger != nil {
			if relErr := ledger.Release(ctx, claimKey); relErr != nil {
				err = errors.Join(err, relErr)
			}
		}
		log.Error().Err(err).Str("intent_id", pi.ID).Msg("webhook processing failed")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "processing failed", nil)
		return
	}
	result = "processed"
	log.Info().Str("intent_id", pi.ID).Str("status", string(status)).Msg("stripe webhook processed")
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

func eventStatus(t stripe.EventType) (Status, bool) {
	switch t {
	case stripe.EventTypePaymentIntentSucceeded:
		return StatusSucceeded, true
	case stripe.EventTypePaymentIntentPaymentFailed:
		return StatusFailed, true
	case stripe.EventTypePaymentIntentCanceled:
		return StatusCanceled, true
	case stripe.EventTypePaymentIntentRequiresAction:
		return StatusRequiresAction, true
	}
	return "", false
}
