package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/agency-api/internal/common"
	"github.com/noah-isme/agency-api/internal/obs"
)

// Handler processes receipt tasks.
type Handler struct {
	Email  common.EmailSender
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h Handler) ProcessTask(ctx context.Context, t *asynq.Task) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		obs.ReceiptTasksTotal.WithLabelValues("process", result).Inc()
	}()

	var r Receipt
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		return fmt.Errorf("receipt: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if r.IntentID == "" {
		return fmt.Errorf("receipt: missing intent id: %w", asynq.SkipRetry)
	}
	log := h.Logger.With().Str("provider", r.Provider).Str("intent_id", r.IntentID).Logger()

	if strings.TrimSpace(r.Email) == "" {
		log.Info().Str("amount", r.Amount()).Msg("payment settled without payer email; receipt not sent")
		return nil
	}
	sender := h.Email
	if sender == nil {
		sender = common.NopEmailSender{}
	}
	subject, body := Render(r)
	if err := sender.Send(ctx, r.Email, subject, body); err != nil {
		return fmt.Errorf("receipt: send: %w", err)
	}
	log.Info().Msg("receipt sent")
	return nil
}

// Render builds the plain-text receipt.
func Render(r Receipt) (subject, body string) {
	subject = fmt.Sprintf("Payment receipt: %s %s", r.Amount(), strings.ToUpper(r.Currency))
	var b strings.Builder
	b.WriteString("Thank you for your payment.\n\n")
	fmt.Fprintf(&b, "Amount: %s %s\n", r.Amount(), strings.ToUpper(r.Currency))
	if r.Description != "" {
		fmt.Fprintf(&b, "For: %s\n", r.Description)
	}
	fmt.Fprintf(&b, "Reference: %s %s\n", r.Provider, r.IntentID)
	return subject, b.String()
}

// AsynqLogger adapts zerolog to asynq's logger interface.
type AsynqLogger struct {
	Log zerolog.Logger
}

func (l AsynqLogger) Debug(args ...interface{}) { l.Log.Debug().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Info(args ...interface{})  { l.Log.Info().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Warn(args ...interface{})  { l.Log.Warn().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Error(args ...interface{}) { l.Log.Error().Msg(fmt.Sprint(args...)) }
func (l AsynqLogger) Fatal(args ...interface{}) { l.Log.Fatal().Msg(fmt.Sprint(args...)) }
