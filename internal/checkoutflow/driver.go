package checkoutflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/agency-api/internal/billing"
)

// ErrTooManyChallenges is returned when confirmation keeps asking for
// customer action.
var ErrTooManyChallenges = errors.New("checkoutflow: too many authentication challenges")

// IntentRequest is what a Backend needs to open an intent.
type IntentRequest struct {
	AttemptID string
	Round     int
	Method    Method
	Selection *billing.Selection
}

// IdempotencyKey is stable for retries of one intent creation and changes
// with the method and after every Restart.
func (r IntentRequest) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%d", r.AttemptID, r.Method, r.Round)
}

// Backend opens provider intents, normally through the checkout API.
type Backend interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Handle, error)
}

// Confirmer completes a payment with the provider.
type Confirmer interface {
	// Confirm returns Succeeded, Failed or RequiresAction.
	Confirm(ctx context.Context, h Handle) (State, error)
	// CompleteChallenge waits for the customer to finish a challenge such
	// as 3-D Secure.
	CompleteChallenge(ctx context.Context, h Handle) error
}

// Driver runs attempts end to end.
type Driver struct {
	Backend       Backend
	Confirmer     Confirmer
	MaxChallenges int
}

// Run drives a from Idle to Succeeded or Failed. It returns the failure
// cause, or nil once the payment succeeded.
func (d Driver) Run(ctx context.Context, a *Attempt) error {
	if err := a.Request(); err != nil {
		return err
	}
	h, err := d.Backend.CreateIntent(ctx, IntentRequest{AttemptID: a.ID(), Round: a.Round(), Method: a.Method(), Selection: a.Selection()})
	if err != nil {
		return d.fail(a, fmt.Errorf("create intent: %w", err))
	}
	if err := a.Ready(h); err != nil {
		return err
	}

	limit := d.MaxChallenges
	if limit <= 0 {
		limit = 3
	}
	for challenges := 0; ; {
		if err := a.Confirm(); err != nil {
			return err
		}
		outcome, err := d.Confirmer.Confirm(ctx, h)
		if err != nil {
			return d.fail(a, fmt.Errorf("confirm: %w", err))
		}
		if err := a.Resolve(outcome); err != nil {
			return d.fail(a, fmt.Errorf("confirm: %w", err))
		}
		switch outcome {
		case Succeeded:
			return nil
		case Failed:
			return a.Err()
		}
		challenges++
		if challenges > limit {
			return d.fail(a, ErrTooManyChallenges)
		}
		if err := d.Confirmer.CompleteChallenge(ctx, h); err != nil {
			return d.fail(a, fmt.Errorf("challenge: %w", err))
		}
	}
}

func (d Driver) fail(a *Attempt, cause error) error {
	if err := a.Fail(cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
