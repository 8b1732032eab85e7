// Package checkoutflow drives one checkout attempt from selection to a
// confirmed or failed payment, the way a browser client does.
package checkoutflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/agency-api/internal/billing"
	"github.com/noah-isme/agency-api/internal/payment"
)

// State is a step of a checkout attempt.
type State string

const (
	Idle            State = "idle"
	IntentRequested State = "intent_requested"
	IntentReady     State = "intent_ready"
	Confirming      State = "confirming"
	Succeeded       State = "succeeded"
	Failed          State = "failed"
	RequiresAction  State = "requires_action"
)

// ErrInvalidTransition is returned for moves the state machine forbids.
var ErrInvalidTransition = errors.New("checkoutflow: invalid transition")

// ErrDeclined is the failure cause when the provider rejects confirmation.
var ErrDeclined = errors.New("checkoutflow: payment declined")

var transitions = map[State][]State{
	Idle:            {IntentRequested},
	IntentRequested: {IntentReady, Failed},
	IntentReady:     {Confirming},
	Confirming:      {Succeeded, Failed, RequiresAction},
	RequiresAction:  {Confirming, Failed},
	Failed:          {Idle},
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Method is the payment tab the visitor has selected.
type Method string

const (
	MethodCard   Method = "card"
	MethodPayPal Method = "paypal"
)

// Provider returns the payment provider behind m.
func (m Method) Provider() payment.Name {
	if m == MethodPayPal {
		return payment.PayPal
	}
	return payment.Stripe
}

// Handle identifies the provider-side intent an attempt confirms.
type Handle struct {
	Provider      payment.Name
	ID            string
	ClientSecret  string
	ApprovalToken string
}

// Attempt is one pass through the checkout state machine.
type Attempt struct {
	mu        sync.Mutex
	id        string
	round     int
	selection *billing.Selection
	method    Method
	state     State
	handle    Handle
	history   []State
	err       error
}

// NewAttempt starts an idle attempt for sel paid with method.
func NewAttempt(sel *billing.Selection, method Method) *Attempt {
	if sel == nil {
		sel = billing.NewSelection()
	}
	return &Attempt{
		id:        uuid.NewString(),
		round:     1,
		selection: sel,
		method:    method,
		state:     Idle,
		history:   []State{Idle},
	}
}

// ID is a random identifier, used as the idempotency key root.
func (a *Attempt) ID() string { return a.id }

// Round counts intent creations: 1 for the first, plus one per Restart.
func (a *Attempt) Round() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.round
}

func (a *Attempt) Selection() *billing.Selection { return a.selection }

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Attempt) Method() Method {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.method
}

func (a *Attempt) Handle() Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// Err is the failure that moved the attempt to Failed.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// History lists every state the attempt passed through, in order.
func (a *Attempt) History() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]State(nil), a.history...)
}

// SwitchMethod changes the payment tab. The total comes from the selection,
// so switching never re-prices. Tabs are locked once an intent is in flight.
func (a *Attempt) SwitchMethod(m Method) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Idle && a.state != Failed {
		return fmt.Errorf("%w: switch method while %s", ErrInvalidTransition, a.state)
	}
	a.method = m
	return nil
}

// Request marks the intent creation call as sent.
func (a *Attempt) Request() error { return a.transition(IntentRequested, nil) }

// Ready stores the provider handle returned by the backend.
func (a *Attempt) Ready(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.moveLocked(IntentReady); err != nil {
		return err
	}
	a.handle = h
	return nil
}

// Confirm starts, or after a challenge resumes, provider confirmation.
func (a *Attempt) Confirm() error { return a.transition(Confirming, nil) }

// Resolve records the provider's answer to a confirmation.
func (a *Attempt) Resolve(outcome State) error {
	switch outcome {
	case Succeeded, Failed, RequiresAction:
	default:
		return fmt.Errorf("%w: %s is not a confirmation outcome", ErrInvalidTransition, outcome)
	}
	if outcome == Failed {
		return a.transition(Failed, ErrDeclined)
	}
	return a.transition(outcome, nil)
}

// Fail ends the attempt with err.
func (a *Attempt) Fail(err error) error {
	if err == nil {
		err = errors.New("checkoutflow: payment failed")
	}
	return a.transition(Failed, err)
}

// Restart returns a failed attempt to Idle; the next Request creates a
// fresh intent.
func (a *Attempt) Restart() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.moveLocked(Idle); err != nil {
		return err
	}
	a.handle = Handle{}
	a.err = nil
	a.round++
	return nil
}

func (a *Attempt) transition(next State, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if moveErr := a.moveLocked(next); moveErr != nil {
		return moveErr
	}
	if err != nil {
		a.err = err
	}
	return nil
}

func (a *Attempt) moveLocked(next State) error {
	if !a.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.state, next)
	}
	a.state = next
	a.history = append(a.history, next)
	return nil
}
