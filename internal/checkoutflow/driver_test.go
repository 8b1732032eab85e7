package checkoutflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	handle Handle
	err    error
	calls  []IntentRequest
}

func (s *stubBackend) CreateIntent(_ context.Context, req IntentRequest) (Handle, error) {
	s.calls = append(s.calls, req)
	return s.handle, s.err
}

type scriptedConfirmer struct {
	outcomes   []State
	err        error
	challenges int
}

func (s *scriptedConfirmer) Confirm(context.Context, Handle) (State, error) {
	if s.err != nil {
		return "", s.err
	}
	next := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return next, nil
}

func (s *scriptedConfirmer) CompleteChallenge(context.Context, Handle) error {
	s.challenges++
	return nil
}

func TestDriverSucceedsAfterChallenge(t *testing.T) {
	backend := &stubBackend{handle: Handle{ID: "pi_1", ClientSecret: "pi_1_secret"}}
	confirmer := &scriptedConfirmer{outcomes: []State{RequiresAction, Succeeded}}
	a := NewAttempt(invoices(t), MethodCard)

	err := Driver{Backend: backend, Confirmer: confirmer}.Run(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, Succeeded, a.State())
	require.Equal(t, 1, confirmer.challenges)
	require.Len(t, backend.calls, 1)
	require.Equal(t, a.ID(), backend.calls[0].AttemptID)
	require.Equal(t, MethodCard, backend.calls[0].Method)
}

func TestDriverStopsAfterTooManyChallenges(t *testing.T) {
	confirmer := &scriptedConfirmer{outcomes: []State{RequiresAction}}
	a := NewAttempt(invoices(t), MethodCard)

	err := Driver{Backend: &stubBackend{handle: Handle{ID: "pi_1"}}, Confirmer: confirmer, MaxChallenges: 2}.Run(context.Background(), a)
	require.ErrorIs(t, err, ErrTooManyChallenges)
	require.Equal(t, Failed, a.State())
	require.Equal(t, 2, confirmer.challenges)
}

func TestDriverFailsWhenBackendFails(t *testing.T) {
	boom := errors.New("stripe not configured")
	a := NewAttempt(invoices(t), MethodCard)

	err := Driver{Backend: &stubBackend{err: boom}, Confirmer: &scriptedConfirmer{}}.Run(context.Background(), a)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []State{Idle, IntentRequested, Failed}, a.History())

	require.NoError(t, a.Restart())
	require.Equal(t, Idle, a.State())
}

func TestDriverReportsDecline(t *testing.T) {
	a := NewAttempt(invoices(t), MethodPayPal)
	err := Driver{Backend: &stubBackend{handle: Handle{ID: "ORDER-1"}}, Confirmer: &scriptedConfirmer{outcomes: []State{Failed}}}.Run(context.Background(), a)
	require.ErrorIs(t, err, ErrDeclined)
	require.Equal(t, Failed, a.State())
}

func TestDriverConfirmError(t *testing.T) {
	boom := errors.New("timeout")
	a := NewAttempt(invoices(t), MethodCard)
	err := Driver{Backend: &stubBackend{handle: Handle{ID: "pi_1"}}, Confirmer: &scriptedConfirmer{err: boom}}.Run(context.Background(), a)
	require.ErrorIs(t, err, boom)
	require.Equal(t, Failed, a.State())
}

func TestDriverFailsOnUnexpectedConfirmOutcome(t *testing.T) {
	a := NewAttempt(invoices(t), MethodCard)
	confirmer := &scriptedConfirmer{outcomes: []State{IntentReady}}

	err := Driver{Backend: &stubBackend{handle: Handle{ID: "pi_1"}}, Confirmer: confirmer}.Run(context.Background(), a)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, Failed, a.State())
	require.NoError(t, a.Restart())
}

func TestDriverRestartRequestsFreshIntent(t *testing.T) {
	backend := &stubBackend{handle: Handle{ID: "pi_1"}}
	a := NewAttempt(invoices(t), MethodCard)

	err := Driver{Backend: backend, Confirmer: &scriptedConfirmer{outcomes: []State{Failed}}}.Run(context.Background(), a)
	require.ErrorIs(t, err, ErrDeclined)
	require.NoError(t, a.Restart())
	require.NoError(t, Driver{Backend: backend, Confirmer: &scriptedConfirmer{outcomes: []State{Succeeded}}}.Run(context.Background(), a))

	require.Len(t, backend.calls, 2)
	require.Equal(t, 1, backend.calls[0].Round)
	require.Equal(t, 2, backend.calls[1].Round)
	require.NotEqual(t, backend.calls[0].IdempotencyKey(), backend.calls[1].IdempotencyKey())
	require.Equal(t, a.ID()+":card:2", backend.calls[1].IdempotencyKey())
}
