package common

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// EmailSender delivers one plain-text message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Email is a message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	Body    string
}

// InMemoryEmail keeps every message it is given. Tests read them back with Sent.
type InMemoryEmail struct {
	mu   sync.Mutex
	sent []Email
}

func (m *InMemoryEmail) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, Email{To: to, Subject: subject, Body: body})
	m.mu.Unlock()
	return nil
}

func (m *InMemoryEmail) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

type NopEmailSender struct{}

func (NopEmailSender) Send(context.Context, string, string, string) error { return nil }

// LogEmailSender records receipts in the worker log instead of mailing them.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (l LogEmailSender) Send(ctx context.Context, to, subject, body string) error {
	l.Logger.Info().Ctx(ctx).
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("receipt email")
	return nil
}
