package payment_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/payment"
)

func ledgers(t *testing.T) map[string]payment.Ledger {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]payment.Ledger{
		"memory": payment.NewMemLedger(),
		"redis":  payment.RedisLedger{R: client, TTL: time.Hour},
	}
}

func TestLedgerRecordsAndTransitions(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := l.Get(ctx, payment.Stripe, "pi_1")
			require.ErrorIs(t, err, payment.ErrIntentNotFound)

			require.NoError(t, l.Put(ctx, payment.Record{
				Provider:         payment.Stripe,
				IntentID:         "pi_1",
				UserID:           "42",
				AmountMinorUnits: 9900,
				Currency:         "USD",
				Metadata:         map[string]string{"serviceId": "1"},
				Status:           payment.StatusCreated,
			}))

			rec, err := l.Get(ctx, payment.Stripe, "pi_1")
			require.NoError(t, err)
			require.Equal(t, "42", rec.UserID)
			require.Equal(t, int64(9900), rec.AmountMinorUnits)
			require.False(t, rec.CreatedAt.IsZero())

			rec, changed, err := l.SetStatus(ctx, payment.Stripe, "pi_1", payment.StatusSucceeded)
			require.NoError(t, err)
			require.True(t, changed)
			require.Equal(t, payment.StatusSucceeded, rec.Status)

			_, changed, err = l.SetStatus(ctx, payment.Stripe, "pi_1", payment.StatusSucceeded)
			require.NoError(t, err)
			require.False(t, changed)

			_, _, err = l.SetStatus(ctx, payment.PayPal, "pi_1", payment.StatusFailed)
			require.ErrorIs(t, err, payment.ErrIntentNotFound)
		})
	}
}

func TestLedgerClaims(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := l.Claim(ctx, "stripe:event:evt_1")
			require.NoError(t, err)
			require.True(t, first)

			again, err := l.Claim(ctx, "stripe:event:evt_1")
			require.NoError(t, err)
			require.False(t, again)

			require.NoError(t, l.Release(ctx, "stripe:event:evt_1"))
			retried, err := l.Claim(ctx, "stripe:event:evt_1")
			require.NoError(t, err)
			require.True(t, retried)
		})
	}
}
