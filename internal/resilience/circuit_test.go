package resilience

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(minRequests int, ratio float64, openFor time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := NewBreaker(minRequests, ratio, openFor)
	b.now = clock.now
	return b, clock
}

func fail(ctx context.Context, b *Breaker, n int) {
	for i := 0; i < n; i++ {
		if b.Allow(ctx) {
			b.Report(ctx, false)
		}
	}
}

func TestBreakerOpensProbesAndCloses(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(2, 0.5, 30*time.Second)

	fail(ctx, b, 2)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))

	clock.advance(29 * time.Second)
	require.False(t, b.Allow(ctx), "still cooling off")

	clock.advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.Equal(t, HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "one probe at a time")

	b.Report(ctx, true)
	require.Equal(t, Closed, b.State())
	require.True(t, b.Allow(ctx))
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(1, 0.5, time.Minute)

	fail(ctx, b, 1)
	clock.advance(time.Minute)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)

	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))
}

func TestBreakerNeedsMinimumVolume(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(5, 0.5, time.Minute)

	fail(ctx, b, 4)
	assert.Equal(t, Closed, b.State(), "four failures are below the volume floor")
	fail(ctx, b, 1)
	assert.Equal(t, Open, b.State())
}

func TestBreakerToleratesOccasionalFailures(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(4, 0.5, time.Minute)

	for i := 0; i < 40; i++ {
		require.True(t, b.Allow(ctx))
		b.Report(ctx, i%4 != 0)
	}
	assert.Equal(t, Closed, b.State())
}

func TestBreakerMetricsAndLogs(t *testing.T) {
	BreakerState.Reset()
	BreakerTransitions.Reset()
	BreakerOpenedTotal.Reset()

	var buf bytes.Buffer
	b, clock := newTestBreaker(1, 0.5, time.Second)
	b.WithTarget("paypal").WithLogger(zerolog.New(&buf))
	ctx := context.Background()

	fail(ctx, b, 1)
	assert.Equal(t, float64(Open), testutil.ToFloat64(BreakerState.WithLabelValues("paypal")))

	clock.advance(time.Second)
	require.True(t, b.Allow(ctx))
	assert.Equal(t, float64(HalfOpen), testutil.ToFloat64(BreakerState.WithLabelValues("paypal")))

	b.Report(ctx, true)
	assert.Equal(t, float64(Closed), testutil.ToFloat64(BreakerState.WithLabelValues("paypal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(BreakerOpenedTotal.WithLabelValues("paypal")))
	for _, edge := range [][2]string{{"closed", "open"}, {"open", "half_open"}, {"half_open", "closed"}} {
		assert.Equal(t, 1.0, testutil.ToFloat64(BreakerTransitions.WithLabelValues("paypal", edge[0], edge[1])), edge)
	}

	logs := buf.String()
	assert.Contains(t, logs, `"to_state":"open"`)
	assert.Contains(t, logs, `"target":"paypal"`)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "half_open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
