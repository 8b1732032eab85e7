package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/agency-api/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. The API clears it when shutdown starts so load
// balancers drain traffic before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one optional dependency. A nil Check marks it disabled.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// PostgresProbe pings pool, or reports disabled when pool is nil.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	p := Probe{Name: "db", Timeout: 500 * time.Millisecond}
	if pool != nil {
		p.Check = pool.Ping
	}
	return p
}

// RedisProbe pings client, or reports disabled when client is nil.
func RedisProbe(client *redis.Client) Probe {
	p := Probe{Name: "redis", Timeout: 300 * time.Millisecond}
	if client != nil {
		p.Check = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return p
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes and the drain flag.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := ready.Load()
	if !healthy {
		status["server"] = "draining"
	}
	for _, p := range h.Probes {
		if p.Check == nil {
			status[p.Name] = "disabled"
			continue
		}
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = 500 * time.Millisecond
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := p.Check(ctx)
		cancel()
		if err != nil {
			status[p.Name] = err.Error()
			healthy = false
			continue
		}
		status[p.Name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}
