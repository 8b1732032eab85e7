package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is what the service observed about one provider intent.
type Record struct {
	Provider         Name              `json:"provider"`
	IntentID         string            `json:"intentId"`
	UserID           string            `json:"userId,omitempty"`
	AmountMinorUnits int64             `json:"amountMinorUnits"`
	Currency         string            `json:"currency"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Status           Status            `json:"status"`
	Settled          bool              `json:"settled,omitempty"` // invoices paid and receipt queued
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Ledger stores intent records. It never drives retries.
type Ledger interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, provider Name, id string) (Record, error)
	// SetStatus updates the stored status and reports whether it changed.
	SetStatus(ctx context.Context, provider Name, id string, st Status) (Record, bool, error)
	// Claim marks key as seen and reports whether this was the first claim.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets a claim so the work can be retried.
	Release(ctx context.Context, key string) error
}

// MemLedger is an in-process Ledger.
type MemLedger struct {
	mu      sync.Mutex
	records map[string]Record
	claims  map[string]struct{}
	now     func() time.Time
}

// NewMemLedger returns an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{records: map[string]Record{}, claims: map[string]struct{}{}, now: time.Now}
}

func recordKey(provider Name, id string) string { return string(provider) + ":" + id }

func (m *MemLedger) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[recordKey(rec.Provider, rec.IntentID)] = rec
	return nil
}

func (m *MemLedger) Get(_ context.Context, provider Name, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey(provider, id)]
	if !ok {
		return Record{}, ErrIntentNotFound
	}
	return rec, nil
}

func (m *MemLedger) SetStatus(_ context.Context, provider Name, id string, st Status) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey(provider, id)
	rec, ok := m.records[k]
	if !ok {
		return Record{}, false, ErrIntentNotFound
	}
	if rec.Status == st {
		return rec, false, nil
	}
	rec.Status = st
	rec.UpdatedAt = m.now().UTC()
	m.records[k] = rec
	return rec, true, nil
}

func (m *MemLedger) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = struct{}{}
	return true, nil
}

func (m *MemLedger) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}

// RedisLedger stores records as JSON strings with a TTL.
type RedisLedger struct {
	R      redis.Cmdable
	TTL    time.Duration
	Prefix string
}

func (l RedisLedger) ttl() time.Duration {
	if l.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return l.TTL
}

func (l RedisLedger) key(parts ...string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = "payment"
	}
	k := prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (l RedisLedger) Put(ctx context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	return l.R.Set(ctx, l.key("intent", string(rec.Provider), rec.IntentID), b, l.ttl()).Err()
}

func (l RedisLedger) Get(ctx context.Context, provider Name, id string) (Record, error) {
	raw, err := l.R.Get(ctx, l.key("intent", string(provider), id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrIntentNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("ledger: decode: %w", err)
	}
	return rec, nil
}

// SetStatus is read-modify-write; callers serialize settlement per intent.
func (l RedisLedger) SetStatus(ctx context.Context, provider Name, id string, st Status) (Record, bool, error) {
	rec, err := l.Get(ctx, provider, id)
	if err != nil {
		return Record{}, false, err
	}
	if rec.Status == st {
		return rec, false, nil
	}
	rec.Status = st
	if err := l.Put(ctx, rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (l RedisLedger) Claim(ctx context.Context, key string) (bool, error) {
	return l.R.SetNX(ctx, l.key("claim", key), "1", l.ttl()).Result()
}

func (l RedisLedger) Release(ctx context.Context, key string) error {
	return l.R.Del(ctx, l.key("claim", key)).Err()
}
