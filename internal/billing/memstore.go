package billing

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-process Repository seeded with the demo catalog. Invoices
// stored without an owner are visible to every user.
type MemStore struct {
	mu       sync.RWMutex
	services map[int64]ServiceType
	invoices map[int64]Invoice
}

// NewMemStore returns a seeded MemStore.
func NewMemStore() *MemStore {
	m := &MemStore{services: map[int64]ServiceType{}, invoices: map[int64]Invoice{}}
	for _, s := range seedServices {
		m.services[s.ID] = s
	}
	for _, inv := range seedInvoices() {
		m.invoices[inv.ID] = inv
	}
	return m
}

// PutInvoice inserts or replaces an invoice.
func (m *MemStore) PutInvoice(inv Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
}

// MarkInvoicePaid flips an invoice to paid.
func (m *MemStore) MarkInvoicePaid(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = InvoicePaid
	m.invoices[id] = inv
	return nil
}

func (m *MemStore) Services(context.Context) ([]ServiceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServiceType, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) Service(_ context.Context, id int64) (ServiceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return ServiceType{}, ErrNotFound
	}
	return s, nil
}

func (m *MemStore) Invoices(_ context.Context, userID string) ([]Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		if visibleTo(inv, userID) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) Invoice(_ context.Context, userID string, id int64) (Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok || !visibleTo(inv, userID) {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func visibleTo(inv Invoice, userID string) bool {
	return inv.UserID == "" || inv.UserID == userID
}
