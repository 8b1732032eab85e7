package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a service or invoice does not exist for the caller.
var ErrNotFound = errors.New("billing: not found")

// ErrNotPayable is returned for invoices that are already settled.
var ErrNotPayable = errors.New("billing: invoice is not payable")

// ServiceType is a catalog entry the agency sells.
type ServiceType struct {
	ID        int64           `json:"id"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Recurring bool            `json:"recurring"`
}

// InvoiceStatus is the settlement state of an invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoicePaid    InvoiceStatus = "paid"
)

// Invoice is an amount the agency has billed a client.
type Invoice struct {
	ID          int64
	UserID      string
	Number      string
	Description string
	Amount      decimal.Decimal
	Status      InvoiceStatus
	IssuedAt    time.Time
	DueAt       time.Time
}

// Payable reports whether the invoice can still be paid.
func (inv Invoice) Payable() bool {
	return inv.Status == InvoicePending || inv.Status == InvoiceOverdue
}

// Repository reads the service catalog and client invoices.
type Repository interface {
	Services(ctx context.Context) ([]ServiceType, error)
	Service(ctx context.Context, id int64) (ServiceType, error)
	Invoices(ctx context.Context, userID string) ([]Invoice, error)
	Invoice(ctx context.Context, userID string, id int64) (Invoice, error)
}

// ServiceItem converts a catalog entry into a billable item. Recurring
// services bill as subscriptions.
func ServiceItem(s ServiceType) (Item, error) {
	kind := KindService
	if s.Recurring {
		kind = KindSubscription
	}
	return NewItem(kind, s.ID, s.Name, s.Price)
}

// InvoiceItem converts a payable invoice into a billable item.
func InvoiceItem(inv Invoice) (Item, error) {
	if !inv.Payable() {
		return Item{}, fmt.Errorf("%w: %s is %s", ErrNotPayable, inv.Number, inv.Status)
	}
	desc := inv.Number
	if inv.Description != "" {
		desc = inv.Number + " - " + inv.Description
	}
	return NewItem(KindInvoice, inv.ID, desc, inv.Amount)
}

// TestItemPrice is the fixed price of the no-login test purchase.
var TestItemPrice = decimal.NewFromInt(1)

// TestItem is the fixed $1.00 purchase used to verify the payment pipeline.
func TestItem() Item {
	it, _ := NewItem(KindService, 0, "Test payment", TestItemPrice)
	return it
}

// SelectServices resolves ids against repo into a selection.
func SelectServices(ctx context.Context, repo Repository, ids ...int64) (*Selection, error) {
	sel := NewSelection()
	for _, id := range ids {
		svc, err := repo.Service(ctx, id)
		if err != nil {
			return nil, err
		}
		it, err := ServiceItem(svc)
		if err != nil {
			return nil, err
		}
		sel.Add(it)
	}
	return sel, nil
}

// SelectInvoices resolves the user's invoices by id into a selection.
func SelectInvoices(ctx context.Context, repo Repository, userID string, ids ...int64) (*Selection, error) {
	sel := NewSelection()
	for _, id := range ids {
		inv, err := repo.Invoice(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		it, err := InvoiceItem(inv)
		if err != nil {
			return nil, err
		}
		sel.Add(it)
	}
	return sel, nil
}

// Settler marks invoices paid once a provider confirms the money moved.
type Settler interface {
	MarkInvoicePaid(ctx context.Context, id int64) error
}
