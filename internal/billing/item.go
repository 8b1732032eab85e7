// Package billing models the things a visitor can pay for and the
// selection of them that forms one checkout.
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies a billable item.
type Kind string

const (
	KindService      Kind = "service"
	KindInvoice      Kind = "invoice"
	KindSubscription Kind = "subscription"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindService, KindInvoice, KindSubscription:
		return true
	}
	return false
}

var (
	// ErrInvalidKind is returned for unknown item kinds.
	ErrInvalidKind = errors.New("billing: invalid item kind")
	// ErrNonPositiveAmount is returned when a unit amount is zero or negative.
	ErrNonPositiveAmount = errors.New("billing: unit amount must be positive")
)

// Key identifies an item inside a selection.
type Key struct {
	Kind Kind
	ID   int64
}

func (k Key) String() string { return fmt.Sprintf("%s:%d", k.Kind, k.ID) }

// Item is one payable thing. Values are immutable once built.
type Item struct {
	id          int64
	kind        Kind
	description string
	unitAmount  decimal.Decimal
}

// NewItem validates and builds an Item. unitAmount is in major units (USD).
func NewItem(kind Kind, id int64, description string, unitAmount decimal.Decimal) (Item, error) {
	if !kind.Valid() {
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !unitAmount.IsPositive() {
		return Item{}, fmt.Errorf("%w: %s", ErrNonPositiveAmount, unitAmount)
	}
	return Item{id: id, kind: kind, description: description, unitAmount: unitAmount}, nil
}

func (i Item) ID() int64                   { return i.id }
func (i Item) Kind() Kind                  { return i.kind }
func (i Item) Description() string         { return i.description }
func (i Item) UnitAmount() decimal.Decimal { return i.unitAmount }
func (i Item) Key() Key                    { return Key{Kind: i.kind, ID: i.id} }
