package billing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/billing"
)

func mustItem(t *testing.T, kind billing.Kind, id int64, amount string) billing.Item {
	t.Helper()
	it, err := billing.NewItem(kind, id, "item", decimal.RequireFromString(amount))
	require.NoError(t, err)
	return it
}

func TestNewItemRejectsNonPositiveAmounts(t *testing.T) {
	_, err := billing.NewItem(billing.KindService, 1, "free", decimal.Zero)
	require.ErrorIs(t, err, billing.ErrNonPositiveAmount)

	_, err = billing.NewItem(billing.KindInvoice, 1, "credit", decimal.NewFromInt(-5))
	require.ErrorIs(t, err, billing.ErrNonPositiveAmount)

	_, err = billing.NewItem(billing.Kind("coupon"), 1, "x", decimal.NewFromInt(1))
	require.ErrorIs(t, err, billing.ErrInvalidKind)
}

func TestSelectionIsUniqueByKindAndID(t *testing.T) {
	sel := billing.NewSelection()
	require.True(t, sel.Add(mustItem(t, billing.KindInvoice, 2, "149.00")))
	require.False(t, sel.Add(mustItem(t, billing.KindInvoice, 2, "149.00")))
	// Same id under a different kind is a different item.
	require.True(t, sel.Add(mustItem(t, billing.KindService, 2, "99.00")))
	require.Equal(t, 2, sel.Len())
	require.Equal(t, "248.00", sel.Total().StringFixed(2))
}

func TestSelectionAddThenRemoveRestoresTotalExactly(t *testing.T) {
	amounts := []string{"0.10", "0.20", "149.99", "0.01", "33.33", "1499.00"}
	sel := billing.NewSelection(mustItem(t, billing.KindInvoice, 100, "299.00"))
	before := sel.Total()

	for i, a := range amounts {
		it := mustItem(t, billing.KindInvoice, int64(i+1), a)
		require.True(t, sel.Add(it))
		require.True(t, sel.Remove(it.Key()))
		require.True(t, before.Equal(sel.Total()), "total drifted after %s", a)
	}
}

func TestSelectionTotalRoundsHalfUpToCents(t *testing.T) {
	sel := billing.NewSelection(
		mustItem(t, billing.KindService, 1, "0.105"),
		mustItem(t, billing.KindService, 2, "0.1"),
	)
	require.Equal(t, "0.21", sel.Total().StringFixed(2))
}

func TestSelectionToggle(t *testing.T) {
	it := mustItem(t, billing.KindInvoice, 3, "299.00")
	sel := billing.NewSelection()
	require.True(t, sel.Toggle(it))
	require.True(t, sel.Contains(it.Key()))
	require.False(t, sel.Toggle(it))
	require.Zero(t, sel.Len())
	require.True(t, sel.Total().IsZero())
}

func TestSelectionRemoveKeepsOrder(t *testing.T) {
	a := mustItem(t, billing.KindInvoice, 1, "1")
	b := mustItem(t, billing.KindInvoice, 2, "2")
	c := mustItem(t, billing.KindInvoice, 3, "3")
	sel := billing.NewSelection(a, b, c)
	require.True(t, sel.Remove(b.Key()))
	require.True(t, sel.Remove(c.Key()))
	require.True(t, sel.Add(b))

	items := sel.Items()
	require.Len(t, items, 2)
	require.Equal(t, int64(1), items[0].ID())
	require.Equal(t, int64(2), items[1].ID())
}
