package payment

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/agency-api/internal/billing"
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major-unit amount to cents, rounding half-up.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FormatMinor renders cents as a two-decimal major-unit string.
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// BuildIntentRequest turns a selection into a provider-neutral request.
// Metadata records who pays and which catalog rows the money settles.
func BuildIntentRequest(sel *billing.Selection, userID string) (IntentRequest, error) {
	if sel == nil || sel.Len() == 0 {
		return IntentRequest{}, ErrEmptySelection
	}
	total := sel.Total()
	if !total.IsPositive() {
		return IntentRequest{}, ErrInvalidAmount
	}
	minor := MinorUnits(total)
	if minor <= 0 {
		return IntentRequest{}, ErrInvalidAmount
	}

	items := sel.Items()
	meta := map[string]string{}
	if userID = strings.TrimSpace(userID); userID != "" {
		meta[MetaUserID] = userID
	}

	byKind := map[billing.Kind][]int64{}
	for _, it := range items {
		byKind[it.Kind()] = append(byKind[it.Kind()], it.ID())
	}
	switch {
	case len(byKind) > 1:
		keys := make([]string, 0, len(items))
		for _, it := range items {
			keys = append(keys, it.Key().String())
		}
		sort.Strings(keys)
		meta[MetaItems] = strings.Join(keys, ",")
		meta[MetaPaymentType] = "mixed"
	case len(byKind[billing.KindInvoice]) > 0:
		meta[MetaInvoiceIDs] = idList(byKind[billing.KindInvoice])
		meta[MetaPaymentType] = "invoice"
	case len(byKind[billing.KindSubscription]) > 0:
		meta[MetaSubscriptionIDs] = idList(byKind[billing.KindSubscription])
		meta[MetaPaymentType] = "subscription"
	default:
		ids := byKind[billing.KindService]
		if len(ids) == 1 {
			meta[MetaServiceID] = strconv.FormatInt(ids[0], 10)
		} else {
			meta[MetaServiceIDs] = idList(ids)
		}
		meta[MetaPaymentType] = "service"
	}

	return IntentRequest{
		AmountMinorUnits: minor,
		Currency:         DefaultCurrency,
		Description:      describe(items),
		Metadata:         meta,
	}, nil
}

// idList encodes ids as a JSON array, e.g. [2,3].
func idList(ids []int64) string {
	b, _ := json.Marshal(ids)
	return string(b)
}

func describe(items []billing.Item) string {
	if len(items) == 1 {
		return items[0].Description()
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Description())
	}
	return truncate(strings.Join(parts, "; "), maxDescription)
}

const maxDescription = 200

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// ParseIDList decodes the invoiceIds/subscriptionIds metadata format.
func ParseIDList(s string) []int64 {
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil
	}
	return ids
}
