package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seedServices is the public price list.
var seedServices = []ServiceType{
	{ID: 1, Slug: "seo-audit", Name: "SEO Audit", Price: money("99.00")},
	{ID: 2, Slug: "website-design", Name: "Website Design", Price: money("1499.00")},
	{ID: 3, Slug: "social-media-management", Name: "Social Media Management", Price: money("299.00"), Recurring: true},
	{ID: 4, Slug: "ppc-campaign-setup", Name: "PPC Campaign Setup", Price: money("449.00")},
	{ID: 5, Slug: "content-marketing", Name: "Content Marketing Retainer", Price: money("799.00"), Recurring: true},
}

// seedInvoices are the demo invoices every client sees until real billing
// data is wired in.
func seedInvoices() []Invoice {
	day := func(s string) time.Time {
		t, _ := time.Parse("2006-01-02", s)
		return t
	}
	return []Invoice{
		{ID: 1, Number: "INV-2025-001", Description: "Website redesign - milestone 2", Amount: money("499.00"), Status: InvoiceOverdue, IssuedAt: day("2025-01-05"), DueAt: day("2025-02-04")},
		{ID: 2, Number: "INV-2025-002", Description: "SEO optimization - February", Amount: money("149.00"), Status: InvoicePending, IssuedAt: day("2025-02-01"), DueAt: day("2025-03-03")},
		{ID: 3, Number: "INV-2025-003", Description: "Social media management - February", Amount: money("299.00"), Status: InvoicePending, IssuedAt: day("2025-02-01"), DueAt: day("2025-03-03")},
		{ID: 4, Number: "INV-2024-012", Description: "PPC campaign setup", Amount: money("299.00"), Status: InvoicePaid, IssuedAt: day("2024-12-01"), DueAt: day("2024-12-31")},
	}
}
