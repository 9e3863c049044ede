package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SummaryLimit is the number of invoices enumerated individually in a summary.
const SummaryLimit = 10

// FilterInvoices applies a list filter. The keywords unpaid, paid and overdue
// select on balance; an empty filter or "all" keeps everything; any other
// value is a case-insensitive substring match on the customer name.
func FilterInvoices(invoices []Invoice, filter string, now time.Time) []Invoice {
	f := strings.ToLower(strings.TrimSpace(filter))
	var keep func(inv *Invoice) bool
	switch f {
	case "", "all":
		return invoices
	case "unpaid":
		keep = (*Invoice).Unpaid
	case "paid":
		keep = (*Invoice).Paid
	case "overdue":
		keep = func(inv *Invoice) bool { return inv.Overdue(now) }
	default:
		keep = func(inv *Invoice) bool {
			return strings.Contains(strings.ToLower(inv.CustomerName), f)
		}
	}

	out := make([]Invoice, 0, len(invoices))
	for i := range invoices {
		if keep(&invoices[i]) {
			out = append(out, invoices[i])
		}
	}
	return out
}

// InvoiceTotals aggregates a listing.
type InvoiceTotals struct {
	Count       int
	TotalAmount decimal.Decimal
	TotalDue    decimal.Decimal
	Paid        int
	Unpaid      int
}

// Totals sums amounts and balances and counts paid and unpaid invoices.
func Totals(invoices []Invoice) InvoiceTotals {
	t := InvoiceTotals{Count: len(invoices)}
	for i := range invoices {
		inv := &invoices[i]
		t.TotalAmount = t.TotalAmount.Add(inv.TotalAmount)
		t.TotalDue = t.TotalDue.Add(inv.BalanceOrZero())
		if inv.Unpaid() {
			t.Unpaid++
		} else {
			t.Paid++
		}
	}
	return t
}

// SummarizeInvoices renders a listing as text for the model. Up to
// SummaryLimit invoices are enumerated; larger listings lead with aggregate
// totals and then enumerate the first SummaryLimit.
func SummarizeInvoices(invoices []Invoice, filter string) string {
	var b strings.Builder
	scope := "invoices"
	if f := strings.TrimSpace(filter); f != "" && !strings.EqualFold(f, "all") {
		scope = fmt.Sprintf("invoices matching %q", f)
	}

	if len(invoices) == 0 {
		fmt.Fprintf(&b, "No %s found.", scope)
		return b.String()
	}

	fmt.Fprintf(&b, "Found %d %s.", len(invoices), scope)
	shown := invoices
	if len(invoices) > SummaryLimit {
		t := Totals(invoices)
		fmt.Fprintf(&b, " Total amount: $%s. Total balance due: $%s. Paid: %d. Unpaid: %d.",
			t.TotalAmount.StringFixed(2), t.TotalDue.StringFixed(2), t.Paid, t.Unpaid)
		fmt.Fprintf(&b, "\nFirst %d:", SummaryLimit)
		shown = invoices[:SummaryLimit]
	}
	for i := range shown {
		fmt.Fprintf(&b, "\n%d. %s", i+1, describeInvoice(&shown[i]))
	}
	return b.String()
}

func describeInvoice(inv *Invoice) string {
	parts := []string{fmt.Sprintf("Invoice #%s (ID %s)", inv.Label(), inv.ID)}
	if inv.CustomerName != "" {
		parts = append(parts, inv.CustomerName)
	}
	parts = append(parts, "Total $"+inv.TotalAmount.StringFixed(2))
	parts = append(parts, "Balance $"+inv.BalanceOrZero().StringFixed(2))
	if inv.DueDate != "" {
		parts = append(parts, "Due "+inv.DueDate)
	}
	if inv.Unpaid() {
		parts = append(parts, "Unpaid")
	} else {
		parts = append(parts, "Paid")
	}
	return strings.Join(parts, " - ")
}
