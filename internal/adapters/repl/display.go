package repl

import (
	"fmt"
	"io"
	"strings"

	"invoice-agent/internal/app"
	"invoice-agent/internal/core"
)

func printInvoices(out io.Writer, d app.Display) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintf(out, "  INVOICES (%d)\n", len(d.Invoices))
	fmt.Fprintln(out, strings.Repeat("=", 78))
	if len(d.Invoices) == 0 {
		fmt.Fprintln(out, "  Nothing loaded. Ask for invoices, e.g. \"show unpaid invoices\".")
		fmt.Fprintln(out, strings.Repeat("=", 78))
		return
	}
	fmt.Fprintf(out, "  %-2s %-8s %-26s %-10s %12s %12s\n", "", "NUMBER", "CUSTOMER", "DUE", "TOTAL", "BALANCE")
	fmt.Fprintln(out, strings.Repeat("-", 78))
	for i := range d.Invoices {
		inv := &d.Invoices[i]
		mark := ""
		if inv.ID == d.SelectedID {
			mark = ">"
		}
		fmt.Fprintf(out, "  %-2s %-8s %-26s %-10s %12s %12s\n",
			mark, inv.Label(), truncate(inv.CustomerName, 26), orDash(inv.DueDate),
			inv.TotalAmount.StringFixed(2), inv.BalanceOrZero().StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("=", 78))
}

func printInvoiceDetail(out io.Writer, inv *core.Invoice) {
	status := "PAID"
	if inv.Unpaid() {
		status = "UNPAID"
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "INVOICE:   #%s (id %s)\n", inv.Label(), inv.ID)
	fmt.Fprintf(out, "CUSTOMER:  %s\n", inv.CustomerName)
	fmt.Fprintf(out, "DATE:      %s\n", orDash(inv.TransactionDate))
	fmt.Fprintf(out, "DUE:       %s\n", orDash(inv.DueDate))
	fmt.Fprintf(out, "TOTAL:     %s\n", inv.TotalAmount.StringFixed(2))
	fmt.Fprintf(out, "BALANCE:   %s  [%s]\n", inv.BalanceOrZero().StringFixed(2), status)
	if inv.BillEmail != "" {
		fmt.Fprintf(out, "EMAIL:     %s (%s)\n", inv.BillEmail, orDash(inv.EmailStatus))
	}
	if len(inv.LineItems) > 0 {
		fmt.Fprintln(out, "LINES:")
		for _, l := range inv.LineItems {
			fmt.Fprintf(out, "  %-50s %12s\n", truncate(l.Description, 50), l.Amount.StringFixed(2))
		}
	}
}

func printCompany(out io.Writer, info *core.CompanyInfo) {
	fmt.Fprintf(out, "Company: %s (realm %s)\n", info.CompanyName, info.RealmID)
	if info.Country != "" {
		fmt.Fprintf(out, "Country: %s\n", info.Country)
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Type a request in plain English, e.g. "show overdue invoices" or
"create an invoice for Amy's Bird Sanctuary for 250 and email it to amy@example.com".

Commands (no AI involved):
  /invoices              show the invoices panel
  /show <number>         select an invoice from the panel and print it
  /new-invoice           create an invoice step by step
  /send <number> <email> email an invoice
  /delete <number>       delete an invoice (asks for confirmation)
  /company               show the connected company
  /clear                 empty the invoices panel
  /help                  this help
  /exit                  quit`)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
