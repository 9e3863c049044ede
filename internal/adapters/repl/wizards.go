package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"
)

// newInvoiceWizard collects create arguments interactively. Any answer of
// "cancel" aborts.
func (s *Session) newInvoiceWizard(ctx context.Context) error {
	fmt.Fprintln(s.out, "Creating an invoice. Type 'cancel' at any prompt to abort.")

	var args core.CreateInvoiceArgs
	for args.CustomerName == "" {
		args.CustomerName = s.prompt("  Customer name: ")
		if cancelled(args.CustomerName) {
			fmt.Fprintln(s.out, "Invoice creation cancelled.")
			return nil
		}
	}

	for {
		raw := s.prompt("  Amount: ")
		if cancelled(raw) {
			fmt.Fprintln(s.out, "Invoice creation cancelled.")
			return nil
		}
		amount, err := strconv.ParseFloat(strings.TrimPrefix(raw, "$"), 64)
		if err != nil || amount <= 0 {
			fmt.Fprintln(s.out, "  Invalid amount.")
			continue
		}
		args.Amount = amount
		break
	}

	for {
		raw := s.prompt("  Due date (YYYY-MM-DD, blank for none): ")
		if cancelled(raw) {
			fmt.Fprintln(s.out, "Invoice creation cancelled.")
			return nil
		}
		if raw != "" {
			if _, err := time.Parse(core.DateLayout, raw); err != nil {
				fmt.Fprintln(s.out, "  Invalid date.")
				continue
			}
		}
		args.DueDate = raw
		break
	}

	args.Description = s.prompt("  Description (optional): ")
	if cancelled(args.Description) {
		fmt.Fprintln(s.out, "Invoice creation cancelled.")
		return nil
	}

	if !s.confirm(fmt.Sprintf("Create invoice for %s, amount %.2f? (y/n): ", args.CustomerName, args.Amount)) {
		fmt.Fprintln(s.out, "Invoice creation cancelled.")
		return nil
	}
	return s.execute(ctx, ai.ToolCreate, args)
}

func cancelled(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "cancel")
}
