package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxScan bounds every listing used for filtering and exact-match resolution.
const MaxScan = 1000

// DefaultLineDescription is used when a new line item has no description.
const DefaultLineDescription = "Services"

// InvoiceList is returned by ListInvoices.
type InvoiceList struct {
	Invoices []Invoice
	Filter   string
	Summary  string
}

// InvoiceService executes the six invoice operations against a Gateway.
// Every reference is resolved by exact match; a reference that is only a
// prefix, suffix or substring of an id or document number never matches.
type InvoiceService interface {
	// GetInvoice resolves by provider id first, then by document number over
	// a bounded listing.
	GetInvoice(ctx context.Context, args GetInvoiceArgs) (*Invoice, error)

	// ListInvoices returns the filtered listing and its text summary.
	ListInvoices(ctx context.Context, args ListInvoicesArgs) (*InvoiceList, error)

	// CreateInvoice creates a single-line invoice for an existing customer.
	CreateInvoice(ctx context.Context, args CreateInvoiceArgs) (*Invoice, error)

	// UpdateInvoice re-resolves the invoice, reads a fresh SyncToken and
	// writes back only the supplied fields.
	UpdateInvoice(ctx context.Context, args UpdateInvoiceArgs) (*Invoice, error)

	// DeleteInvoice voids the invoice downstream and returns the copy read
	// just before deletion.
	DeleteInvoice(ctx context.Context, args DeleteInvoiceArgs) (*Invoice, error)

	// SendInvoice emails the invoice. The address is validated before any
	// downstream call.
	SendInvoice(ctx context.Context, args SendInvoiceArgs) (*Invoice, error)
}

type invoiceService struct {
	gw  Gateway
	now func() time.Time
}

// NewInvoiceService constructs an InvoiceService over gw. now may be nil.
func NewInvoiceService(gw Gateway, now func() time.Time) InvoiceService {
	if now == nil {
		now = time.Now
	}
	return &invoiceService{gw: gw, now: now}
}

func (s *invoiceService) GetInvoice(ctx context.Context, args GetInvoiceArgs) (*Invoice, error) {
	args.Normalize()
	if err := args.Validate(); err != nil {
		return nil, err
	}
	ref := args.InvoiceID

	if isDigits(ref) {
		inv, err := s.gw.GetInvoice(ctx, ref)
		switch {
		case err == nil && inv != nil && inv.ID == ref:
			return inv, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	invoices, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	inv, ok := resolveExact(invoices, ref)
	if !ok {
		return nil, notFound(ref)
	}
	return inv, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, args ListInvoicesArgs) (*InvoiceList, error) {
	args.Normalize()
	invoices, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	filtered := FilterInvoices(invoices, args.Filter, s.now())
	return &InvoiceList{
		Invoices: filtered,
		Filter:   args.Filter,
		Summary:  SummarizeInvoices(filtered, args.Filter),
	}, nil
}

func (s *invoiceService) CreateInvoice(ctx context.Context, args CreateInvoiceArgs) (*Invoice, error) {
	args.Normalize()
	if err := args.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	customerRef, customerName, err := resolveCustomer(invoices, args.CustomerName)
	if err != nil {
		return nil, err
	}

	description := args.Description
	if description == "" {
		description = DefaultLineDescription
	}
	amount := args.AmountDecimal()
	draft := &Invoice{
		DocumentNumber: args.DocumentNumber,
		CustomerName:   customerName,
		CustomerRef:    customerRef,
		DueDate:        args.DueDate,
		TotalAmount:    amount,
		LineItems:      []LineItem{{Description: description, Amount: amount}},
	}
	return s.gw.CreateInvoice(ctx, draft)
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, args UpdateInvoiceArgs) (*Invoice, error) {
	args.Normalize()
	if err := args.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	match, ok := resolveExact(invoices, args.InvoiceID)
	if !ok {
		return nil, notFound(args.InvoiceID)
	}
	current, err := s.gw.GetInvoice(ctx, match.ID)
	if err != nil {
		return nil, err
	}

	changes := InvoiceChanges{ID: current.ID, SyncToken: current.SyncToken}

	if args.CustomerName != nil {
		ref, name, err := resolveCustomer(invoices, *args.CustomerName)
		if err != nil {
			return nil, err
		}
		changes.CustomerRef = &ref
		changes.CustomerName = &name
	}
	if args.DueDate != nil {
		changes.DueDate = args.DueDate
	}

	total := current.TotalAmount
	if args.Amount != nil || args.Description != nil {
		lines := append([]LineItem(nil), current.LineItems...)
		if len(lines) == 0 {
			lines = []LineItem{{Description: DefaultLineDescription, Amount: current.TotalAmount}}
		}
		if args.Amount != nil {
			total = decimal.NewFromFloat(*args.Amount).Round(2)
			// a new amount collapses the invoice to one line
			lines = []LineItem{{Description: lines[0].Description, Amount: total, ItemRef: lines[0].ItemRef}}
		}
		if args.Description != nil {
			lines[0].Description = *args.Description
		}
		changes.LineItems = lines
	}

	if args.Balance != nil {
		b := decimal.NewFromFloat(*args.Balance).Round(2)
		changes.Balance = &b
	}
	if args.Paid != nil {
		b := decimal.Zero
		if !*args.Paid {
			b = total
		}
		changes.Balance = &b
	}

	return s.gw.UpdateInvoice(ctx, changes)
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, args DeleteInvoiceArgs) (*Invoice, error) {
	args.Normalize()
	if err := args.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	match, ok := resolveExact(invoices, args.InvoiceID)
	if !ok {
		return nil, notFound(args.InvoiceID)
	}
	current, err := s.gw.GetInvoice(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	if err := s.gw.DeleteInvoice(ctx, current.ID, current.SyncToken); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *invoiceService) SendInvoice(ctx context.Context, args SendInvoiceArgs) (*Invoice, error) {
	args.Normalize()
	if err := args.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.listing(ctx)
	if err != nil {
		return nil, err
	}
	match, ok := resolveExact(invoices, args.InvoiceID)
	if !ok {
		return nil, notFound(args.InvoiceID)
	}
	sent, err := s.gw.SendInvoice(ctx, match.ID, args.Email)
	if err != nil {
		return nil, err
	}
	if sent == nil {
		sent = match
	}
	return sent, nil
}

// ── private helpers ──────────────────────────────────────────────────────────

func (s *invoiceService) listing(ctx context.Context) ([]Invoice, error) {
	return s.gw.QueryInvoices(ctx, InvoiceQuery{MaxResults: MaxScan, StartPosition: 1})
}

// resolveExact matches ref against provider ids first, then document numbers.
func resolveExact(invoices []Invoice, ref string) (*Invoice, bool) {
	for i := range invoices {
		if invoices[i].ID == ref {
			return &invoices[i], true
		}
	}
	for i := range invoices {
		if invoices[i].DocumentNumber != "" && invoices[i].DocumentNumber == ref {
			return &invoices[i], true
		}
	}
	return nil, false
}

// resolveCustomer finds an existing customer reference by name using the
// customers seen on existing invoices. A case-insensitive exact name wins;
// otherwise a bidirectional substring match must identify one customer.
func resolveCustomer(invoices []Invoice, name string) (ref, display string, err error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	candidates := make(map[string]string)
	for i := range invoices {
		inv := &invoices[i]
		if inv.CustomerRef == "" || inv.CustomerName == "" {
			continue
		}
		hay := strings.ToLower(inv.CustomerName)
		if hay == needle {
			return inv.CustomerRef, inv.CustomerName, nil
		}
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			candidates[inv.CustomerRef] = inv.CustomerName
		}
	}

	switch len(candidates) {
	case 0:
		return "", "", fmt.Errorf("%w: no existing customer matches %q, use the name of an existing customer", ErrCustomerNotFound, name)
	case 1:
		for r, d := range candidates {
			return r, d, nil
		}
	}

	names := make([]string, 0, len(candidates))
	for _, n := range candidates {
		names = append(names, n)
	}
	sort.Strings(names)
	return "", "", fmt.Errorf("%w: customer name %q is ambiguous (%s)", ErrValidation, name, strings.Join(names, "; "))
}

func notFound(ref string) error {
	return fmt.Errorf("%w: no invoice with ID or number %q", ErrNotFound, ref)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
