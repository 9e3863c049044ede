package core_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"invoice-agent/internal/core"

	"github.com/shopspring/decimal"
)

// fakeGateway is an in-memory provider that follows the downstream rules the
// executors depend on: sparse updates, sync token checks and void-on-delete.
type fakeGateway struct {
	mu       sync.Mutex
	invoices []core.Invoice
	nextID   int
	calls    []string

	sendErr error
}

func newFakeGateway(invoices ...core.Invoice) *fakeGateway {
	g := &fakeGateway{nextID: 1000}
	for _, inv := range invoices {
		if inv.SyncToken == "" {
			inv.SyncToken = "0"
		}
		g.invoices = append(g.invoices, inv)
	}
	return g
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) find(id string) int {
	for i := range g.invoices {
		if g.invoices[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *fakeGateway) GetInvoice(_ context.Context, id string) (*core.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("get " + id)
	i := g.find(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: Object Not Found", core.ErrNotFound)
	}
	inv := g.invoices[i]
	return &inv, nil
}

func (g *fakeGateway) QueryInvoices(_ context.Context, q core.InvoiceQuery) ([]core.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("query")
	n := len(g.invoices)
	if q.MaxResults > 0 && n > q.MaxResults {
		n = q.MaxResults
	}
	return append([]core.Invoice(nil), g.invoices[:n]...), nil
}

func (g *fakeGateway) CreateInvoice(_ context.Context, inv *core.Invoice) (*core.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create")
	g.nextID++
	created := *inv
	created.ID = strconv.Itoa(g.nextID)
	created.SyncToken = "0"
	created.Balance = decimal.NewNullDecimal(inv.TotalAmount)
	if created.DocumentNumber == "" {
		created.DocumentNumber = strconv.Itoa(g.nextID + 1000)
	}
	g.invoices = append([]core.Invoice{created}, g.invoices...)
	return &created, nil
}

func (g *fakeGateway) UpdateInvoice(_ context.Context, c core.InvoiceChanges) (*core.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("update " + c.ID)
	i := g.find(c.ID)
	if i < 0 {
		return nil, fmt.Errorf("%w: Object Not Found", core.ErrNotFound)
	}
	inv := &g.invoices[i]
	if inv.SyncToken != c.SyncToken {
		return nil, fmt.Errorf("%w: Stale Object Error", core.ErrProvider)
	}
	if c.CustomerRef != nil {
		inv.CustomerRef = *c.CustomerRef
	}
	if c.CustomerName != nil {
		inv.CustomerName = *c.CustomerName
	}
	if c.DueDate != nil {
		inv.DueDate = *c.DueDate
	}
	if c.LineItems != nil {
		inv.LineItems = c.LineItems
		total := decimal.Zero
		for _, l := range c.LineItems {
			total = total.Add(l.Amount)
		}
		inv.TotalAmount = total
	}
	if c.Balance != nil {
		inv.Balance = decimal.NewNullDecimal(*c.Balance)
	}
	tok, _ := strconv.Atoi(inv.SyncToken)
	inv.SyncToken = strconv.Itoa(tok + 1)
	updated := *inv
	return &updated, nil
}

func (g *fakeGateway) DeleteInvoice(_ context.Context, id, syncToken string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("delete " + id)
	i := g.find(id)
	if i < 0 {
		return fmt.Errorf("%w: Object Not Found", core.ErrNotFound)
	}
	if g.invoices[i].SyncToken != syncToken {
		return fmt.Errorf("%w: Stale Object Error", core.ErrProvider)
	}
	g.invoices = append(g.invoices[:i], g.invoices[i+1:]...)
	return nil
}

func (g *fakeGateway) SendInvoice(_ context.Context, id, email string) (*core.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("send " + id + " " + email)
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	i := g.find(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: Object Not Found", core.ErrNotFound)
	}
	inv := &g.invoices[i]
	inv.EmailStatus = "EmailSent"
	inv.BillEmail = email
	sent := *inv
	return &sent, nil
}

func (g *fakeGateway) CompanyInfo(context.Context) (*core.CompanyInfo, error) {
	return &core.CompanyInfo{RealmID: "123", CompanyName: "Sandbox Company"}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func inv(id, doc, customer, customerRef string, total, balance string, due string) core.Invoice {
	t := decimal.RequireFromString(total)
	out := core.Invoice{
		ID:             id,
		DocumentNumber: doc,
		CustomerName:   customer,
		CustomerRef:    customerRef,
		DueDate:        due,
		TotalAmount:    t,
		LineItems:      []core.LineItem{{Description: "Consulting", Amount: t, ItemRef: "1"}},
	}
	if balance != "" {
		out.Balance = decimal.NewNullDecimal(decimal.RequireFromString(balance))
	}
	return out
}
