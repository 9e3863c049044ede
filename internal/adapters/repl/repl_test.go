package repl_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"invoice-agent/internal/adapters/repl"
	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	invoices []core.Invoice
	created  *core.Invoice
	sentTo   string
	deleted  string
}

func (g *gateway) GetInvoice(_ context.Context, id string) (*core.Invoice, error) {
	for i := range g.invoices {
		if g.invoices[i].ID == id {
			inv := g.invoices[i]
			return &inv, nil
		}
	}
	return nil, core.ErrNotFound
}

func (g *gateway) QueryInvoices(context.Context, core.InvoiceQuery) ([]core.Invoice, error) {
	return append([]core.Invoice(nil), g.invoices...), nil
}

func (g *gateway) CreateInvoice(_ context.Context, inv *core.Invoice) (*core.Invoice, error) {
	c := *inv
	c.ID = "900"
	g.created = &c
	return &c, nil
}

func (g *gateway) UpdateInvoice(ctx context.Context, ch core.InvoiceChanges) (*core.Invoice, error) {
	return g.GetInvoice(ctx, ch.ID)
}

func (g *gateway) DeleteInvoice(_ context.Context, id, _ string) error {
	g.deleted = id
	return nil
}

func (g *gateway) SendInvoice(ctx context.Context, id, email string) (*core.Invoice, error) {
	g.sentTo = email
	return g.GetInvoice(ctx, id)
}

func (g *gateway) CompanyInfo(context.Context) (*core.CompanyInfo, error) {
	return &core.CompanyInfo{RealmID: "9130", CompanyName: "Sandbox Company_US_1"}, nil
}

// listModel answers every turn by calling list once.
type listModel struct{}

func (listModel) Step(_ context.Context, req ai.StepRequest) (*ai.StepResponse, error) {
	if len(req.Outputs) > 0 || req.Tools == nil {
		return &ai.StepResponse{Text: "done"}, nil
	}
	return &ai.StepResponse{ResponseID: "r1", Calls: []ai.ToolCall{{CallID: "c1", Name: ai.ToolList, Arguments: `{}`}}}, nil
}

func fixture() *gateway {
	return &gateway{invoices: []core.Invoice{
		{ID: "145", DocumentNumber: "1037", CustomerName: "Amy's Bird Sanctuary", CustomerRef: "1",
			TotalAmount: decimal.NewFromInt(560), Balance: decimal.NewNullDecimal(decimal.NewFromInt(560)), SyncToken: "0"},
		{ID: "146", DocumentNumber: "1038", CustomerName: "Bill's Windsurf Shop", CustomerRef: "2",
			TotalAmount: decimal.NewFromInt(85), Balance: decimal.NewNullDecimal(decimal.Zero), SyncToken: "0"},
	}}
}

func session(gw *gateway, input string) (*repl.Session, *bytes.Buffer) {
	factory := func(*credentials.Credentials) (core.Gateway, error) { return gw, nil }
	svc := app.NewAppService(ai.NewDriver(listModel{}, "", nil), factory, app.Options{})
	out := &bytes.Buffer{}
	creds := &credentials.Credentials{AccessToken: "t", TenantID: "9130"}
	return repl.NewSession(svc, creds, strings.NewReader(input), out), out
}

func TestSession_ChatUpdatesPanel(t *testing.T) {
	s, out := session(fixture(), "show all invoices\n/show 1038\n/exit\n")
	require.NoError(t, s.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Found 2 invoices")
	assert.Contains(t, text, "Bill's Windsurf Shop")
	assert.Contains(t, text, "Goodbye!")
	assert.Len(t, s.Display().Invoices, 2)
	assert.Equal(t, "146", s.Display().SelectedID)
}

func TestSession_NewInvoiceWizard(t *testing.T) {
	gw := fixture()
	s, out := session(gw, "/new-invoice\nAmy\nabc\n250\nnot-a-date\n2026-12-01\nBird seed\ny\n")
	require.NoError(t, s.Run(context.Background()))

	require.NotNil(t, gw.created)
	assert.Equal(t, "1", gw.created.CustomerRef)
	assert.True(t, gw.created.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.Contains(t, out.String(), "Invalid amount.")
	assert.Contains(t, out.String(), "Invalid date.")
	assert.Contains(t, out.String(), "has been successfully created")
	assert.Equal(t, "900", s.Display().SelectedID)
}

func TestSession_WizardCancel(t *testing.T) {
	gw := fixture()
	s, out := session(gw, "/new-invoice\ncancel\n")
	require.NoError(t, s.Run(context.Background()))
	assert.Nil(t, gw.created)
	assert.Contains(t, out.String(), "cancelled")
}

func TestSession_SendAndDelete(t *testing.T) {
	gw := fixture()
	s, out := session(gw, "/send 145 amy@example.com\n/delete 145\nn\n/delete 145\ny\n/company\n")
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, "amy@example.com", gw.sentTo)
	assert.Equal(t, "145", gw.deleted)
	assert.Contains(t, out.String(), "Cancelled.")
	assert.Contains(t, out.String(), "Sandbox Company_US_1")
}

func TestSession_NotConnected(t *testing.T) {
	factory := func(*credentials.Credentials) (core.Gateway, error) { return fixture(), nil }
	svc := app.NewAppService(ai.NewDriver(listModel{}, "", nil), factory, app.Options{})
	out := &bytes.Buffer{}
	s := repl.NewSession(svc, nil, strings.NewReader("show unpaid invoices\n/bogus\n"), out)
	require.NoError(t, s.Run(context.Background()))

	assert.Contains(t, out.String(), "Not connected to QuickBooks")
	assert.Contains(t, out.String(), "QuickBooks is not connected")
	assert.Contains(t, out.String(), "Unknown command: /bogus")
}
