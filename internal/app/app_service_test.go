package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memGateway serves a fixed invoice set.
type memGateway struct {
	invoices []core.Invoice
}

func (g *memGateway) GetInvoice(_ context.Context, id string) (*core.Invoice, error) {
	for i := range g.invoices {
		if g.invoices[i].ID == id {
			inv := g.invoices[i]
			return &inv, nil
		}
	}
	return nil, core.ErrNotFound
}

func (g *memGateway) QueryInvoices(context.Context, core.InvoiceQuery) ([]core.Invoice, error) {
	return append([]core.Invoice(nil), g.invoices...), nil
}

func (g *memGateway) CreateInvoice(_ context.Context, inv *core.Invoice) (*core.Invoice, error) {
	created := *inv
	created.ID = "900"
	return &created, nil
}

func (g *memGateway) UpdateInvoice(ctx context.Context, ch core.InvoiceChanges) (*core.Invoice, error) {
	return g.GetInvoice(ctx, ch.ID)
}

func (g *memGateway) DeleteInvoice(context.Context, string, string) error {
	return nil
}

func (g *memGateway) SendInvoice(ctx context.Context, id, _ string) (*core.Invoice, error) {
	return g.GetInvoice(ctx, id)
}

func (g *memGateway) CompanyInfo(context.Context) (*core.CompanyInfo, error) {
	return &core.CompanyInfo{RealmID: "9130", CompanyName: "Sandbox Company_US_1"}, nil
}

// funcModel delegates each step to fn.
type funcModel struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, req ai.StepRequest) (*ai.StepResponse, error)
	steps []ai.StepRequest
}

func (m *funcModel) Step(ctx context.Context, req ai.StepRequest) (*ai.StepResponse, error) {
	m.mu.Lock()
	m.steps = append(m.steps, req)
	m.mu.Unlock()
	return m.fn(ctx, req)
}

var testCreds = &credentials.Credentials{AccessToken: "token", TenantID: "9130"}

func newService(t *testing.T, model ai.Model, gw core.Gateway, timeout time.Duration) app.ApplicationService {
	t.Helper()
	factory := func(creds *credentials.Credentials) (core.Gateway, error) {
		assert.True(t, creds.Usable())
		return gw, nil
	}
	return app.NewAppService(ai.NewDriver(model, "", nil), factory, app.Options{TurnTimeout: timeout})
}

func TestProcessTurn_RequiresMessage(t *testing.T) {
	svc := newService(t, &funcModel{}, &memGateway{}, time.Second)
	_, err := svc.ProcessTurn(context.Background(), app.TurnRequest{Message: "   "})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestProcessTurn_OperationalWithoutCredentials(t *testing.T) {
	model := &funcModel{}
	svc := newService(t, model, &memGateway{}, time.Second)
	_, err := svc.ProcessTurn(context.Background(), app.TurnRequest{Message: "show me all invoices"})
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Empty(t, model.steps, "model is not called")
}

func TestProcessTurn_ConversationalWithoutCredentials(t *testing.T) {
	model := &funcModel{fn: func(context.Context, ai.StepRequest) (*ai.StepResponse, error) {
		return &ai.StepResponse{Text: "Hi! I can list, create and email invoices."}, nil
	}}
	svc := newService(t, model, &memGateway{}, time.Second)

	res, err := svc.ProcessTurn(context.Background(), app.TurnRequest{Message: "hello, how are you?"})
	require.NoError(t, err)
	assert.Equal(t, "Hi! I can list, create and email invoices.", res.Result.Text)
	assert.Equal(t, ai.ModeConversational, res.Classification.Mode)
	require.Len(t, model.steps, 1)
	assert.Nil(t, model.steps[0].Tools)
}

func TestProcessTurn_ListUpdatesDisplay(t *testing.T) {
	gw := &memGateway{invoices: []core.Invoice{
		invoice("145", "1037", "Amy's Bird Sanctuary", 100, 100),
		invoice("146", "1038", "Bill's Windsurf Shop", 50, 0),
	}}
	model := &funcModel{fn: func(_ context.Context, req ai.StepRequest) (*ai.StepResponse, error) {
		return &ai.StepResponse{Calls: []ai.ToolCall{{CallID: "c1", Name: ai.ToolList, Arguments: `{}`}}}, nil
	}}
	svc := newService(t, model, gw, time.Second)

	prior := app.Display{Invoices: []core.Invoice{invoice("1", "", "Old", 1, 1)}, SelectedID: "1"}
	res, err := svc.ProcessTurn(context.Background(), app.TurnRequest{
		Message:     "show me all invoices",
		Display:     prior,
		Credentials: testCreds,
	})
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Result.Text, "Found 2 invoice(s)")
	require.NotNil(t, res.Result.Display)
	assert.Len(t, res.Result.Display.Invoices, 2)
	assert.Empty(t, res.Result.Display.SelectedID)
	require.Len(t, res.Transcript.Steps, 1)
}

func TestProcessTurn_TimeoutAbandonsWaiting(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	model := &funcModel{fn: func(ctx context.Context, _ ai.StepRequest) (*ai.StepResponse, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &ai.StepResponse{Text: "late"}, nil
	}}
	svc := newService(t, model, &memGateway{}, 20*time.Millisecond)

	start := time.Now()
	res, err := svc.ProcessTurn(context.Background(), app.TurnRequest{Message: "show me all invoices", Credentials: testCreds})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, app.TimeoutMessage, res.Result.Text)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcessTurn_ModelFailureIsAnError(t *testing.T) {
	model := &funcModel{fn: func(context.Context, ai.StepRequest) (*ai.StepResponse, error) {
		return nil, assert.AnError
	}}
	svc := newService(t, model, &memGateway{}, time.Second)
	_, err := svc.ProcessTurn(context.Background(), app.TurnRequest{Message: "hi"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCompanyInfo(t *testing.T) {
	svc := newService(t, &funcModel{}, &memGateway{}, time.Second)

	_, err := svc.CompanyInfo(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	info, err := svc.CompanyInfo(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, "Sandbox Company_US_1", info.CompanyName)
}
