package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel answers each step with the next scripted function.
type scriptedModel struct {
	mu       sync.Mutex
	script   []func(req ai.StepRequest) *ai.StepResponse
	requests []ai.StepRequest
}

func (m *scriptedModel) Step(_ context.Context, req ai.StepRequest) (*ai.StepResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	if i >= len(m.script) {
		return nil, fmt.Errorf("unexpected step %d", i+1)
	}
	return m.script[i](req), nil
}

func reply(text string, calls ...ai.ToolCall) func(ai.StepRequest) *ai.StepResponse {
	return func(ai.StepRequest) *ai.StepResponse {
		return &ai.StepResponse{ResponseID: "resp", Text: text, Calls: calls}
	}
}

// stubService is an in-memory InvoiceService recording calls.
type stubService struct {
	invoices []core.Invoice
	calls    []string
	nextID   int
}

func newStubService() *stubService {
	return &stubService{
		nextID: 200,
		invoices: []core.Invoice{
			{ID: "145", DocumentNumber: "1037", CustomerName: "Amy's Bird Sanctuary", TotalAmount: decimal.NewFromInt(100),
				Balance: decimal.NewNullDecimal(decimal.NewFromInt(100))},
			{ID: "146", DocumentNumber: "1038", CustomerName: "Bill's Windsurf Shop", TotalAmount: decimal.NewFromInt(50),
				Balance: decimal.NewNullDecimal(decimal.Zero)},
		},
	}
}

func (s *stubService) find(ref string) (*core.Invoice, error) {
	for i := range s.invoices {
		if s.invoices[i].ID == ref || s.invoices[i].DocumentNumber == ref {
			inv := s.invoices[i]
			return &inv, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrNotFound, ref)
}

func (s *stubService) GetInvoice(_ context.Context, a core.GetInvoiceArgs) (*core.Invoice, error) {
	s.calls = append(s.calls, "get")
	a.Normalize()
	return s.find(a.InvoiceID)
}

func (s *stubService) ListInvoices(_ context.Context, a core.ListInvoicesArgs) (*core.InvoiceList, error) {
	s.calls = append(s.calls, "list")
	return &core.InvoiceList{Invoices: s.invoices, Filter: a.Filter, Summary: core.SummarizeInvoices(s.invoices, a.Filter)}, nil
}

func (s *stubService) CreateInvoice(_ context.Context, a core.CreateInvoiceArgs) (*core.Invoice, error) {
	s.calls = append(s.calls, "create")
	if err := a.Validate(); err != nil {
		return nil, err
	}
	s.nextID++
	inv := core.Invoice{
		ID: fmt.Sprint(s.nextID), CustomerName: a.CustomerName,
		TotalAmount: a.AmountDecimal(), Balance: decimal.NewNullDecimal(a.AmountDecimal()),
	}
	s.invoices = append(s.invoices, inv)
	return &inv, nil
}

func (s *stubService) UpdateInvoice(_ context.Context, a core.UpdateInvoiceArgs) (*core.Invoice, error) {
	s.calls = append(s.calls, "update")
	return s.find(a.InvoiceID)
}

func (s *stubService) DeleteInvoice(_ context.Context, a core.DeleteInvoiceArgs) (*core.Invoice, error) {
	s.calls = append(s.calls, "delete")
	return s.find(a.InvoiceID)
}

func (s *stubService) SendInvoice(_ context.Context, a core.SendInvoiceArgs) (*core.Invoice, error) {
	a.Normalize()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	s.calls = append(s.calls, "sendDocument")
	return s.find(a.InvoiceID)
}

func TestDriver_ConversationalTurnCallsNoTools(t *testing.T) {
	svc := newStubService()
	model := &scriptedModel{script: []func(ai.StepRequest) *ai.StepResponse{
		// a misbehaving model asking for a tool anyway
		reply("Hello! I can help with invoices.", ai.ToolCall{CallID: "c1", Name: ai.ToolList, Arguments: `{}`}),
	}}
	d := ai.NewDriver(model, "", nil)

	c := ai.Classify("hello, how are you?")
	tr, err := d.Run(context.Background(), "hello, how are you?", c, ai.NewInvoiceTools(svc))
	require.NoError(t, err)

	assert.Empty(t, tr.Steps)
	assert.NotEmpty(t, tr.Text)
	assert.Empty(t, svc.calls)
	require.Len(t, model.requests, 1)
	assert.Nil(t, model.requests[0].Tools, "no tools are offered on a conversational turn")
	assert.Equal(t, ai.PolicyNone, model.requests[0].Policy)
}

func TestDriver_ListAllInvoices(t *testing.T) {
	svc := newStubService()
	model := &scriptedModel{script: []func(ai.StepRequest) *ai.StepResponse{
		reply("", ai.ToolCall{CallID: "c1", Name: ai.ToolList, Arguments: `{}`}),
	}}
	d := ai.NewDriver(model, "", nil)

	c := ai.Classify("show me all invoices")
	tr, err := d.Run(context.Background(), "show me all invoices", c, ai.NewInvoiceTools(svc))
	require.NoError(t, err)

	require.Len(t, tr.Steps, 1)
	step := tr.Steps[0]
	assert.Equal(t, ai.ToolList, step.Name)
	assert.False(t, step.Result.Failed())
	assert.Equal(t, 2, step.Result.Count)
	assert.Empty(t, step.Result.Filter)
	assert.Contains(t, step.Result.Summary, "Found 2 invoices")
	assert.Equal(t, ai.PolicyForced, model.requests[0].Policy)
}

func TestDriver_ForcedPolicyExecutesOnlyFirstCall(t *testing.T) {
	svc := newStubService()
	model := &scriptedModel{script: []func(ai.StepRequest) *ai.StepResponse{
		reply("",
			ai.ToolCall{CallID: "c1", Name: ai.ToolGet, Arguments: `{"invoiceId":"145"}`},
			ai.ToolCall{CallID: "c2", Name: ai.ToolDelete, Arguments: `{"invoiceId":"145"}`},
		),
	}}
	d := ai.NewDriver(model, "", nil)

	tr, err := d.Run(context.Background(), "get invoice 145", ai.Classify("get invoice 145"), ai.NewInvoiceTools(svc))
	require.NoError(t, err)
	require.Len(t, tr.Steps, 1)
	assert.Equal(t, ai.ToolGet, tr.Steps[0].Name)
	assert.Equal(t, []string{"get"}, svc.calls)
}

func TestDriver_CreateThenSendUsesCreatedID(t *testing.T) {
	svc := newStubService()
	text := "create an invoice for $500 for Amy's Bird Sanctuary and email it to test@example.com"

	model := &scriptedModel{script: []func(ai.StepRequest) *ai.StepResponse{
		reply("", ai.ToolCall{CallID: "c1", Name: ai.ToolCreate, Arguments: `{"customerName":"Amy's Bird Sanctuary","amount":500}`}),
		func(req ai.StepRequest) *ai.StepResponse {
			// read the created id from the tool output, like a model would
			var out struct {
				Invoice struct {
					ID string `json:"id"`
				} `json:"invoice"`
			}
			if len(req.Outputs) != 1 || json.Unmarshal([]byte(req.Outputs[0].Output), &out) != nil {
				return &ai.StepResponse{Text: "bad output"}
			}
			args := fmt.Sprintf(`{"invoiceId":%q,"email":"test@example.com"}`, out.Invoice.ID)
			return &ai.StepResponse{ResponseID: "r2", Calls: []ai.ToolCall{{CallID: "c2", Name: ai.ToolSendDocument, Arguments: args}}}
		},
		reply("Created invoice 201 and emailed it to test@example.com."),
	}}
	d := ai.NewDriver(model, "", nil)

	c := ai.Classify(text)
	require.Equal(t, ai.PolicyAuto, c.ToolPolicy)
	tr, err := d.Run(context.Background(), text, c, ai.NewInvoiceTools(svc))
	require.NoError(t, err)

	require.Len(t, tr.Steps, 2)
	assert.Equal(t, ai.ToolCreate, tr.Steps[0].Name)
	assert.Equal(t, ai.ToolSendDocument, tr.Steps[1].Name)
	created := tr.Steps[0].Result.Invoice
	require.NotNil(t, created)
	assert.JSONEq(t, fmt.Sprintf(`{"invoiceId":%q,"email":"test@example.com"}`, created.ID), string(tr.Steps[1].Arguments))
	assert.Equal(t, "test@example.com", tr.Steps[1].Result.SentTo)
	assert.Equal(t, []string{"create", "sendDocument"}, svc.calls)
	assert.Contains(t, tr.Text, "emailed")

	require.Len(t, model.requests, 3)
	assert.Equal(t, "c1", model.requests[1].Outputs[0].CallID)
	assert.Equal(t, "r2", model.requests[2].PreviousResponseID)
}

func TestDriver_BudgetIsAHardCap(t *testing.T) {
	svc := newStubService()
	loop := reply("", ai.ToolCall{CallID: "c", Name: ai.ToolList, Arguments: `{}`})
	script := make([]func(ai.StepRequest) *ai.StepResponse, 10)
	for i := range script {
		script[i] = loop
	}
	model := &scriptedModel{script: script}
	d := ai.NewDriver(model, "", nil)

	c := ai.Classify("list invoices and then list them again")
	tr, err := d.Run(context.Background(), "list", c, ai.NewInvoiceTools(svc))
	require.NoError(t, err)
	assert.Len(t, model.requests, ai.MaxChainedSteps)
	assert.Len(t, tr.Steps, ai.MaxChainedSteps)
}

func TestDriver_InvalidEmailMakesNoDownstreamCall(t *testing.T) {
	svc := newStubService()
	model := &scriptedModel{script: []func(ai.StepRequest) *ai.StepResponse{
		reply("", ai.ToolCall{CallID: "c1", Name: ai.ToolSendDocument, Arguments: `{"invoiceId":"145","email":"not-an-email"}`}),
	}}
	d := ai.NewDriver(model, "", nil)

	tr, err := d.Run(context.Background(), "send invoice 145 to not-an-email", ai.Classify("send invoice 145"), ai.NewInvoiceTools(svc))
	require.NoError(t, err)
	require.Len(t, tr.Steps, 1)
	assert.True(t, tr.Steps[0].Result.Failed())
	assert.Equal(t, core.KindValidation, tr.Steps[0].Result.Kind)
	assert.Empty(t, svc.calls)
}

func TestDriver_ToolFailuresStayInsideResults(t *testing.T) {
	svc := newStubService()
	model := &scriptedModel{script: []func(ai.StepRequest) *ai.StepResponse{
		reply("",
			ai.ToolCall{CallID: "c1", Name: "refund", Arguments: `{}`},
		),
	}}
	d := ai.NewDriver(model, "", nil)

	tr, err := d.Run(context.Background(), "get invoice 9", ai.Classify("get invoice 9"), ai.NewInvoiceTools(svc))
	require.NoError(t, err)
	require.Len(t, tr.Steps, 1)
	assert.Contains(t, tr.Steps[0].Result.Error, "unknown tool")
}

func TestDriver_ModelErrorPropagates(t *testing.T) {
	model := &scriptedModel{}
	d := ai.NewDriver(model, "", nil)
	_, err := d.Run(context.Background(), "hi", ai.Classify("hi"), ai.NewInvoiceTools(newStubService()))
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrValidation))
}

func TestNewInvoiceTools_Schemas(t *testing.T) {
	reg := ai.NewInvoiceTools(newStubService())
	names := make([]string, 0, len(reg.All()))
	for _, tool := range reg.All() {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], tool.Name)
		assert.NotContains(t, tool.InputSchema, "$schema")
	}
	assert.Equal(t, []string{"get", "list", "create", "update", "delete", "sendDocument"}, names)

	send, ok := reg.Get(ai.ToolSendDocument)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"invoiceId", "email"}, send.InputSchema["required"])
	assert.Len(t, reg.ToOpenAITools(), 6)
}

func TestModelOutput_TruncatesLists(t *testing.T) {
	invoices := make([]core.Invoice, 60)
	for i := range invoices {
		invoices[i] = core.Invoice{ID: fmt.Sprint(i + 1), TotalAmount: decimal.NewFromInt(1)}
	}
	out := ai.ModelOutput(core.ToolResult{Invoices: invoices, Count: 60, Summary: "Found 60 invoices."})

	var decoded struct {
		Count    int               `json:"count"`
		Invoices []json.RawMessage `json:"invoices"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 60, decoded.Count)
	assert.Len(t, decoded.Invoices, 50)

	assert.JSONEq(t, `{"error":"boom"}`, ai.ModelOutput(core.ToolResult{Error: "boom", Kind: core.KindInternal}))
}
