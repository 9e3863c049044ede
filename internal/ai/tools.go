package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"invoice-agent/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/shopspring/decimal"
)

// Tool names as seen by the model.
const (
	ToolGet          = "get"
	ToolList         = "list"
	ToolCreate       = "create"
	ToolUpdate       = "update"
	ToolDelete       = "delete"
	ToolSendDocument = "sendDocument"
)

// maxModelInvoices caps how many invoices a list result echoes back to the
// model. The full list still reaches the caller.
const maxModelInvoices = 50

// ToolHandler executes a tool from its raw JSON arguments. Every failure is
// folded into the returned result.
type ToolHandler func(ctx context.Context, args json.RawMessage) core.ToolResult

// ToolDefinition describes a single tool in the registry.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     ToolHandler    `json:"-"`
}

// ToolRegistry holds the tools available to the model for one request.
// ToOpenAITools and the MCP adapter expose the same definitions in their
// respective wire formats.
type ToolRegistry struct {
	tools []ToolDefinition
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(t ToolDefinition) {
	r.tools = append(r.tools, t)
}

// Get returns the ToolDefinition for a given tool name, and whether it was found.
func (r *ToolRegistry) Get(name string) (ToolDefinition, bool) {
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}

// All returns all registered tools.
func (r *ToolRegistry) All() []ToolDefinition {
	return r.tools
}

// Execute runs the named tool. An unknown name is a validation failure, not
// an error.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) core.ToolResult {
	t, ok := r.Get(name)
	if !ok || t.Handler == nil {
		return core.ErrorResult(fmt.Errorf("%w: unknown tool %q", core.ErrValidation, name))
	}
	return t.Handler(ctx, args)
}

// ToOpenAITools converts the registry to the OpenAI Responses API tool format.
func (r *ToolRegistry) ToOpenAITools() []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.InputSchema,
				Strict:      openai.Bool(false),
			},
		})
	}
	return out
}

// NewInvoiceTools registers the six invoice tools backed by svc.
func NewInvoiceTools(svc core.InvoiceService) *ToolRegistry {
	r := NewToolRegistry()
	r.Register(ToolDefinition{
		Name:        ToolGet,
		Description: "Get one invoice by its ID or document number. Matches exactly; never guesses a similar number.",
		InputSchema: schemaFor[core.GetInvoiceArgs](),
		Handler: bind(func(ctx context.Context, a core.GetInvoiceArgs) core.ToolResult {
			return invoiceResult(svc.GetInvoice(ctx, a))
		}),
	})
	r.Register(ToolDefinition{
		Name:        ToolList,
		Description: "List invoices, optionally filtered by unpaid, paid, overdue or a customer name. Returns a count and a summary.",
		InputSchema: schemaFor[core.ListInvoicesArgs](),
		Handler: bind(func(ctx context.Context, a core.ListInvoicesArgs) core.ToolResult {
			list, err := svc.ListInvoices(ctx, a)
			if err != nil {
				return core.ErrorResult(err)
			}
			return core.ToolResult{
				Invoices: list.Invoices,
				Count:    len(list.Invoices),
				Filter:   list.Filter,
				Summary:  list.Summary,
			}
		}),
	})
	r.Register(ToolDefinition{
		Name:        ToolCreate,
		Description: "Create an invoice with a single line for an existing customer. The result contains the new invoice ID.",
		InputSchema: schemaFor[core.CreateInvoiceArgs](),
		Handler: bind(func(ctx context.Context, a core.CreateInvoiceArgs) core.ToolResult {
			return invoiceResult(svc.CreateInvoice(ctx, a))
		}),
	})
	r.Register(ToolDefinition{
		Name:        ToolUpdate,
		Description: "Update fields of an existing invoice. Only the fields provided are changed.",
		InputSchema: schemaFor[core.UpdateInvoiceArgs](),
		Handler: bind(func(ctx context.Context, a core.UpdateInvoiceArgs) core.ToolResult {
			return invoiceResult(svc.UpdateInvoice(ctx, a))
		}),
	})
	r.Register(ToolDefinition{
		Name:        ToolDelete,
		Description: "Delete an invoice by its ID or document number.",
		InputSchema: schemaFor[core.DeleteInvoiceArgs](),
		Handler: bind(func(ctx context.Context, a core.DeleteInvoiceArgs) core.ToolResult {
			inv, err := svc.DeleteInvoice(ctx, a)
			if err != nil {
				return core.ErrorResult(err)
			}
			return core.ToolResult{Invoice: inv, Deleted: true}
		}),
	})
	r.Register(ToolDefinition{
		Name:        ToolSendDocument,
		Description: "Email an invoice to a recipient. Use the invoice ID returned by a previous create or get call.",
		InputSchema: schemaFor[core.SendInvoiceArgs](),
		Handler: bind(func(ctx context.Context, a core.SendInvoiceArgs) core.ToolResult {
			inv, err := svc.SendInvoice(ctx, a)
			if err != nil {
				return core.ErrorResult(err)
			}
			return core.ToolResult{Invoice: inv, SentTo: a.Email}
		}),
	})
	return r
}

func bind[A any](run func(context.Context, A) core.ToolResult) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) core.ToolResult {
		var args A
		if len(raw) > 0 && string(raw) != "null" {
			if err := decodeArgs(raw, &args); err != nil {
				return core.ErrorResult(err)
			}
		}
		return run(ctx, args)
	}
}

// maxArgRepairs bounds how many string-encoded numbers decodeArgs unquotes.
const maxArgRepairs = 4

// decodeArgs unmarshals tool arguments into dst. Numeric fields sent as
// strings ("500", "$1,200.50") are accepted. Any other mismatch becomes a
// validation error naming the field.
func decodeArgs[A any](raw json.RawMessage, dst *A) error {
	for range maxArgRepairs {
		var zero A
		*dst = zero
		err := json.Unmarshal(raw, dst)
		if err == nil {
			return nil
		}
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) || typeErr.Value != "string" {
			return argError(err)
		}
		fixed, ok := unquoteNumber(raw, typeErr.Field)
		if !ok {
			return argError(err)
		}
		raw = fixed
	}
	*dst = *new(A)
	return fmt.Errorf("%w: malformed arguments", core.ErrValidation)
}

// unquoteNumber rewrites the top-level string field as a JSON number.
func unquoteNumber(raw json.RawMessage, field string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if field == "" || strings.Contains(field, ".") || json.Unmarshal(raw, &obj) != nil {
		return nil, false
	}
	var s string
	if json.Unmarshal(obj[field], &s) != nil {
		return nil, false
	}
	s = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", "")
	var n float64
	if json.Unmarshal([]byte(s), &n) != nil {
		return nil, false
	}
	obj[field] = json.RawMessage(s)
	fixed, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return fixed, true
}

func argError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Errorf("%w: invalid value for %s", core.ErrValidation, typeErr.Field)
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("%w: arguments are not valid JSON", core.ErrValidation)
	default:
		return fmt.Errorf("%w: malformed arguments", core.ErrValidation)
	}
}

func invoiceResult(inv *core.Invoice, err error) core.ToolResult {
	if err != nil {
		return core.ErrorResult(err)
	}
	return core.ToolResult{Invoice: inv}
}

// schemaFor reflects the parameter schema of an argument struct.
func schemaFor[A any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v A
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("reflect schema for %T: %v", v, err))
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		panic(fmt.Sprintf("decode schema for %T: %v", v, err))
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema
}

type modelInvoice struct {
	ID             string          `json:"id"`
	DocumentNumber string          `json:"documentNumber,omitempty"`
	CustomerName   string          `json:"customerName"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Balance        decimal.Decimal `json:"balance"`
	DueDate        string          `json:"dueDate,omitempty"`
	Status         string          `json:"status"`
}

func compact(inv *core.Invoice) *modelInvoice {
	if inv == nil {
		return nil
	}
	status := "unpaid"
	if inv.Paid() {
		status = "paid"
	}
	return &modelInvoice{
		ID:             inv.ID,
		DocumentNumber: inv.DocumentNumber,
		CustomerName:   inv.CustomerName,
		TotalAmount:    inv.TotalAmount,
		Balance:        inv.BalanceOrZero(),
		DueDate:        inv.DueDate,
		Status:         status,
	}
}

// ModelOutput renders a tool result as the JSON string fed back to the
// model. Lists are truncated; the summary always covers every match.
func ModelOutput(r core.ToolResult) string {
	var out any
	switch {
	case r.Failed():
		out = map[string]string{"error": r.Error}
	case r.Invoices != nil || r.Summary != "":
		items := make([]*modelInvoice, 0, min(len(r.Invoices), maxModelInvoices))
		for i := range r.Invoices {
			if i == maxModelInvoices {
				break
			}
			items = append(items, compact(&r.Invoices[i]))
		}
		out = map[string]any{"count": r.Count, "summary": r.Summary, "invoices": items}
	case r.Deleted:
		out = map[string]any{"deleted": true, "invoice": compact(r.Invoice)}
	case r.SentTo != "":
		out = map[string]any{"sent": true, "sentTo": r.SentTo, "invoice": compact(r.Invoice)}
	default:
		out = map[string]any{"invoice": compact(r.Invoice)}
	}
	buf, err := json.Marshal(out)
	if err != nil {
		return `{"error":"could not encode tool result"}`
	}
	return string(buf)
}
