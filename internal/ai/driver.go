package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"invoice-agent/internal/core"
)

// ToolCall is a call requested by the model.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// ToolOutput answers a ToolCall on the next step.
type ToolOutput struct {
	CallID string
	Output string
}

// StepRequest is one round trip to the model. The first step carries Input;
// later steps carry the outputs of the previous step's calls.
type StepRequest struct {
	Instructions       string
	Input              string
	PreviousResponseID string
	Outputs            []ToolOutput
	Tools              *ToolRegistry
	Policy             ToolPolicy
}

// StepResponse is the model's answer to one step.
type StepResponse struct {
	ResponseID string
	Text       string
	Calls      []ToolCall
}

// Model is one LLM round trip with tool calling.
type Model interface {
	Step(ctx context.Context, req StepRequest) (*StepResponse, error)
}

// ToolInvocation records one executed call and its result.
type ToolInvocation struct {
	CallID    string          `json:"callId"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    core.ToolResult `json:"result"`
}

// Transcript is the outcome of one turn: the final model text and the
// executed tool calls in order.
type Transcript struct {
	Text  string           `json:"text"`
	Steps []ToolInvocation `json:"steps"`
}

// Driver runs the tool-calling loop for one turn.
type Driver struct {
	model        Model
	instructions string
	logger       *slog.Logger
}

// NewDriver constructs a Driver. An empty instructions string selects the
// default invoice assistant prompt.
func NewDriver(model Model, instructions string, logger *slog.Logger) *Driver {
	if instructions == "" {
		instructions = DefaultInstructions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{model: model, instructions: instructions, logger: logger}
}

// Run sends text to the model under the classification's policy and
// executes requested calls sequentially until the model stops calling tools
// or the step budget is spent.
func (d *Driver) Run(ctx context.Context, text string, c Classification, tools *ToolRegistry) (*Transcript, error) {
	budget := c.StepBudget
	if budget < 1 {
		budget = 1
	}
	if tools == nil || len(tools.All()) == 0 {
		c.ToolPolicy = PolicyNone
	}

	transcript := &Transcript{}
	req := StepRequest{
		Instructions: d.instructions,
		Input:        text,
		Policy:       c.ToolPolicy,
	}
	if c.ToolPolicy != PolicyNone {
		req.Tools = tools
	}

	for step := 1; step <= budget; step++ {
		resp, err := d.model.Step(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("model step %d: %w", step, err)
		}
		transcript.Text = resp.Text

		calls := resp.Calls
		if c.ToolPolicy == PolicyNone {
			calls = nil
		}
		if c.ToolPolicy == PolicyForced && len(calls) > 1 {
			calls = calls[:1]
		}
		if len(calls) == 0 {
			break
		}

		outputs := make([]ToolOutput, 0, len(calls))
		for _, call := range calls {
			result := tools.Execute(ctx, call.Name, json.RawMessage(call.Arguments))
			d.logger.InfoContext(ctx, "tool executed",
				"step", step,
				"tool", call.Name,
				"failed", result.Failed(),
				"kind", result.Kind,
			)
			transcript.Steps = append(transcript.Steps, ToolInvocation{
				CallID:    call.CallID,
				Name:      call.Name,
				Arguments: rawArgs(call.Arguments),
				Result:    result,
			})
			outputs = append(outputs, ToolOutput{CallID: call.CallID, Output: ModelOutput(result)})
		}

		if step == budget {
			break
		}
		// every step after the first is free to stop calling tools
		req = StepRequest{
			Instructions:       d.instructions,
			PreviousResponseID: resp.ResponseID,
			Outputs:            outputs,
			Tools:              tools,
			Policy:             PolicyAuto,
		}
	}
	return transcript, nil
}

func rawArgs(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}

// DefaultInstructions is the system prompt for the invoice assistant.
const DefaultInstructions = `You are an assistant that manages invoices in QuickBooks Online.
Use the provided tools for every invoice operation; never invent invoice data.
Rules:
1. Refer to invoices by the exact ID or document number the user gives, without the # sign.
2. When a request has several steps, call the tools in order and use values returned by earlier calls (for example the ID of a newly created invoice) in later calls.
3. Amounts are plain numbers in the company currency.
4. Dates are YYYY-MM-DD.
5. If a tool returns an error, explain it briefly and do not retry with guessed values.
6. For greetings or general questions answer briefly and mention that you can list, show, create, update, delete and email invoices.`
