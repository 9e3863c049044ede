package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o"

// OpenAIModel implements Model with the OpenAI Responses API. Tool outputs
// are chained to the previous response by id, so no history is resent.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel builds a model client. Extra options are passed to the SDK,
// which lets tests point it at a fake server.
func NewOpenAIModel(apiKey, model string, opts ...option.RequestOption) *OpenAIModel {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIModel{client: &client, model: model}
}

func (m *OpenAIModel) Step(ctx context.Context, req StepRequest) (*StepResponse, error) {
	params := responses.ResponseNewParams{
		Model:        shared.ResponsesModel(m.model),
		Instructions: param.NewOpt(req.Instructions),
	}

	switch {
	case len(req.Outputs) > 0:
		items := make(responses.ResponseInputParam, 0, len(req.Outputs))
		for _, o := range req.Outputs {
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(o.CallID, o.Output))
		}
		params.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: items}
	case req.Input != "":
		params.Input = responses.ResponseNewParamsInputUnion{OfString: param.NewOpt(req.Input)}
	default:
		return nil, errors.New("step has neither input nor tool outputs")
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = param.NewOpt(req.PreviousResponseID)
	}

	if req.Tools != nil && req.Policy != PolicyNone {
		params.Tools = req.Tools.ToOpenAITools()
		params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: param.NewOpt(toolChoice(req.Policy)),
		}
		params.ParallelToolCalls = param.NewOpt(false)
	}

	resp, err := m.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	out := &StepResponse{ResponseID: resp.ID, Text: resp.OutputText()}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		out.Calls = append(out.Calls, ToolCall{CallID: fc.CallID, Name: fc.Name, Arguments: fc.Arguments})
	}
	return out, nil
}

func toolChoice(p ToolPolicy) responses.ToolChoiceOptions {
	switch p {
	case PolicyForced:
		return responses.ToolChoiceOptionsRequired
	case PolicyNone:
		return responses.ToolChoiceOptionsNone
	default:
		return responses.ToolChoiceOptionsAuto
	}
}
