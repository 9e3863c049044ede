// Package mcpserver exposes the invoice tools over the Model Context
// Protocol so desktop assistants can drive them directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported in the MCP handshake.
const Version = "0.1.0"

// ToolSource returns the tool set for one call. It is consulted on every
// call so that refreshed or reconnected credentials apply to a long-running
// server.
type ToolSource func(ctx context.Context) (*ai.ToolRegistry, error)

// Static returns a source that always yields tools.
func Static(tools *ai.ToolRegistry) ToolSource {
	return func(context.Context) (*ai.ToolRegistry, error) { return tools, nil }
}

// New builds a server whose tools delegate to the registry returned by
// source. Names, descriptions and schemas come from the invoice tool
// definitions so both front ends stay in step.
func New(source ToolSource, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "invoice-agent",
		Version: Version,
	}, nil)

	defs := ai.NewInvoiceTools(nil)
	add[core.GetInvoiceArgs](server, defs, source, ai.ToolGet, logger)
	add[core.ListInvoicesArgs](server, defs, source, ai.ToolList, logger)
	add[core.CreateInvoiceArgs](server, defs, source, ai.ToolCreate, logger)
	add[core.UpdateInvoiceArgs](server, defs, source, ai.ToolUpdate, logger)
	add[core.DeleteInvoiceArgs](server, defs, source, ai.ToolDelete, logger)
	add[core.SendInvoiceArgs](server, defs, source, ai.ToolSendDocument, logger)
	return server
}

// Serve runs the server on stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, source ToolSource, logger *slog.Logger) error {
	return New(source, logger).Run(ctx, &mcp.StdioTransport{})
}

func add[In any](server *mcp.Server, defs *ai.ToolRegistry, source ToolSource, name string, logger *slog.Logger) {
	def, ok := defs.Get(name)
	if !ok {
		return
	}
	schema, err := inputSchema(def.InputSchema)
	if err != nil {
		logger.Error("mcp tool schema", "tool", name, "error", err)
		return
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: schema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, nil, err
		}
		var result core.ToolResult
		if tools, err := source(ctx); err != nil {
			result = core.ErrorResult(err)
		} else {
			result = tools.Execute(ctx, name, raw)
		}
		if result.Failed() {
			logger.WarnContext(ctx, "mcp tool failed", "tool", name, "kind", result.Kind, "error", result.Error)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: ai.ModelOutput(result)}},
			IsError: result.Failed(),
		}, nil, nil
	})
}

// inputSchema converts a registry schema so MCP clients validate against
// the same document the model sees.
func inputSchema(m map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
