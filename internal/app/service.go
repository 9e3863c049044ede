package app

import (
	"context"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"
)

// ApplicationService is the single interface all adapters (web, REPL, CLI,
// MCP) call. Implementations contain no presentation logic.
type ApplicationService interface {
	// ProcessTurn classifies the message, runs the tool-calling loop under
	// the turn timeout and returns the normalized result with the supplied
	// display updated. An operational turn without usable credentials fails
	// with core.ErrNotAuthenticated; a timed out turn is not an error.
	ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)

	// CompanyInfo returns the connected company, proving the credentials work.
	CompanyInfo(ctx context.Context, creds *credentials.Credentials) (*core.CompanyInfo, error)

	// ToolsFor builds the invoice tool registry bound to creds.
	ToolsFor(creds *credentials.Credentials) (*ai.ToolRegistry, error)

	// ClassifyMessage exposes the routing decision for a message.
	ClassifyMessage(text string) ai.Classification
}
