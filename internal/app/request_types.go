package app

import "invoice-agent/internal/credentials"

// TurnRequest is the input for ProcessTurn.
type TurnRequest struct {
	Message string
	// Display is the client's current view; ops from this turn are applied to it.
	Display Display
	// Credentials is the snapshot read for this request. Nil means the user
	// has not connected a company.
	Credentials *credentials.Credentials
}
