package app

import "invoice-agent/internal/ai"

// TurnResult is returned by ProcessTurn.
type TurnResult struct {
	Result         NormalizedTurnResult
	Classification ai.Classification
	Transcript     *ai.Transcript
	// TimedOut is set when the caller stopped waiting. Result then carries
	// TimeoutMessage and no display ops.
	TimedOut bool
}

// TimeoutMessage is shown when a turn exceeds the turn timeout.
const TimeoutMessage = "Request timed out. QuickBooks operations can take up to a minute. Please try again or use a more specific query."
