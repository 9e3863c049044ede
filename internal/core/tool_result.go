package core

// ToolResult is the outcome of one tool execution: exactly one of the
// success shapes, or Error with its Kind. Executors never surface failures
// any other way.
type ToolResult struct {
	Invoice  *Invoice  `json:"invoice,omitempty"`
	Invoices []Invoice `json:"invoices,omitempty"`
	Count    int       `json:"count,omitempty"`
	Filter   string    `json:"filter,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Deleted  bool      `json:"deleted,omitempty"`
	SentTo   string    `json:"sentTo,omitempty"`

	Error string `json:"error,omitempty"`
	Kind  Kind   `json:"kind,omitempty"`
}

// Failed reports whether the result carries an error.
func (r *ToolResult) Failed() bool {
	return r.Error != ""
}

// ErrorResult converts err into the structured error shape.
func ErrorResult(err error) ToolResult {
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return ToolResult{Error: msg, Kind: KindOf(err)}
}
