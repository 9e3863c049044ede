package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/core"

	"github.com/shopspring/decimal"
)

// OpKind names a change to the client-owned invoice display.
type OpKind string

const (
	// OpReplace swaps the whole displayed collection.
	OpReplace OpKind = "replace"
	// OpUpsert updates an invoice in place or prepends it, and selects it.
	OpUpsert OpKind = "upsert"
	// OpRemove drops an invoice and clears the selection if it was selected.
	OpRemove OpKind = "remove"
)

// DisplayOp is one instruction for the client display.
type DisplayOp struct {
	Kind     OpKind         `json:"kind"`
	Invoices []core.Invoice `json:"invoices,omitempty"`
	Invoice  *core.Invoice  `json:"invoice,omitempty"`
	ID       string         `json:"id,omitempty"`
}

// StepSummary is the user-facing line for one tool invocation.
type StepSummary struct {
	Tool    string    `json:"tool"`
	OK      bool      `json:"ok"`
	Kind    core.Kind `json:"kind,omitempty"`
	Message string    `json:"message"`
}

// NormalizedTurnResult is what a client renders for one turn.
type NormalizedTurnResult struct {
	Text    string        `json:"text"`
	Steps   []StepSummary `json:"steps,omitempty"`
	Ops     []DisplayOp   `json:"ops,omitempty"`
	Display *Display      `json:"display,omitempty"`
}

// NotUnderstoodMessage is used when a turn produced neither tool calls nor text.
const NotUnderstoodMessage = "Sorry, I didn't understand that. Try asking me to list, show, create, update, delete or email an invoice."

// Normalize turns a transcript into display text and display operations.
// It never fails: unexpected shapes degrade to text.
func Normalize(t *ai.Transcript) NormalizedTurnResult {
	if t == nil {
		return NormalizedTurnResult{Text: NotUnderstoodMessage}
	}

	var out NormalizedTurnResult
	for _, step := range t.Steps {
		line, op := normalizeStep(step)
		out.Steps = append(out.Steps, line)
		if op != nil {
			out.Ops = append(out.Ops, *op)
		}
	}

	switch len(out.Steps) {
	case 0:
		out.Text = strings.TrimSpace(t.Text)
		if records := ParseInvoicesFromText(t.Text); len(records) > 0 {
			out.Ops = append(out.Ops, DisplayOp{Kind: OpReplace, Invoices: records})
		}
		if out.Text == "" {
			out.Text = NotUnderstoodMessage
		}
	case 1:
		out.Text = out.Steps[0].Message
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "Completed %d steps:", len(out.Steps))
		for i, s := range out.Steps {
			fmt.Fprintf(&b, "\n%d. %s", i+1, s.Message)
		}
		out.Text = b.String()
	}
	return out
}

func normalizeStep(step ai.ToolInvocation) (StepSummary, *DisplayOp) {
	r := step.Result
	summary := StepSummary{Tool: step.Name, OK: !r.Failed()}
	if r.Failed() {
		summary.Kind = r.Kind
		summary.Message = errorLine(step)
		return summary, nil
	}

	ref := referenceOf(step)
	switch step.Name {
	case ai.ToolList:
		summary.Message = listLine(r)
		invoices := r.Invoices
		if invoices == nil {
			invoices = []core.Invoice{}
		}
		return summary, &DisplayOp{Kind: OpReplace, Invoices: invoices}
	case ai.ToolGet:
		summary.Message = fmt.Sprintf("Invoice #%s details loaded.", ref)
		return summary, upsert(r.Invoice)
	case ai.ToolCreate:
		summary.Message = fmt.Sprintf("Invoice #%s has been successfully created.", ref)
		return summary, upsert(r.Invoice)
	case ai.ToolUpdate:
		summary.Message = fmt.Sprintf("Invoice #%s has been successfully updated.", ref)
		return summary, upsert(r.Invoice)
	case ai.ToolDelete:
		summary.Message = fmt.Sprintf("Invoice #%s has been successfully deleted.", ref)
		id := argString(step.Arguments, "invoiceId")
		if r.Invoice != nil {
			id = r.Invoice.ID
		}
		return summary, &DisplayOp{Kind: OpRemove, ID: id}
	case ai.ToolSendDocument:
		to := r.SentTo
		if to == "" {
			to = argString(step.Arguments, "email")
		}
		summary.Message = fmt.Sprintf("Invoice #%s has been successfully emailed to %s.", ref, to)
		return summary, nil
	default:
		summary.Message = fmt.Sprintf("Completed %s.", step.Name)
		return summary, nil
	}
}

func upsert(inv *core.Invoice) *DisplayOp {
	if inv == nil || inv.ID == "" {
		return nil
	}
	return &DisplayOp{Kind: OpUpsert, Invoice: inv}
}

func listLine(r core.ToolResult) string {
	n := len(r.Invoices)
	f := strings.ToLower(strings.TrimSpace(r.Filter))
	var what string
	switch f {
	case "", "all":
		what = "invoice(s)"
	case "paid", "unpaid", "overdue":
		what = f + " invoice(s)"
	default:
		what = fmt.Sprintf("invoice(s) matching %q", r.Filter)
	}
	if n == 0 {
		return "No invoices found matching your criteria."
	}
	return fmt.Sprintf("Found %d %s. Check the invoices panel to view them.", n, what)
}

func errorLine(step ai.ToolInvocation) string {
	msg := singleLine(step.Result.Error)
	if msg == "" {
		msg = "unknown error"
	}
	lower := strings.ToLower(msg)
	notFound := strings.Contains(lower, "not found") || strings.Contains(lower, "inactive")

	switch {
	case step.Result.Kind == core.KindCustomerNotFound:
		name := argString(step.Arguments, "customerName")
		return fmt.Sprintf("I couldn't find a customer named %q. Invoices can only be created for existing customers.", name)
	case notFound:
		if ref := argString(step.Arguments, "invoiceId"); ref != "" {
			return fmt.Sprintf("Invoice #%s was not found. Check the number and try again.", core.NormalizeRef(ref))
		}
		return "Invoice not found."
	case step.Result.Kind == core.KindNotAuthenticated:
		return "QuickBooks is not connected. Please reconnect your account and try again."
	case step.Result.Kind == core.KindUnsupported:
		return unsupportedLine(step.Name)
	default:
		return fmt.Sprintf("Failed to %s invoice: %s", verb(step.Name), msg)
	}
}

func unsupportedLine(tool string) string {
	switch tool {
	case ai.ToolSendDocument:
		return "Emailing invoices isn't available for this QuickBooks company. Enable invoice email in QuickBooks, or send the invoice from QuickBooks directly."
	case ai.ToolDelete:
		return "Deleting invoices isn't available for this QuickBooks company. Void or delete the invoice in QuickBooks directly."
	default:
		return fmt.Sprintf("QuickBooks doesn't allow this company to %s invoices. Check the company's subscription and permissions in QuickBooks, then try again.", verb(tool))
	}
}

func verb(tool string) string {
	switch tool {
	case ai.ToolList:
		return "list"
	case ai.ToolGet:
		return "retrieve"
	case ai.ToolSendDocument:
		return "email"
	case "":
		return "process"
	default:
		return tool
	}
}

// referenceOf prefers the invoice's own label, falling back to the argument
// the model passed.
func referenceOf(step ai.ToolInvocation) string {
	if inv := step.Result.Invoice; inv != nil {
		if l := inv.Label(); l != "" {
			return l
		}
	}
	if ref := core.NormalizeRef(argString(step.Arguments, "invoiceId")); ref != "" {
		return ref
	}
	return "?"
}

func argString(raw json.RawMessage, key string) string {
	var m map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return ""
	}
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Display is the client-owned view state: the invoice collection and the
// active selection. Only DisplayOps change it.
type Display struct {
	Invoices   []core.Invoice `json:"invoices"`
	SelectedID string         `json:"selectedId,omitempty"`
}

// Apply applies ops in order and returns the resulting display. d is not
// modified.
func (d Display) Apply(ops []DisplayOp) Display {
	out := Display{Invoices: append([]core.Invoice(nil), d.Invoices...), SelectedID: d.SelectedID}
	for _, op := range ops {
		switch op.Kind {
		case OpReplace:
			out.Invoices = append([]core.Invoice(nil), op.Invoices...)
			if out.indexOf(out.SelectedID) < 0 {
				out.SelectedID = ""
			}
		case OpUpsert:
			if op.Invoice == nil {
				continue
			}
			if i := out.indexOf(op.Invoice.ID); i >= 0 {
				out.Invoices[i] = *op.Invoice
			} else {
				out.Invoices = append([]core.Invoice{*op.Invoice}, out.Invoices...)
			}
			out.SelectedID = op.Invoice.ID
		case OpRemove:
			if i := out.indexOf(op.ID); i >= 0 {
				out.Invoices = append(out.Invoices[:i], out.Invoices[i+1:]...)
			}
			if out.SelectedID == op.ID {
				out.SelectedID = ""
			}
		}
	}
	return out
}

// Selected returns the selected invoice, if any.
func (d Display) Selected() *core.Invoice {
	if i := d.indexOf(d.SelectedID); i >= 0 {
		return &d.Invoices[i]
	}
	return nil
}

func (d Display) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range d.Invoices {
		if d.Invoices[i].ID == id {
			return i
		}
	}
	return -1
}

// Labeled-field patterns for invoices narrated as text, e.g.
// "1. **Invoice ID:** 145 - **Customer:** Amy's Bird Sanctuary - **Total Amount:** $560".
var (
	recordStart  = regexp.MustCompile(`(?i)invoice id:`)
	fieldID      = regexp.MustCompile(`(?i)^invoice id:\s*#?([A-Za-z0-9-]+)`)
	fieldDoc     = regexp.MustCompile(`(?i)doc(?:ument)? number:\s*#?([A-Za-z0-9-]+)`)
	fieldCust    = regexp.MustCompile(`(?im)customer:\s*(.+?)\s*(?:\s-\s|$)`)
	fieldTxnDate = regexp.MustCompile(`(?im)(?:^|-)\s*date:\s*(\d{4}-\d{2}-\d{2})`)
	fieldDue     = regexp.MustCompile(`(?i)due date:\s*(\d{4}-\d{2}-\d{2})`)
	fieldTotal   = regexp.MustCompile(`(?i)total amount:\s*\$?\s*([\d,]+(?:\.\d+)?)`)
	fieldBalance = regexp.MustCompile(`(?i)balance:\s*\$?\s*([\d,]+(?:\.\d+)?)`)
)

// ParseInvoicesFromText extracts invoice records from labeled free text.
// Records without an id and a total amount are skipped.
func ParseInvoicesFromText(text string) []core.Invoice {
	clean := strings.ReplaceAll(text, "**", "")
	starts := recordStart.FindAllStringIndex(clean, -1)
	var out []core.Invoice
	for i, loc := range starts {
		end := len(clean)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		seg := clean[loc[0]:end]

		id := submatch(fieldID, seg)
		total, err := parseMoney(submatch(fieldTotal, seg))
		if id == "" || err != nil {
			continue
		}
		inv := core.Invoice{
			ID:              id,
			DocumentNumber:  submatch(fieldDoc, seg),
			CustomerName:    submatch(fieldCust, seg),
			TransactionDate: submatch(fieldTxnDate, seg),
			DueDate:         submatch(fieldDue, seg),
			TotalAmount:     total,
		}
		if bal, err := parseMoney(submatch(fieldBalance, seg)); err == nil {
			inv.Balance = decimal.NewNullDecimal(bal)
		}
		out = append(out, inv)
	}
	return out
}

func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var errNoAmount = errors.New("no amount")

func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, errNoAmount
	}
	return decimal.NewFromString(s)
}
