// Package repl is the interactive terminal front end. Plain text goes through
// the chat turn pipeline; slash commands call the invoice tools directly.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"
)

var errExit = errors.New("exit")

// Session holds the invoices panel between turns.
type Session struct {
	svc     app.ApplicationService
	creds   *credentials.Credentials
	reader  *bufio.Reader
	out     io.Writer
	display app.Display
}

// NewSession creates a session reading commands from in and writing to out.
// creds may be nil; operational requests then fail with a connect hint.
func NewSession(svc app.ApplicationService, creds *credentials.Credentials, in io.Reader, out io.Writer) *Session {
	return &Session{svc: svc, creds: creds, reader: bufio.NewReader(in), out: out}
}

// Display returns the current invoices panel.
func (s *Session) Display() app.Display { return s.display }

// Run loops until /exit or end of input.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "Invoice Assistant")
	if s.creds.Usable() {
		fmt.Fprintf(s.out, "Connected to QuickBooks company %s.\n", s.creds.TenantID)
	} else {
		fmt.Fprintln(s.out, "Not connected to QuickBooks. Set QUICKBOOKS_ACCESS_TOKEN and QUICKBOOKS_REALM_ID to manage invoices.")
	}
	fmt.Fprintln(s.out, "Ask about your invoices, or use /help for commands.")
	fmt.Fprintln(s.out, strings.Repeat("-", 70))

	for {
		fmt.Fprint(s.out, "\n> ")
		input, err := s.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				return nil
			}
			continue
		}

		if strings.HasPrefix(input, "/") {
			if derr := s.dispatchSlash(ctx, input); derr != nil {
				if errors.Is(derr, errExit) {
					fmt.Fprintln(s.out, "Goodbye!")
					return nil
				}
				fmt.Fprintf(s.out, "Error: %v\n", derr)
			}
		} else {
			s.chat(ctx, input)
		}
		if err != nil {
			return nil
		}
	}
}

func (s *Session) chat(ctx context.Context, message string) {
	fmt.Fprintln(s.out, "[AI] Working...")
	res, err := s.svc.ProcessTurn(ctx, app.TurnRequest{
		Message:     message,
		Display:     s.display,
		Credentials: s.creds,
	})
	if err != nil {
		if errors.Is(err, core.ErrNotAuthenticated) {
			fmt.Fprintln(s.out, "QuickBooks is not connected. Provide an access token and realm id, then try again.")
			return
		}
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "\n[AI]: %s\n", res.Result.Text)
	s.apply(res.Result)
}

func (s *Session) apply(r app.NormalizedTurnResult) {
	if r.Display == nil || len(r.Ops) == 0 {
		return
	}
	s.display = *r.Display
	if sel := s.display.Selected(); sel != nil && len(r.Ops) == 1 && r.Ops[0].Kind == app.OpUpsert {
		printInvoiceDetail(s.out, sel)
		return
	}
	printInvoices(s.out, s.display)
}

func (s *Session) dispatchSlash(ctx context.Context, input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "invoices", "inv", "ls":
		printInvoices(s.out, s.display)

	case "show":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /show <number>")
			return nil
		}
		if inv := s.find(args[0]); inv != nil {
			s.display.SelectedID = inv.ID
			printInvoiceDetail(s.out, inv)
			return nil
		}
		return s.execute(ctx, ai.ToolGet, core.GetInvoiceArgs{InvoiceID: args[0]})

	case "new-invoice", "new":
		return s.newInvoiceWizard(ctx)

	case "send":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: /send <number> <email>")
			return nil
		}
		return s.execute(ctx, ai.ToolSendDocument, core.SendInvoiceArgs{InvoiceID: s.resolve(args[0]), Email: args[1]})

	case "delete", "del":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /delete <number>")
			return nil
		}
		if !s.confirm(fmt.Sprintf("Delete invoice #%s? (y/n): ", core.NormalizeRef(args[0]))) {
			fmt.Fprintln(s.out, "Cancelled.")
			return nil
		}
		return s.execute(ctx, ai.ToolDelete, core.DeleteInvoiceArgs{InvoiceID: s.resolve(args[0])})

	case "company":
		info, err := s.svc.CompanyInfo(ctx, s.creds)
		if err != nil {
			return err
		}
		printCompany(s.out, info)

	case "clear":
		s.display = app.Display{}
		fmt.Fprintln(s.out, "Panel cleared.")

	case "help", "h":
		printHelp(s.out)

	case "exit", "quit", "e", "q":
		return errExit

	default:
		fmt.Fprintf(s.out, "Unknown command: /%s  (type /help for all commands)\n", cmd)
	}
	return nil
}

// execute runs one tool outside the model and reports it the same way a
// chat turn would.
func (s *Session) execute(ctx context.Context, tool string, args any) error {
	tools, err := s.svc.ToolsFor(s.creds)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	result := tools.Execute(ctx, tool, raw)
	norm := app.Normalize(&ai.Transcript{Steps: []ai.ToolInvocation{{Name: tool, Arguments: raw, Result: result}}})
	if len(norm.Ops) > 0 {
		d := s.display.Apply(norm.Ops)
		norm.Display = &d
	}
	fmt.Fprintln(s.out, norm.Text)
	s.apply(norm)
	return nil
}

// find looks up ref among the loaded invoices by id or document number.
func (s *Session) find(ref string) *core.Invoice {
	ref = core.NormalizeRef(ref)
	for i := range s.display.Invoices {
		inv := &s.display.Invoices[i]
		if inv.ID == ref || inv.DocumentNumber == ref {
			return inv
		}
	}
	return nil
}

// resolve maps a document number shown in the panel to its provider id.
func (s *Session) resolve(ref string) string {
	if inv := s.find(ref); inv != nil {
		return inv.ID
	}
	return core.NormalizeRef(ref)
}

func (s *Session) prompt(label string) string {
	fmt.Fprint(s.out, label)
	line, _ := s.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func (s *Session) confirm(label string) bool {
	choice := strings.ToLower(s.prompt(label))
	return choice == "y" || choice == "yes"
}
