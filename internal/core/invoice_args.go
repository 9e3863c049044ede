package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like a plain mailbox address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeRef trims whitespace and a leading "#" from an invoice reference.
// Users and models write "#1037", "Invoice 1037" and "1037" interchangeably.
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if len(ref) >= len("invoice ") && strings.EqualFold(ref[:len("invoice ")], "invoice ") {
		ref = strings.TrimSpace(ref[len("invoice "):])
	}
	ref = strings.TrimPrefix(ref, "#")
	return strings.TrimSpace(ref)
}

// GetInvoiceArgs are the parameters of the get tool.
type GetInvoiceArgs struct {
	InvoiceID string `json:"invoiceId" jsonschema_description:"Invoice ID or document number without the # sign, for example 145 or 1037"`
}

func (a *GetInvoiceArgs) Normalize() { a.InvoiceID = NormalizeRef(a.InvoiceID) }

func (a *GetInvoiceArgs) Validate() error {
	if a.InvoiceID == "" {
		return fmt.Errorf("%w: invoiceId is required", ErrValidation)
	}
	return nil
}

// ListInvoicesArgs are the parameters of the list tool.
type ListInvoicesArgs struct {
	Filter string `json:"filter,omitempty" jsonschema_description:"Optional filter: unpaid or paid or overdue or part of a customer name. Omit to list all invoices"`
}

func (a *ListInvoicesArgs) Normalize() { a.Filter = strings.TrimSpace(a.Filter) }

// CreateInvoiceArgs are the parameters of the create tool.
type CreateInvoiceArgs struct {
	CustomerName   string  `json:"customerName" jsonschema_description:"Name of an existing customer"`
	Amount         float64 `json:"amount" jsonschema_description:"Invoice amount in the company currency"`
	DueDate        string  `json:"dueDate,omitempty" jsonschema_description:"Due date as YYYY-MM-DD"`
	DocumentNumber string  `json:"documentNumber,omitempty" jsonschema_description:"Optional invoice document number"`
	Description    string  `json:"description,omitempty" jsonschema_description:"Optional line item description"`
}

func (a *CreateInvoiceArgs) Normalize() {
	a.CustomerName = strings.TrimSpace(a.CustomerName)
	a.DueDate = strings.TrimSpace(a.DueDate)
	a.DocumentNumber = NormalizeRef(a.DocumentNumber)
	a.Description = strings.TrimSpace(a.Description)
}

func (a *CreateInvoiceArgs) Validate() error {
	if a.CustomerName == "" {
		return fmt.Errorf("%w: customerName is required", ErrValidation)
	}
	if a.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	return validateDate("dueDate", a.DueDate)
}

// AmountDecimal returns the amount rounded to cents.
func (a *CreateInvoiceArgs) AmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(a.Amount).Round(2)
}

// UpdateInvoiceArgs are the parameters of the update tool. Absent fields are
// left unchanged.
type UpdateInvoiceArgs struct {
	InvoiceID    string   `json:"invoiceId" jsonschema_description:"Invoice ID or document number without the # sign"`
	Amount       *float64 `json:"amount,omitempty" jsonschema_description:"New invoice amount"`
	CustomerName *string  `json:"customerName,omitempty" jsonschema_description:"Name of an existing customer to bill instead"`
	DueDate      *string  `json:"dueDate,omitempty" jsonschema_description:"New due date as YYYY-MM-DD"`
	Description  *string  `json:"description,omitempty" jsonschema_description:"New line item description"`
	Paid         *bool    `json:"paid,omitempty" jsonschema_description:"true marks the invoice paid (balance 0) and false restores the full balance"`
	Balance      *float64 `json:"balance,omitempty" jsonschema_description:"Explicit remaining balance"`
	Status       *string  `json:"status,omitempty" jsonschema_description:"paid or unpaid"`
}

func (a *UpdateInvoiceArgs) Normalize() {
	a.InvoiceID = NormalizeRef(a.InvoiceID)
	trimPtr(a.CustomerName)
	trimPtr(a.DueDate)
	trimPtr(a.Description)
	if a.Status != nil {
		*a.Status = strings.ToLower(strings.TrimSpace(*a.Status))
		// status is an alias for the paid flag
		switch *a.Status {
		case "paid", "closed":
			a.Paid = boolPtr(true)
		case "unpaid", "open", "pending", "outstanding":
			a.Paid = boolPtr(false)
		}
	}
}

func (a *UpdateInvoiceArgs) Validate() error {
	if a.InvoiceID == "" {
		return fmt.Errorf("%w: invoiceId is required", ErrValidation)
	}
	if a.Amount == nil && a.CustomerName == nil && a.DueDate == nil && a.Description == nil &&
		a.Paid == nil && a.Balance == nil && a.Status == nil {
		return fmt.Errorf("%w: no fields to update", ErrValidation)
	}
	if a.Amount != nil && *a.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if a.Balance != nil && *a.Balance < 0 {
		return fmt.Errorf("%w: balance cannot be negative", ErrValidation)
	}
	if a.CustomerName != nil && *a.CustomerName == "" {
		return fmt.Errorf("%w: customerName cannot be empty", ErrValidation)
	}
	if a.Status != nil && a.Paid == nil {
		return fmt.Errorf("%w: unknown status %q, use paid or unpaid", ErrValidation, *a.Status)
	}
	if a.DueDate != nil {
		return validateDate("dueDate", *a.DueDate)
	}
	return nil
}

// DeleteInvoiceArgs are the parameters of the delete tool.
type DeleteInvoiceArgs struct {
	InvoiceID string `json:"invoiceId" jsonschema_description:"Invoice ID or document number without the # sign"`
}

func (a *DeleteInvoiceArgs) Normalize() { a.InvoiceID = NormalizeRef(a.InvoiceID) }

func (a *DeleteInvoiceArgs) Validate() error {
	if a.InvoiceID == "" {
		return fmt.Errorf("%w: invoiceId is required", ErrValidation)
	}
	return nil
}

// SendInvoiceArgs are the parameters of the sendDocument tool.
type SendInvoiceArgs struct {
	InvoiceID string `json:"invoiceId" jsonschema_description:"Invoice ID or document number without the # sign"`
	Email     string `json:"email" jsonschema_description:"Recipient email address"`
}

func (a *SendInvoiceArgs) Normalize() {
	a.InvoiceID = NormalizeRef(a.InvoiceID)
	a.Email = strings.TrimSpace(a.Email)
}

func (a *SendInvoiceArgs) Validate() error {
	if a.InvoiceID == "" {
		return fmt.Errorf("%w: invoiceId is required", ErrValidation)
	}
	if !ValidEmail(a.Email) {
		return fmt.Errorf("%w %q", ErrInvalidEmail, a.Email)
	}
	return nil
}

func validateDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, v); err != nil {
		return fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", ErrValidation, field, v)
	}
	return nil
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func boolPtr(b bool) *bool { return &b }
