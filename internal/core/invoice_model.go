package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by the provider and the UI.
const DateLayout = "2006-01-02"

// Invoice is the UI-facing view of a provider invoice. The provider is the
// source of truth; nothing here is persisted locally.
type Invoice struct {
	ID              string              `json:"id"`
	DocumentNumber  string              `json:"documentNumber,omitempty"`
	CustomerName    string              `json:"customerName"`
	CustomerRef     string              `json:"customerRef,omitempty"`
	TransactionDate string              `json:"transactionDate,omitempty"`
	DueDate         string              `json:"dueDate,omitempty"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	Balance         decimal.NullDecimal `json:"balance"`
	LineItems       []LineItem          `json:"lineItems,omitempty"`
	EmailStatus     string              `json:"emailStatus,omitempty"`
	BillEmail       string              `json:"billEmail,omitempty"`

	// SyncToken is only valid for the read that produced it.
	SyncToken string `json:"syncToken,omitempty"`
}

// LineItem is one display line of an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	// ItemRef is the provider product/service id backing the line.
	ItemRef string `json:"itemRef,omitempty"`
}

// Unpaid reports whether the invoice carries a positive balance.
func (inv *Invoice) Unpaid() bool {
	return inv.Balance.Valid && inv.Balance.Decimal.IsPositive()
}

// Paid is the complement of Unpaid: balance absent or zero.
func (inv *Invoice) Paid() bool {
	return !inv.Unpaid()
}

// Overdue reports whether the due date is before today and money is owed.
func (inv *Invoice) Overdue(now time.Time) bool {
	if !inv.Unpaid() || inv.DueDate == "" {
		return false
	}
	due, err := time.ParseInLocation(DateLayout, inv.DueDate, now.Location())
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return due.Before(today)
}

// Label is the human-facing reference: the document number when present,
// otherwise the provider id.
func (inv *Invoice) Label() string {
	if inv.DocumentNumber != "" {
		return inv.DocumentNumber
	}
	return inv.ID
}

// BalanceOrZero returns the balance, treating an absent balance as zero.
func (inv *Invoice) BalanceOrZero() decimal.Decimal {
	if !inv.Balance.Valid {
		return decimal.Zero
	}
	return inv.Balance.Decimal
}

// InvoiceQuery is the criteria passed to Gateway.QueryInvoices.
type InvoiceQuery struct {
	MaxResults    int
	StartPosition int
}

// InvoiceChanges is a sparse update. Nil fields are left untouched downstream.
type InvoiceChanges struct {
	ID           string
	SyncToken    string
	CustomerRef  *string
	CustomerName *string
	DueDate      *string
	Balance      *decimal.Decimal
	// LineItems, when non-nil, replaces the full line list.
	LineItems []LineItem
}

// CompanyInfo is the tenant summary returned by the provider.
type CompanyInfo struct {
	RealmID     string `json:"realmId"`
	CompanyName string `json:"companyName"`
	LegalName   string `json:"legalName,omitempty"`
	Country     string `json:"country,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Gateway is the typed contract over the accounting provider. Implementations
// return errors wrapping the sentinels in errors.go.
type Gateway interface {
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	QueryInvoices(ctx context.Context, q InvoiceQuery) ([]Invoice, error)
	CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error)
	UpdateInvoice(ctx context.Context, changes InvoiceChanges) (*Invoice, error)
	DeleteInvoice(ctx context.Context, id, syncToken string) error
	SendInvoice(ctx context.Context, id, email string) (*Invoice, error)
	CompanyInfo(ctx context.Context) (*CompanyInfo, error)
}
