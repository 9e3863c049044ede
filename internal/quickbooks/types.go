package quickbooks

import (
	"invoice-agent/internal/core"

	"github.com/shopspring/decimal"
)

// money is a decimal that marshals as a bare JSON number, which the
// provider requires. Unmarshalling accepts numbers and quoted strings.
type money struct {
	decimal.Decimal
}

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

func newMoney(d decimal.Decimal) *money {
	return &money{Decimal: d}
}

type ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type emailAddress struct {
	Address string `json:"Address,omitempty"`
}

type salesItemLineDetail struct {
	ItemRef *ref `json:"ItemRef,omitempty"`
}

const salesItemLine = "SalesItemLineDetail"

type line struct {
	ID                  string               `json:"Id,omitempty"`
	Description         string               `json:"Description,omitempty"`
	Amount              *money               `json:"Amount,omitempty"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *salesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

// invoice is the provider wire shape. Pointer fields distinguish "absent"
// from zero, which matters for Balance and for sparse updates.
type invoice struct {
	ID          string        `json:"Id,omitempty"`
	SyncToken   string        `json:"SyncToken,omitempty"`
	Sparse      bool          `json:"sparse,omitempty"`
	DocNumber   string        `json:"DocNumber,omitempty"`
	TxnDate     string        `json:"TxnDate,omitempty"`
	DueDate     string        `json:"DueDate,omitempty"`
	TotalAmt    *money        `json:"TotalAmt,omitempty"`
	Balance     *money        `json:"Balance,omitempty"`
	CustomerRef *ref          `json:"CustomerRef,omitempty"`
	Line        []line        `json:"Line,omitempty"`
	EmailStatus string        `json:"EmailStatus,omitempty"`
	BillEmail   *emailAddress `json:"BillEmail,omitempty"`
}

// envelope covers every response shape seen for invoice endpoints: the
// entity keyed by name, a query envelope, or a fault.
type envelope struct {
	Invoice       *invoice `json:"Invoice"`
	QueryResponse *struct {
		Invoice    []invoice `json:"Invoice"`
		MaxResults int       `json:"maxResults"`
	} `json:"QueryResponse"`
	CompanyInfo *companyInfo `json:"CompanyInfo"`
	Fault       *fault       `json:"Fault"`
}

type companyInfo struct {
	ID          string        `json:"Id"`
	CompanyName string        `json:"CompanyName"`
	LegalName   string        `json:"LegalName"`
	Country     string        `json:"Country"`
	Email       *emailAddress `json:"Email"`
}

type fault struct {
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"Message"`
		Detail  string `json:"Detail"`
		Code    string `json:"code"`
		Element string `json:"element"`
	} `json:"Error"`
}

func (inv *invoice) toCore() core.Invoice {
	out := core.Invoice{
		ID:              inv.ID,
		DocumentNumber:  inv.DocNumber,
		TransactionDate: inv.TxnDate,
		DueDate:         inv.DueDate,
		EmailStatus:     inv.EmailStatus,
		SyncToken:       inv.SyncToken,
	}
	if inv.CustomerRef != nil {
		out.CustomerRef = inv.CustomerRef.Value
		out.CustomerName = inv.CustomerRef.Name
	}
	if inv.TotalAmt != nil {
		out.TotalAmount = inv.TotalAmt.Decimal
	}
	if inv.Balance != nil {
		out.Balance = decimal.NewNullDecimal(inv.Balance.Decimal)
	}
	if inv.BillEmail != nil {
		out.BillEmail = inv.BillEmail.Address
	}
	for _, l := range inv.Line {
		if l.DetailType != salesItemLine {
			continue
		}
		item := core.LineItem{Description: l.Description}
		if l.Amount != nil {
			item.Amount = l.Amount.Decimal
		}
		if l.SalesItemLineDetail != nil && l.SalesItemLineDetail.ItemRef != nil {
			item.ItemRef = l.SalesItemLineDetail.ItemRef.Value
		}
		out.LineItems = append(out.LineItems, item)
	}
	return out
}

func linesFromCore(items []core.LineItem, defaultItem string) []line {
	out := make([]line, 0, len(items))
	for _, it := range items {
		itemRef := it.ItemRef
		if itemRef == "" {
			itemRef = defaultItem
		}
		out = append(out, line{
			Description:         it.Description,
			Amount:              newMoney(it.Amount),
			DetailType:          salesItemLine,
			SalesItemLineDetail: &salesItemLineDetail{ItemRef: &ref{Value: itemRef}},
		})
	}
	return out
}
