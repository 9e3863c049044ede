// Package quickbooks is the accounting gateway: typed invoice operations over
// the QuickBooks Online v3 REST API.
package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"
)

const (
	SandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionBaseURL = "https://quickbooks.api.intuit.com"

	DefaultMinorVersion = "75"

	// DefaultItemRef is the "Services" item present in every new company.
	DefaultItemRef = "1"

	maxResponseBytes = 10 << 20
)

// BaseURLFor returns the API host for environment ("production" or anything
// else for sandbox).
func BaseURLFor(environment string) string {
	if environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// Client implements core.Gateway for one set of credentials. Build a new
// Client per request; never share one across users.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	realmID      string
	accessToken  string
	minorVersion string
	itemRef      string
	logger       *slog.Logger
}

var _ core.Gateway = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithBaseURL(u string) Option           { return func(c *Client) { c.baseURL = u } }
func WithMinorVersion(v string) Option      { return func(c *Client) { c.minorVersion = v } }
func WithDefaultItem(id string) Option      { return func(c *Client) { c.itemRef = id } }
func WithLogger(l *slog.Logger) Option      { return func(c *Client) { c.logger = l } }

// New builds a Client from a credentials snapshot. It fails with
// core.ErrNotAuthenticated when the snapshot cannot authorize calls.
func New(creds *credentials.Credentials, opts ...Option) (*Client, error) {
	if !creds.Usable() {
		return nil, core.ErrNotAuthenticated
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: 45 * time.Second},
		baseURL:      SandboxBaseURL,
		realmID:      creds.TenantID,
		accessToken:  creds.AccessToken,
		minorVersion: DefaultMinorVersion,
		itemRef:      DefaultItemRef,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetInvoice handles GET /invoice/{id}.
func (c *Client) GetInvoice(ctx context.Context, id string) (*core.Invoice, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/invoice/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return pickInvoice(&env)
}

// QueryInvoices handles GET /query with a bounded SELECT.
func (c *Client) QueryInvoices(ctx context.Context, q core.InvoiceQuery) ([]core.Invoice, error) {
	limit := q.MaxResults
	if limit <= 0 || limit > core.MaxScan {
		limit = core.MaxScan
	}
	start := q.StartPosition
	if start <= 0 {
		start = 1
	}
	stmt := fmt.Sprintf("SELECT * FROM Invoice STARTPOSITION %d MAXRESULTS %d", start, limit)

	var env envelope
	if err := c.do(ctx, http.MethodGet, "/query", url.Values{"query": {stmt}}, nil, &env); err != nil {
		return nil, err
	}
	if env.QueryResponse == nil {
		return []core.Invoice{}, nil
	}
	out := make([]core.Invoice, 0, len(env.QueryResponse.Invoice))
	for i := range env.QueryResponse.Invoice {
		out = append(out, env.QueryResponse.Invoice[i].toCore())
	}
	return out, nil
}

// CreateInvoice handles POST /invoice with a full payload.
func (c *Client) CreateInvoice(ctx context.Context, inv *core.Invoice) (*core.Invoice, error) {
	payload := invoice{
		DocNumber:   inv.DocumentNumber,
		TxnDate:     inv.TransactionDate,
		DueDate:     inv.DueDate,
		CustomerRef: &ref{Value: inv.CustomerRef, Name: inv.CustomerName},
		Line:        linesFromCore(inv.LineItems, c.itemRef),
	}
	if inv.BillEmail != "" {
		payload.BillEmail = &emailAddress{Address: inv.BillEmail}
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, "/invoice", nil, payload, &env); err != nil {
		return nil, err
	}
	return pickInvoice(&env)
}

// UpdateInvoice handles POST /invoice as a sparse update carrying Id and
// SyncToken.
func (c *Client) UpdateInvoice(ctx context.Context, ch core.InvoiceChanges) (*core.Invoice, error) {
	payload := invoice{ID: ch.ID, SyncToken: ch.SyncToken, Sparse: true}
	if ch.CustomerRef != nil {
		payload.CustomerRef = &ref{Value: *ch.CustomerRef}
		if ch.CustomerName != nil {
			payload.CustomerRef.Name = *ch.CustomerName
		}
	}
	if ch.DueDate != nil {
		payload.DueDate = *ch.DueDate
	}
	if ch.Balance != nil {
		payload.Balance = newMoney(*ch.Balance)
	}
	if ch.LineItems != nil {
		payload.Line = linesFromCore(ch.LineItems, c.itemRef)
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, "/invoice", nil, payload, &env); err != nil {
		return nil, err
	}
	return pickInvoice(&env)
}

// DeleteInvoice handles POST /invoice?operation=delete.
func (c *Client) DeleteInvoice(ctx context.Context, id, syncToken string) error {
	body := struct {
		ID        string `json:"Id"`
		SyncToken string `json:"SyncToken"`
	}{ID: id, SyncToken: syncToken}
	return c.do(ctx, http.MethodPost, "/invoice", url.Values{"operation": {"delete"}}, body, nil)
}

// SendInvoice handles POST /invoice/{id}/send?sendTo={email}.
func (c *Client) SendInvoice(ctx context.Context, id, email string) (*core.Invoice, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/invoice/"+url.PathEscape(id)+"/send", url.Values{"sendTo": {email}}, nil, &env); err != nil {
		return nil, err
	}
	if env.Invoice == nil {
		return nil, nil
	}
	inv := env.Invoice.toCore()
	return &inv, nil
}

// CompanyInfo handles GET /companyinfo/{realmId}.
func (c *Client) CompanyInfo(ctx context.Context) (*core.CompanyInfo, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/companyinfo/"+url.PathEscape(c.realmID), nil, nil, &env); err != nil {
		return nil, err
	}
	if env.CompanyInfo == nil {
		return nil, &FaultError{Message: "company info missing from response", kind: core.ErrProvider}
	}
	info := &core.CompanyInfo{
		RealmID:     c.realmID,
		CompanyName: env.CompanyInfo.CompanyName,
		LegalName:   env.CompanyInfo.LegalName,
		Country:     env.CompanyInfo.Country,
	}
	if env.CompanyInfo.Email != nil {
		info.Email = env.CompanyInfo.Email.Address
	}
	return info, nil
}

// ── private helpers ──────────────────────────────────────────────────────────

// do performs one call. It never retries.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if c.minorVersion != "" {
		query.Set("minorversion", c.minorVersion)
	}
	endpoint := c.baseURL + "/v3/company/" + url.PathEscape(c.realmID) + path + "?" + query.Encode()

	var reader io.Reader
	contentType := "application/octet-stream"
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(buf)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.DebugContext(ctx, "quickbooks call abandoned", "method", method, "path", path, "error", ctxErr)
			return contextFault(ctxErr)
		}
		return transportFault(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFault(err)
	}

	c.logger.DebugContext(ctx, "quickbooks call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"intuit_tid", resp.Header.Get("intuit_tid"),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return faultFromResponse(resp.StatusCode, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var probe struct {
		Fault *fault `json:"Fault"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Fault != nil && len(probe.Fault.Errors) > 0 {
		return faultFromResponse(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &FaultError{
			Status:  resp.StatusCode,
			Message: "unreadable response from QuickBooks: " + err.Error(),
			kind:    core.ErrProvider,
		}
	}
	return nil
}

// pickInvoice reconciles the single-entity and query envelope shapes.
func pickInvoice(env *envelope) (*core.Invoice, error) {
	var src *invoice
	switch {
	case env.Invoice != nil:
		src = env.Invoice
	case env.QueryResponse != nil && len(env.QueryResponse.Invoice) > 0:
		src = &env.QueryResponse.Invoice[0]
	default:
		return nil, &FaultError{Message: "invoice missing from response", kind: core.ErrNotFound}
	}
	inv := src.toCore()
	return &inv, nil
}

// IsFault reports whether err came from the provider and returns it.
func IsFault(err error) (*FaultError, bool) {
	var fe *FaultError
	ok := errors.As(err, &fe)
	return fe, ok
}
