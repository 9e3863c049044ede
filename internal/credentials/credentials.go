// Package credentials resolves the bearer token and company (realm) id used
// to call the accounting provider. Absence of credentials is a normal state:
// providers return (nil, nil) rather than an error.
package credentials

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Credentials is a read-only snapshot handed to the gateway for one request.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TenantID     string    `json:"realmId"`
	Expiry       time.Time `json:"expires_at,omitzero"`
}

// Usable reports whether the snapshot can authorize a call right now.
func (c *Credentials) Usable() bool {
	return c != nil && c.AccessToken != "" && c.TenantID != ""
}

// Expired reports whether the access token is known to be past its expiry.
// A zero expiry is treated as unknown, not expired.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry.Add(-expiryLeeway))
}

// Token converts the snapshot to an oauth2 token.
func (c *Credentials) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// FromToken builds credentials for realmID from an oauth2 token.
func FromToken(tok *oauth2.Token, realmID string) *Credentials {
	return &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TenantID:     realmID,
		Expiry:       tok.Expiry,
	}
}

const expiryLeeway = 30 * time.Second

// Provider resolves credentials for the current request.
type Provider interface {
	// Credentials returns (nil, nil) when none are available. Errors are
	// reserved for infrastructure failures such as an unreachable store.
	Credentials(ctx context.Context) (*Credentials, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (*Credentials, error)

func (f ProviderFunc) Credentials(ctx context.Context) (*Credentials, error) { return f(ctx) }

// Chain returns the first usable credentials from its providers in order.
type Chain []Provider

func (c Chain) Credentials(ctx context.Context) (*Credentials, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		creds, err := p.Credentials(ctx)
		if err != nil {
			return nil, err
		}
		if creds.Usable() {
			return creds, nil
		}
	}
	return nil, nil
}

// Static always returns the same snapshot. Useful in tests and the CLI.
func Static(creds *Credentials) Provider {
	return ProviderFunc(func(context.Context) (*Credentials, error) {
		if !creds.Usable() {
			return nil, nil
		}
		cp := *creds
		return &cp, nil
	})
}
