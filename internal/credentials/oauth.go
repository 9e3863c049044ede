package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Intuit OAuth 2.0 endpoints and the accounting scope.
const (
	AuthURL         = "https://appcenter.intuit.com/connect/oauth2"
	TokenURL        = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	AccountingScope = "com.intuit.quickbooks.accounting"
)

// ErrOAuthNotConfigured is returned when client id or secret is missing.
var ErrOAuthNotConfigured = errors.New("QuickBooks OAuth is not configured")

// OAuth performs the authorization-code flow and token refresh.
type OAuth struct {
	config *oauth2.Config
}

// NewOAuth builds an OAuth flow. Endpoint overrides are for tests.
func NewOAuth(clientID, clientSecret, redirectURL string, endpoint *oauth2.Endpoint) (*OAuth, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrOAuthNotConfigured
	}
	ep := oauth2.Endpoint{AuthURL: AuthURL, TokenURL: TokenURL, AuthStyle: oauth2.AuthStyleInHeader}
	if endpoint != nil {
		ep = *endpoint
	}
	return &OAuth{config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{AccountingScope},
		Endpoint:     ep,
	}}, nil
}

// AuthCodeURL returns the consent page URL carrying state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for credentials bound to realmID.
func (o *OAuth) Exchange(ctx context.Context, code, realmID string) (*Credentials, error) {
	if code == "" || realmID == "" {
		return nil, errors.New("authorization code and realmId are required")
	}
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return FromToken(tok, realmID), nil
}

// Refresh obtains a new access token using the refresh token in creds.
func (o *OAuth) Refresh(ctx context.Context, creds *Credentials) (*Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, errors.New("no refresh token available")
	}
	stale := creds.Token()
	// force the token source to refresh
	stale.Expiry = time.Unix(1, 0)
	tok, err := o.config.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	return FromToken(tok, creds.TenantID), nil
}

// Refreshing wraps p so expired snapshots are refreshed before use. save,
// when non-nil, persists the refreshed credentials. A failed refresh is
// reported as absence so callers prompt the user to reconnect.
func Refreshing(p Provider, o *OAuth, save func(context.Context, *Credentials) error, now func() time.Time) Provider {
	if now == nil {
		now = time.Now
	}
	return ProviderFunc(func(ctx context.Context) (*Credentials, error) {
		creds, err := p.Credentials(ctx)
		if err != nil || creds == nil || o == nil || !creds.Expired(now()) {
			return creds, err
		}
		fresh, err := o.Refresh(ctx, creds)
		if err != nil {
			return nil, nil
		}
		if save != nil {
			if err := save(ctx, fresh); err != nil {
				return nil, err
			}
		}
		return fresh, nil
	})
}
