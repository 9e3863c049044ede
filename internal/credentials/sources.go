package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"time"
)

// CookieName holds the JSON-encoded token set written by the OAuth callback.
const CookieName = "quickbooks_tokens"

// CookieTTL is how long the token cookie lives in the browser.
const CookieTTL = 7 * 24 * time.Hour

// FromCookie reads credentials from the request's token cookie. A missing or
// malformed cookie yields no credentials.
func FromCookie(r *http.Request) Provider {
	return ProviderFunc(func(context.Context) (*Credentials, error) {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			return nil, nil
		}
		raw := c.Value
		if unescaped, err := url.QueryUnescape(raw); err == nil {
			raw = unescaped
		}
		var creds Credentials
		if err := json.Unmarshal([]byte(raw), &creds); err != nil {
			return nil, nil
		}
		if !creds.Usable() {
			return nil, nil
		}
		return &creds, nil
	})
}

// Cookie encodes creds as the token cookie.
func Cookie(creds *Credentials, secure bool) (*http.Cookie, error) {
	buf, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(string(buf)),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(CookieTTL.Seconds()),
	}, nil
}

// ExpiredCookie clears the token cookie.
func ExpiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}

// Env variables read by FromEnv.
const (
	EnvAccessToken  = "QUICKBOOKS_ACCESS_TOKEN"
	EnvRefreshToken = "QUICKBOOKS_REFRESH_TOKEN"
	EnvRealmID      = "QUICKBOOKS_REALM_ID"
)

// FromEnv reads credentials from the process environment. Used by the CLI
// and the MCP server, which have no browser session.
func FromEnv() Provider {
	return ProviderFunc(func(context.Context) (*Credentials, error) {
		creds := &Credentials{
			AccessToken:  os.Getenv(EnvAccessToken),
			RefreshToken: os.Getenv(EnvRefreshToken),
			TenantID:     os.Getenv(EnvRealmID),
		}
		if !creds.Usable() {
			return nil, nil
		}
		return creds, nil
	})
}
