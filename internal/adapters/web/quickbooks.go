package web

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"time"

	"invoice-agent/internal/credentials"

	"github.com/google/uuid"
)

const stateCookie = "quickbooks_oauth_state"

// quickbooksLogin handles GET /api/auth/quickbooks/login: it stores a random
// state in a short-lived cookie and redirects to the Intuit consent page.
func (h *Handler) quickbooksLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, r, credentials.ErrOAuthNotConfigured.Error(), "NOT_CONFIGURED", http.StatusServiceUnavailable)
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/quickbooks",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// quickbooksCallback handles GET /api/auth/quickbooks/callback. Outcomes are
// reported to the chat page through query parameters.
func (h *Handler) quickbooksCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, r, credentials.ErrOAuthNotConfigured.Error(), "NOT_CONFIGURED", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/auth/quickbooks", MaxAge: -1, HttpOnly: true, Secure: h.secure})

	if e := q.Get("error"); e != "" {
		redirectWithError(w, r, "authorization was declined: "+e)
		return
	}
	saved, err := r.Cookie(stateCookie)
	if err != nil || saved.Value == "" || subtle.ConstantTimeCompare([]byte(saved.Value), []byte(q.Get("state"))) != 1 {
		redirectWithError(w, r, "invalid OAuth state, please try connecting again")
		return
	}

	creds, err := h.oauth.Exchange(r.Context(), q.Get("code"), q.Get("realmId"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "quickbooks token exchange failed", "error", err)
		redirectWithError(w, r, "could not complete the QuickBooks connection")
		return
	}
	if err := h.persist(r.Context(), w, userID(r), creds); err != nil {
		h.logger.ErrorContext(r.Context(), "persist quickbooks tokens", "error", err)
		redirectWithError(w, r, "could not save the QuickBooks connection")
		return
	}
	h.logger.InfoContext(r.Context(), "quickbooks connected", "realm_id", creds.TenantID)
	http.Redirect(w, r, "/?quickbooks=connected", http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?quickbooks_error="+url.QueryEscape(msg), http.StatusFound)
}

// quickbooksLogout handles POST /api/auth/quickbooks/logout.
func (h *Handler) quickbooksLogout(w http.ResponseWriter, r *http.Request) {
	if uid := userID(r); h.store != nil && uid != "" {
		if err := h.store.Delete(r.Context(), uid); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	http.SetCookie(w, credentials.ExpiredCookie(h.secure))
	w.WriteHeader(http.StatusNoContent)
}

// authCheck handles GET /api/auth/check: whether usable credentials exist.
func (h *Handler) authCheck(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentialsFor(w, r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	type response struct {
		Authenticated bool   `json:"authenticated"`
		RealmID       string `json:"realmId,omitempty"`
	}
	if !creds.Usable() {
		writeJSON(w, response{})
		return
	}
	writeJSON(w, response{Authenticated: true, RealmID: creds.TenantID})
}

// companyInfo handles GET /api/quickbooks/company-info.
func (h *Handler) companyInfo(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentialsFor(w, r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	info, err := h.svc.CompanyInfo(r.Context(), creds)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, info)
}
