package web

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"invoice-agent/internal/app"
	"invoice-agent/internal/credentials"
	webui "invoice-agent/web"

	"github.com/go-chi/chi/v5"
)

// Config wires optional collaborators into the handler.
type Config struct {
	AllowedOrigins string
	JWTSecret      string
	// SecureCookies marks cookies Secure; disable only for plain-HTTP development.
	SecureCookies bool
	// OAuth enables the QuickBooks connect flow and token refresh.
	OAuth *credentials.OAuth
	// Store persists tokens per signed-in user.
	Store *credentials.Store
	// Fallback is consulted after the session and cookie, e.g. env tokens in development.
	Fallback credentials.Provider
	Logger   *slog.Logger
}

// Handler holds the ApplicationService, the chi router and credential sources.
type Handler struct {
	svc        app.ApplicationService
	router     chi.Router
	jwtSecret  string
	secure     bool
	oauth      *credentials.OAuth
	store      *credentials.Store
	fallback   credentials.Provider
	logger     *slog.Logger
	fileServer http.Handler
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, cfg Config) http.Handler {
	staticFS, err := fs.Sub(webui.Static, "static")
	if err != nil {
		panic("web/static embed sub-FS failed: " + err.Error())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &Handler{
		svc:        svc,
		jwtSecret:  cfg.JWTSecret,
		secure:     cfg.SecureCookies,
		oauth:      cfg.OAuth,
		store:      cfg.Store,
		fallback:   cfg.Fallback,
		logger:     cfg.Logger,
		fileServer: http.FileServer(http.FS(staticFS)),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.logger))
	r.Use(Recoverer(h.logger))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(h.OptionalAuth)

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── QuickBooks connection ────────────────────────────────────────────────
	r.Get("/api/auth/quickbooks/login", h.quickbooksLogin)
	r.Get("/api/auth/quickbooks/callback", h.quickbooksCallback)
	r.Post("/api/auth/quickbooks/logout", h.quickbooksLogout)
	r.Get("/api/auth/check", h.authCheck)
	r.Get("/api/quickbooks/company-info", h.companyInfo)

	// ── Chat ─────────────────────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB
		r.Post("/api/ai/invoice-tool", h.invoiceTool)
	})

	// ── Static chat page ─────────────────────────────────────────────────────
	r.Get("/", h.fileServer.ServeHTTP)
	r.Get("/static/*", func(w http.ResponseWriter, req *http.Request) {
		http.StripPrefix("/static", h.fileServer).ServeHTTP(w, req)
	})

	h.router = r
	return r
}

// health reports liveness.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

type invoiceToolRequest struct {
	Message string       `json:"message"`
	Display *app.Display `json:"display,omitempty"`
}

type invoiceToolResponse struct {
	Result   app.NormalizedTurnResult `json:"result"`
	TimedOut bool                     `json:"timedOut,omitempty"`
}

// invoiceTool handles POST /api/ai/invoice-tool.
func (h *Handler) invoiceTool(w http.ResponseWriter, r *http.Request) {
	var req invoiceToolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, r, "message is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	creds, err := h.credentialsFor(w, r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	turn := app.TurnRequest{Message: req.Message, Credentials: creds}
	if req.Display != nil {
		turn.Display = *req.Display
	}
	res, err := h.svc.ProcessTurn(r.Context(), turn)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, invoiceToolResponse{Result: res.Result, TimedOut: res.TimedOut})
}

// credentialsFor resolves this request's QuickBooks credentials: the signed-in
// user's stored tokens, then the token cookie, then the fallback. Expired
// tokens are refreshed and written back where they came from.
func (h *Handler) credentialsFor(w http.ResponseWriter, r *http.Request) (*credentials.Credentials, error) {
	uid := userID(r)
	chain := credentials.Chain{}
	if h.store != nil && uid != "" {
		chain = append(chain, h.store.ForUser(uid))
	}
	chain = append(chain, credentials.FromCookie(r))
	if h.fallback != nil {
		chain = append(chain, h.fallback)
	}

	var p credentials.Provider = chain
	if h.oauth != nil {
		p = credentials.Refreshing(chain, h.oauth, func(ctx context.Context, fresh *credentials.Credentials) error {
			return h.persist(ctx, w, uid, fresh)
		}, nil)
	}
	return p.Credentials(r.Context())
}

// persist saves creds for uid when a store is configured and always
// rewrites the token cookie.
func (h *Handler) persist(ctx context.Context, w http.ResponseWriter, uid string, creds *credentials.Credentials) error {
	if h.store != nil && uid != "" {
		if err := h.store.Save(ctx, uid, creds); err != nil {
			return err
		}
	}
	cookie, err := credentials.Cookie(creds, h.secure)
	if err != nil {
		return err
	}
	http.SetCookie(w, cookie)
	return nil
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
