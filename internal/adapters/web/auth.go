package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie carries the signed-in user's JWT, issued by the identity
// system that shares JWT_SECRET with this server.
const SessionCookie = "auth_token"

type authClaimsKey struct{}

// AuthClaims holds the authenticated user's identity extracted from the JWT.
type AuthClaims struct {
	UserID string
	Email  string
}

// authFromContext returns the auth claims stored in ctx, or nil.
func authFromContext(ctx context.Context) *AuthClaims {
	v, _ := ctx.Value(authClaimsKey{}).(*AuthClaims)
	return v
}

// jwtClaims is the JWT payload struct used for signing and parsing. The
// user id is the registered subject.
type jwtClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// OptionalAuth injects AuthClaims when a valid session cookie is present.
// Requests without one proceed anonymously; their QuickBooks tokens then
// live only in the browser cookie.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := h.parseSession(r); claims != nil {
			r = r.WithContext(context.WithValue(r.Context(), authClaimsKey{}, claims))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) parseSession(r *http.Request) *AuthClaims {
	if h.jwtSecret == "" {
		return nil
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}

	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil
	}
	return &AuthClaims{UserID: claims.Subject, Email: claims.Email}
}

// userID returns the signed-in user's id or "".
func userID(r *http.Request) string {
	if c := authFromContext(r.Context()); c != nil {
		return c.UserID
	}
	return ""
}
