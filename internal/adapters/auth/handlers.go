package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/session"
)

const stateCookieName = "oauth_state"

// Handler drives the browser login that hands an operator an ID token for
// the API.
type Handler struct {
	authenticator *Authenticator
	sessions      *session.Store
	allowed       func(email string) bool
	secureCookies bool
}

// NewHandler creates a new auth handler
func NewHandler(auth *Authenticator, sessions *session.Store, allowed func(string) bool, secureCookies bool) *Handler {
	return &Handler{
		authenticator: auth,
		sessions:      sessions,
		allowed:       allowed,
		secureCookies: secureCookies,
	}
}

// HandleLogin redirects to the identity provider
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.authenticator.AuthURL(state), http.StatusFound)
}

// HandleCallback finishes the login and returns the ID token as JSON
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		slog.ErrorContext(ctx, "missing state cookie")
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}
	if state := r.URL.Query().Get("state"); state != stateCookie.Value {
		slog.ErrorContext(ctx, "state mismatch", "expected", stateCookie.Value, "got", state)
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	identity, err := h.authenticator.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "OIDC exchange failed", "error", err)
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	if !h.allowed(identity.Email) {
		slog.WarnContext(ctx, "login refused", "email", identity.Email)
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	h.sessions.Put(identity.IDToken, session.Session{Email: identity.Email, ExpiresAt: identity.ExpiresAt})
	slog.InfoContext(ctx, "operator authenticated", "email", identity.Email)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(identity)
}

// generateState generates a cryptographically secure random state parameter
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
