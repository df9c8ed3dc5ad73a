package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/session"
)

// ContextKey for storing caller info in request context
type ContextKey string

// IdentityKey is the context key for the authenticated caller
const IdentityKey ContextKey = "identity"

// GetIdentity retrieves the caller from the context, returns nil if not present
func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(IdentityKey).(*Identity); ok {
		return id
	}
	return nil
}

// Middleware protects API routes with OIDC bearer ID tokens
type Middleware struct {
	verifier TokenVerifier
	sessions *session.Store
	allowed  func(email string) bool
	logger   *slog.Logger
}

// NewMiddleware creates a new auth middleware. Verified tokens are cached in
// sessions; allowed decides which emails may call the API.
func NewMiddleware(verifier TokenVerifier, sessions *session.Store, allowed func(string) bool) *Middleware {
	return &Middleware{
		verifier: verifier,
		sessions: sessions,
		allowed:  allowed,
		logger:   slog.Default().With("component", "auth"),
	}
}

// RequireToken wraps a handler requiring an Authorization: Bearer header
func (m *Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="indexer"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := m.identify(ctx, token)
		if err != nil {
			m.logger.WarnContext(ctx, "rejected bearer token", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="indexer", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		if !m.allowed(identity.Email) {
			m.logger.WarnContext(ctx, "caller not allowed", "email", identity.Email)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, IdentityKey, identity)))
	})
}

func (m *Middleware) identify(ctx context.Context, token string) (*Identity, error) {
	if sess, ok := m.sessions.Get(token); ok {
		return &Identity{IDToken: token, Email: sess.Email, ExpiresAt: sess.ExpiresAt}, nil
	}

	identity, err := m.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	m.sessions.Put(token, session.Session{Email: identity.Email, ExpiresAt: identity.ExpiresAt})
	return identity, nil
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
