package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/adapters/session"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
)

// MiddlewareFunc is a function that wraps a handler with middleware
type MiddlewareFunc func(http.Handler) http.Handler

// Adapter holds the auth adapter dependencies
type Adapter struct {
	handler    *Handler
	middleware MiddlewareFunc
}

// passthroughMiddleware returns the handler unchanged (no authentication)
func passthroughMiddleware(next http.Handler) http.Handler {
	return next
}

// New creates a new auth adapter.
// In development mode the API is open. In production the API requires an
// OIDC bearer token, and without OIDC configuration it is not served at all.
func New(ctx context.Context) (*Adapter, error) {
	cfg := config.GetConfig(ctx)

	if cfg.Mode.IsDevelopment() {
		slog.Info("auth disabled (development mode)")
		return &Adapter{middleware: passthroughMiddleware}, nil
	}

	if !cfg.OIDC.IsConfigured() {
		slog.Warn("OIDC not configured, operations API disabled")
		return &Adapter{}, nil
	}

	authenticator, err := NewAuthenticator(ctx, cfg.OIDC)
	if err != nil {
		return nil, err
	}
	slog.Info("OIDC authenticator initialized", "issuer", cfg.OIDC.IssuerURL)

	return newAdapter(authenticator, cfg.OIDC.IsAllowed), nil
}

func newAdapter(authenticator *Authenticator, allowed func(string) bool) *Adapter {
	sessions := session.NewStore(0, 0)
	return &Adapter{
		handler:    NewHandler(authenticator, sessions, allowed, true),
		middleware: NewMiddleware(authenticator, sessions, allowed).RequireToken,
	}
}

// RegisterRoutes registers the login routes (/auth/login, /auth/callback).
// Only registers routes if OIDC authentication is enabled.
func (a *Adapter) RegisterRoutes(mux *http.ServeMux) {
	if a.handler == nil {
		return
	}

	mux.HandleFunc("GET /auth/login", a.handler.HandleLogin)
	mux.HandleFunc("GET /auth/callback", a.handler.HandleCallback)

	slog.Info("auth routes registered")
}

// Enabled reports whether the operations API may be served.
func (a *Adapter) Enabled() bool {
	return a.middleware != nil
}

// Middleware returns the authentication middleware, or nil when the API is
// disabled.
func (a *Adapter) Middleware() MiddlewareFunc {
	return a.middleware
}
