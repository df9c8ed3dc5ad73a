package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func passthrough(next http.Handler) http.Handler {
	return next
}

func TestRegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandler(&mockIndexer{}, &mockLiveIndexer{}), passthrough)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{name: "GET /health", method: http.MethodGet, path: "/health", expectedStatus: http.StatusOK},
		{name: "GET /metrics", method: http.MethodGet, path: "/metrics", expectedStatus: http.StatusOK},
		{name: "POST /api/build", method: http.MethodPost, path: "/api/build", expectedStatus: http.StatusAccepted},
		{name: "GET /api/queue", method: http.MethodGet, path: "/api/queue", expectedStatus: http.StatusOK},
		{name: "POST /api/queue/flush", method: http.MethodPost, path: "/api/queue/flush", expectedStatus: http.StatusOK},
		{name: "POST /api/records/{recordId}/index", method: http.MethodPost, path: "/api/records/abc/index", expectedStatus: http.StatusOK},
		{name: "POST /api/records/{recordId}/remove", method: http.MethodPost, path: "/api/records/abc/remove", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestRegisterRoutes_MethodNotAllowed(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandler(&mockIndexer{}, &mockLiveIndexer{}), passthrough)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "POST /health should not be allowed", method: http.MethodPost, path: "/health"},
		{name: "GET /api/build should not be allowed", method: http.MethodGet, path: "/api/build"},
		{name: "GET /api/queue/flush should not be allowed", method: http.MethodGet, path: "/api/queue/flush"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestRegisterRoutes_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandler(&mockIndexer{}, &mockLiveIndexer{}), passthrough)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterRoutes_Disabled(t *testing.T) {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandler(&mockIndexer{}, &mockLiveIndexer{}), nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/build", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterRoutes_Protected(t *testing.T) {
	denyAll := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	indexer := &mockIndexer{}
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandler(indexer, &mockLiveIndexer{}), denyAll)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/build", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health stays open")
}
