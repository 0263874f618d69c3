package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMiddleware_Credentials(t *testing.T) {
	m := NewMiddleware(nil, zap.NewNop())

	var got string
	handler := m.Credentials(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CredentialFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer token-1", "token-1"},
		{"missing", "", ""},
		{"wrong scheme", "Basic token-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = "unset"
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware_CORS(t *testing.T) {
	m := NewMiddleware([]string{"http://localhost:3000"}, zap.NewNop())
	called := false
	handler := m.CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	t.Run("allowed origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.True(t, called)
	})

	t.Run("foreign origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.example")
		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/links/shorten", nil)
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
	})
}
