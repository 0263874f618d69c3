package http

import (
	"Shorty-Backend/internal/analytics"
	"Shorty-Backend/internal/auth"
	"Shorty-Backend/internal/config"
	"Shorty-Backend/internal/repository/memory"
	"Shorty-Backend/internal/service"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	handler http.Handler
	storage *memory.MemStorage
}

func newTestEnv(t *testing.T, limiter *IPRateLimiter) *testEnv {
	t.Helper()
	log := zap.NewNop()
	storage := memory.New()

	jwtService := auth.NewJWTService(&auth.JWTConfig{
		SecretKey:           []byte("test-secret"),
		AccessTokenDuration: time.Hour,
		Issuer:              "shorty-test",
	})
	provider := auth.NewProvider(storage, jwtService, auth.NewPasswordService(bcrypt.MinCost), log)

	shortener := service.NewURLShortener(storage, &config.URLShortener{AliasLength: 6, MaxRetries: 5}, nil, log)
	guard := service.NewOwnershipGuard(provider, storage, log)
	links := service.NewLinkService(guard, storage, log)

	srv := NewServer(provider, shortener, links, guard, storage, auth.NewMiddleware(nil, log), limiter, log, "http://sho.rt", "test")
	return &testEnv{handler: srv.SetupRoutes(), storage: storage}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) registerAndLogin(t *testing.T, login string) string {
	t.Helper()
	creds := map[string]string{"username": login, "password": "password1"}

	w := e.do(t, http.MethodPost, "/register", "", creds)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/login", "", creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var token auth.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	return token.AccessToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestEndToEnd_OwnerFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.registerAndLogin(t, "alice")

	w := env.do(t, http.MethodPost, "/links/shorten", token, map[string]string{
		"original_url": "https://example.com/some/long/path",
		"custom_alias": "abc",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[CreateLinkResponse](t, w)
	assert.Equal(t, "http://sho.rt/abc", created.ShortURL)
	assert.Equal(t, "alice", created.CreatedBy)

	w = env.do(t, http.MethodGet, "/links/abc/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[StatsResponse](t, w)
	assert.Equal(t, int64(0), stats.ClickCount)
	assert.Nil(t, stats.LastUsedAt)

	w = env.do(t, http.MethodGet, "/abc", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://example.com/some/long/path", w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, "/links/abc/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats = decode[StatsResponse](t, w)
	assert.Equal(t, int64(1), stats.ClickCount)
	assert.NotNil(t, stats.LastUsedAt)

	w = env.do(t, http.MethodGet, "/me/links", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[[]LinkInfo](t, w)
	require.Len(t, mine, 1)
	assert.Equal(t, LinkInfo{ShortCode: "abc", OriginalURL: "https://example.com/some/long/path", ClickCount: 1}, mine[0])
}

func TestEndToEnd_DuplicateAlias(t *testing.T) {
	env := newTestEnv(t, nil)

	body := map[string]string{"original_url": "https://example.com", "custom_alias": "dup"}
	w := env.do(t, http.MethodPost, "/links/shorten", "", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "anonymous", decode[CreateLinkResponse](t, w).CreatedBy)

	w = env.do(t, http.MethodPost, "/links/shorten", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Alias already taken")
}

func TestEndToEnd_ReservedAliasIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, alias := range []string{"health", "ready", ".."} {
		w := env.do(t, http.MethodPost, "/links/shorten", "", map[string]string{
			"original_url": "https://example.com",
			"custom_alias": alias,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, alias)
		assert.Contains(t, w.Body.String(), "reserved", alias)
	}

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestEndToEnd_InvalidTokenOnShortenIsAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/links/shorten", "garbage", map[string]string{"original_url": "https://example.com"})
	require.Equal(t, http.StatusCreated, w.Code)

	created := decode[CreateLinkResponse](t, w)
	assert.Equal(t, "anonymous", created.CreatedBy)
	code := strings.TrimPrefix(created.ShortURL, "http://sho.rt/")
	assert.Len(t, code, 6)
}

func TestEndToEnd_RedirectFailures(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	w = env.do(t, http.MethodPost, "/links/shorten", "", map[string]string{
		"original_url": "https://example.com",
		"custom_alias": "old",
		"expires_at":   past,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/old", "", nil)
	assert.Equal(t, http.StatusGone, w.Code)

	// lookup не проверяет срок действия
	w = env.do(t, http.MethodGet, "/links/old", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://example.com", decode[LookupResponse](t, w).OriginalURL)

	w = env.do(t, http.MethodGet, "/links/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndToEnd_OwnershipDenial(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.registerAndLogin(t, "alice")
	bob := env.registerAndLogin(t, "bob")

	w := env.do(t, http.MethodPost, "/links/shorten", alice, map[string]string{"original_url": "https://alice.example", "custom_alias": "mine"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/links/shorten", "", map[string]string{"original_url": "https://anon.example", "custom_alias": "anon"})
	require.Equal(t, http.StatusCreated, w.Code)

	var bodies []string
	for _, code := range []string{"mine", "anon", "missing"} {
		for _, req := range []struct{ method, path string }{
			{http.MethodGet, "/links/" + code + "/stats"},
			{http.MethodDelete, "/links/" + code},
		} {
			w := env.do(t, req.method, req.path, bob, nil)
			assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", req.method, req.path)
			bodies = append(bodies, w.Body.String())
		}

		w := env.do(t, http.MethodPut, "/links/"+code, bob, UpdateLinkRequest{NewOriginalURL: "https://evil.example"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		bodies = append(bodies, w.Body.String())
	}
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b)
	}

	w = env.do(t, http.MethodGet, "/links/mine/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, http.MethodGet, "/me/links", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEndToEnd_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.registerAndLogin(t, "alice")

	w := env.do(t, http.MethodPost, "/links/shorten", token, map[string]string{"original_url": "https://old.example", "custom_alias": "edit"})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("json body", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/links/edit", token, UpdateLinkRequest{NewOriginalURL: "https://json.example"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "http://sho.rt/edit", decode[UpdateLinkResponse](t, w).ShortURL)
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"new_original_url": {"https://form.example"}}
		req := httptest.NewRequest(http.MethodPut, "/links/edit", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = env.do(t, http.MethodGet, "/edit", "", nil)
		assert.Equal(t, "https://form.example", w.Header().Get("Location"))
	})

	t.Run("empty destination", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/links/edit", token, UpdateLinkRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/links/edit", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodGet, "/edit", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestQRCode(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/links/shorten", "", map[string]string{"original_url": "https://example.com", "custom_alias": "qr"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/links/qr/qr", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = env.do(t, http.MethodGet, "/links/qr/qr?size=5", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/links/missing/qr", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", health.DatabaseStatus)
	assert.Equal(t, "test", health.Version)

	assert.Nil(t, health.Analytics)

	w = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestHealth_ReportsAnalyticsQueue(t *testing.T) {
	log := zap.NewNop()
	storage := memory.New()

	cfg := analytics.DefaultConfig()
	cfg.WorkerCount = 2
	cfg.BufferSize = 16
	processor := analytics.NewProcessor(storage, nil, log, cfg)
	require.NoError(t, processor.Start())
	t.Cleanup(func() { _ = processor.Stop() })

	srv := NewServer(nil, nil, nil, nil, storage, auth.NewMiddleware(nil, log), nil, log, "http://sho.rt", "test")
	srv.ReportAnalytics(processor)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.SetupRoutes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	health := decode[HealthResponse](t, w)
	require.NotNil(t, health.Analytics)
	assert.Equal(t, true, health.Analytics["started"])
	assert.Equal(t, float64(2), health.Analytics["worker_count"])
	assert.Equal(t, float64(16), health.Analytics["queue_capacity"])
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, NewIPRateLimiter(0.001, 2, nil, zap.NewNop()))

	body := map[string]string{"original_url": "https://example.com"}
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/links/shorten", "", body).Code)
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/links/shorten", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/links/shorten", "", body).Code)

	// редиректы не ограничиваются
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/whatever", "", nil).Code)
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, NewIPRateLimiter(0.001, 1, nil, zap.NewNop()))

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/links/shorten", strings.NewReader(`{"original_url":"https://example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))

		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		if w.Code == http.StatusCreated {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		remote  string
		xff     string
		realIP  string
		trusted []netip.Prefix
		want    string
	}{
		{name: "no proxies configured", remote: "203.0.113.7:1234", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "untrusted peer", remote: "203.0.113.7:1234", xff: "198.51.100.1", trusted: trusted, want: "203.0.113.7"},
		{name: "trusted peer", remote: "10.0.0.2:1234", xff: "198.51.100.1", trusted: trusted, want: "198.51.100.1"},
		{name: "spoofed leftmost hop", remote: "10.0.0.2:1234", xff: "1.2.3.4, 198.51.100.1, 10.0.0.3", trusted: trusted, want: "198.51.100.1"},
		{name: "real ip header", remote: "10.0.0.2:1234", realIP: "198.51.100.9", trusted: trusted, want: "198.51.100.9"},
		{name: "garbage header", remote: "10.0.0.2:1234", xff: "not-an-ip", trusted: trusted, want: "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	l := NewIPRateLimiter(1, 1, nil, zap.NewNop())
	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")

	assert.Equal(t, 0, l.Cleanup(time.Hour))
	assert.Equal(t, 2, l.Cleanup(-time.Second))
}

func TestParseExpiresAt(t *testing.T) {
	naive := "2030-01-02T03:04:05"
	got, err := parseExpiresAt(&naive)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), *got)

	zoned := "2030-01-02T03:04:05+02:00"
	got, err = parseExpiresAt(&zoned)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 1, 2, 1, 4, 5, 0, time.UTC), *got)

	bad := "tomorrow"
	_, err = parseExpiresAt(&bad)
	assert.Error(t, err)

	got, err = parseExpiresAt(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
