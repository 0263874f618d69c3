package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ContextKey тип для ключей контекста
type ContextKey string

const (
	// CredentialKey ключ для получения bearer токена из контекста
	CredentialKey ContextKey = "credential"
)

// Middleware HTTP middleware для аутентификации и CORS
type Middleware struct {
	allowedOrigins map[string]struct{}
	log            *zap.Logger
}

// NewMiddleware создает новый middleware
func NewMiddleware(allowedOrigins []string, log *zap.Logger) *Middleware {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = struct{}{}
		}
	}
	return &Middleware{
		allowedOrigins: origins,
		log:            log,
	}
}

// Credentials кладет bearer токен (если он есть) в контекст запроса.
// Проверка токена выполняется позже, там где нужен принципал.
func (m *Middleware) Credentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			m.log.Debug("invalid authorization header format")
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), CredentialKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CredentialFromContext извлекает bearer токен из контекста
func CredentialFromContext(ctx context.Context) string {
	token, _ := ctx.Value(CredentialKey).(string)
	return token
}

// CORS middleware для обработки CORS запросов
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := m.allowedOrigins[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		// Обработка preflight OPTIONS запросов
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
