package http

import (
	"Shorty-Backend/internal/auth"
	"Shorty-Backend/internal/service"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server HTTP сервер с обработчиками
type Server struct {
	authHandlers    *auth.AuthHandlers
	linksHandler    *LinksHandler
	redirectHandler *RedirectHandler
	healthHandler   *HealthHandler
	authMiddleware  *auth.Middleware
	limiter         *IPRateLimiter
	log             *zap.Logger
}

// NewServer создает новый HTTP сервер. limiter может быть nil, тогда
// создание ссылок не ограничивается.
func NewServer(
	provider *auth.Provider,
	shortener *service.URLShortenerService,
	links *service.LinkService,
	guard *service.OwnershipGuard,
	storage Pinger,
	authMiddleware *auth.Middleware,
	limiter *IPRateLimiter,
	log *zap.Logger,
	baseURL string,
	version string,
) *Server {
	return &Server{
		authHandlers:    auth.NewAuthHandlers(provider, log),
		linksHandler:    NewLinksHandler(shortener, links, guard, log, baseURL),
		redirectHandler: NewRedirectHandler(shortener, log),
		healthHandler:   NewHealthHandler(storage, log, version),
		authMiddleware:  authMiddleware,
		limiter:         limiter,
		log:             log,
	}
}

// ReportAnalytics добавляет состояние обработчика кликов в /health
func (s *Server) ReportAnalytics(stats StatsReporter) {
	s.healthHandler.analytics = stats
}

// SetupRoutes настраивает маршруты
func (s *Server) SetupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Use(RequestID, AccessLog(s.log), s.authMiddleware.Credentials)

	// Health checks
	router.HandleFunc("/health", s.healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.healthHandler.Ready).Methods(http.MethodGet)

	// Auth endpoints
	router.HandleFunc("/register", s.authHandlers.Register).Methods(http.MethodPost)
	router.HandleFunc("/login", s.authHandlers.Login).Methods(http.MethodPost)

	// Links
	var shorten http.Handler = http.HandlerFunc(s.linksHandler.CreateLink)
	if s.limiter != nil {
		shorten = s.limiter.Middleware(shorten)
	}
	router.Handle("/links/shorten", shorten).Methods(http.MethodPost)
	router.HandleFunc("/me/links", s.linksHandler.ListLinks).Methods(http.MethodGet)
	router.HandleFunc("/links/{short_code}", s.linksHandler.GetLink).Methods(http.MethodGet)
	router.HandleFunc("/links/{short_code}", s.linksHandler.UpdateLink).Methods(http.MethodPut)
	router.HandleFunc("/links/{short_code}", s.linksHandler.DeleteLink).Methods(http.MethodDelete)
	router.HandleFunc("/links/{short_code}/stats", s.linksHandler.GetStats).Methods(http.MethodGet)
	router.HandleFunc("/links/{short_code}/qr", s.linksHandler.GetQRCode).Methods(http.MethodGet)

	// Redirect - должен быть последним
	router.HandleFunc("/{short_code}", s.redirectHandler.HandleRedirect).Methods(http.MethodGet)

	// CORS снаружи роутера, чтобы preflight OPTIONS не получал 405
	return s.authMiddleware.CORS(router)
}
