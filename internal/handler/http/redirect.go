package http

import (
	"Shorty-Backend/internal/service"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RedirectHandler обработчик редиректов
type RedirectHandler struct {
	shortener *service.URLShortenerService
	log       *zap.Logger
}

// NewRedirectHandler создает новый обработчик редиректов
func NewRedirectHandler(shortener *service.URLShortenerService, log *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		shortener: shortener,
		log:       log,
	}
}

// HandleRedirect отвечает 307 на оригинальный URL, 404 для неизвестного
// кода и 410 для истекшей ссылки
func (h *RedirectHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["short_code"]

	link, err := h.shortener.Resolve(r.Context(), code, service.Visit{
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	})
	if err != nil {
		h.log.Debug("redirect failed", zap.String("short_code", code), zap.Error(err))
		writeServiceError(w, h.log, err)
		return
	}

	h.log.Debug("successful redirect",
		zap.String("short_code", code),
		zap.Int64("click_count", link.ClickCount),
		zap.String("ip", remoteIP(r)),
	)

	http.Redirect(w, r, link.OriginalURL, http.StatusTemporaryRedirect)
}
