package http

import (
	"Shorty-Backend/internal/auth"
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/service"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	anonymousCreator = "anonymous"

	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// expiresAt принимает RFC3339 и вариант без часового пояса (считается UTC)
var expiresAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// LinksHandler обработчик для работы со ссылками
type LinksHandler struct {
	shortener *service.URLShortenerService
	links     *service.LinkService
	guard     *service.OwnershipGuard
	log       *zap.Logger
	baseURL   string
}

// NewLinksHandler создает новый обработчик ссылок
func NewLinksHandler(shortener *service.URLShortenerService, links *service.LinkService, guard *service.OwnershipGuard, log *zap.Logger, baseURL string) *LinksHandler {
	return &LinksHandler{
		shortener: shortener,
		links:     links,
		guard:     guard,
		log:       log,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// CreateLinkRequest структура запроса создания ссылки
type CreateLinkRequest struct {
	OriginalURL string  `json:"original_url"`
	CustomAlias *string `json:"custom_alias,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

// CreateLinkResponse структура ответа создания ссылки
type CreateLinkResponse struct {
	ShortURL  string `json:"short_url"`
	CreatedBy string `json:"created_by"`
}

// LookupResponse ответ на запрос без редиректа
type LookupResponse struct {
	OriginalURL string `json:"original_url"`
}

// StatsResponse статистика ссылки
type StatsResponse struct {
	OriginalURL    string           `json:"original_url"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	ClickCount     int64            `json:"click_count"`
	LastUsedAt     *time.Time       `json:"last_used_at"`
	ClicksByDevice map[string]int64 `json:"clicks_by_device"`
}

// LinkInfo элемент списка ссылок пользователя
type LinkInfo struct {
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	ClickCount  int64  `json:"click_count"`
}

// UpdateLinkRequest новый адрес назначения
type UpdateLinkRequest struct {
	NewOriginalURL string `json:"new_original_url"`
}

// UpdateLinkResponse ответ на обновление ссылки
type UpdateLinkResponse struct {
	ShortURL string `json:"short_url"`
}

// CreateLink создает новую короткую ссылку. Владелец определяется по токену,
// без токена или с недействительным токеном ссылка анонимная.
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid create link request", zap.Error(err))
		writeError(w, h.log, "Invalid request format", http.StatusBadRequest)
		return
	}

	expiresAt, err := parseExpiresAt(req.ExpiresAt)
	if err != nil {
		writeError(w, h.log, err.Error(), http.StatusBadRequest)
		return
	}

	owner := domain.NoOwner()
	createdBy := anonymousCreator
	if credential := auth.CredentialFromContext(r.Context()); credential != "" {
		principal, err := h.guard.Principal(r.Context(), credential)
		switch {
		case err == nil:
			owner = domain.OwnedBy(principal.UserID)
			createdBy = principal.Login
		case errors.Is(err, service.ErrUnauthorized):
			h.log.Debug("invalid credential on shorten, creating anonymous link")
		default:
			writeServiceError(w, h.log, err)
			return
		}
	}

	link, err := h.shortener.Shorten(r.Context(), service.ShortenInput{
		OriginalURL: req.OriginalURL,
		CustomAlias: req.CustomAlias,
		ExpiresAt:   expiresAt,
		Owner:       owner,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	h.log.Info("link created", zap.String("short_code", link.ShortCode), zap.Stringer("owner", link.Owner))
	writeJSON(w, h.log, CreateLinkResponse{
		ShortURL:  h.shortURL(r, link.ShortCode),
		CreatedBy: createdBy,
	}, http.StatusCreated)
}

// GetLink возвращает оригинальный URL без редиректа и без учета клика
func (h *LinksHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.shortener.Lookup(r.Context(), mux.Vars(r)["short_code"])
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, LookupResponse{OriginalURL: link.OriginalURL}, http.StatusOK)
}

// GetStats статистика ссылки, только для владельца
func (h *LinksHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.links.Stats(r.Context(), auth.CredentialFromContext(r.Context()), mux.Vars(r)["short_code"])
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, h.log, StatsResponse{
		OriginalURL:    stats.Link.OriginalURL,
		CreatedAt:      stats.Link.CreatedAt,
		ExpiresAt:      stats.Link.ExpiresAt,
		ClickCount:     stats.Link.ClickCount,
		LastUsedAt:     stats.Link.LastUsedAt,
		ClicksByDevice: stats.ClicksByDevice,
	}, http.StatusOK)
}

// ListLinks возвращает ссылки текущего пользователя
func (h *LinksHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.ListMine(r.Context(), auth.CredentialFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	infos := make([]LinkInfo, 0, len(links))
	for _, link := range links {
		infos = append(infos, LinkInfo{
			ShortCode:   link.ShortCode,
			OriginalURL: link.OriginalURL,
			ClickCount:  link.ClickCount,
		})
	}

	writeJSON(w, h.log, infos, http.StatusOK)
}

// UpdateLink меняет адрес назначения. new_original_url принимается из JSON,
// формы или query строки.
func (h *LinksHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	newURL, err := readNewOriginalURL(r)
	if err != nil {
		writeError(w, h.log, "Invalid request format", http.StatusBadRequest)
		return
	}

	code := mux.Vars(r)["short_code"]
	link, err := h.links.UpdateDestination(r.Context(), auth.CredentialFromContext(r.Context()), code, newURL)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	writeJSON(w, h.log, UpdateLinkResponse{ShortURL: h.shortURL(r, link.ShortCode)}, http.StatusOK)
}

// DeleteLink удаляет ссылку владельца
func (h *LinksHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.links.Delete(r.Context(), auth.CredentialFromContext(r.Context()), mux.Vars(r)["short_code"]); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, MessageResponse{Message: "Link deleted successfully"}, http.StatusOK)
}

// GetQRCode отдает PNG с QR кодом короткой ссылки
func (h *LinksHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["short_code"]

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < minQRSize || parsed > maxQRSize {
			writeError(w, h.log, fmt.Sprintf("size must be between %d and %d", minQRSize, maxQRSize), http.StatusBadRequest)
			return
		}
		size = parsed
	}

	if _, err := h.shortener.Lookup(r.Context(), code); err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	png, err := qrcode.Encode(h.shortURL(r, code), qrcode.Medium, size)
	if err != nil {
		h.log.Error("failed to generate qr code", zap.String("short_code", code), zap.Error(err))
		writeError(w, h.log, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.log.Debug("failed to write qr code", zap.Error(err))
	}
}

// shortURL строит полный короткий адрес из base_url или из запроса
func (h *LinksHandler) shortURL(r *http.Request, code string) string {
	if h.baseURL != "" {
		return h.baseURL + "/" + code
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/" + code
}

func parseExpiresAt(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range expiresAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("expires_at must be an ISO 8601 timestamp, got %q", value)
}

func readNewOriginalURL(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req UpdateLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
		return req.NewOriginalURL, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.Form.Get("new_original_url"), nil
}
