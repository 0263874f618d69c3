package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsReporter отдает состояние фоновой обработки, например очереди кликов
type StatsReporter interface {
	GetStats() map[string]interface{}
}

// HealthHandler обработчик health checks
type HealthHandler struct {
	storage   Pinger
	analytics StatsReporter
	log       *zap.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler создает новый health handler
func NewHealthHandler(storage Pinger, log *zap.Logger, version string) *HealthHandler {
	return &HealthHandler{
		storage:   storage,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthResponse структура ответа health check
type HealthResponse struct {
	Status         string                 `json:"status"`
	Timestamp      time.Time              `json:"timestamp"`
	Version        string                 `json:"version"`
	DatabaseStatus string                 `json:"database_status"`
	Uptime         string                 `json:"uptime,omitempty"`
	Analytics      map[string]interface{} `json:"analytics,omitempty"`
}

// Health liveness probe. Процесс жив, даже если база недоступна.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	if err := h.ping(r.Context()); err != nil {
		dbStatus = "unhealthy"
	}

	resp := HealthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC(),
		Version:        h.version,
		DatabaseStatus: dbStatus,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.analytics != nil {
		resp.Analytics = h.analytics.GetStats()
	}

	writeJSON(w, h.log, resp, http.StatusOK)
}

// Ready readiness probe: 503 пока хранилище не отвечает
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		h.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, h.log, map[string]interface{}{
			"status":    "not ready",
			"timestamp": time.Now().UTC(),
		}, http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, h.log, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	}, http.StatusOK)
}

func (h *HealthHandler) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.storage.Ping(ctx)
}
