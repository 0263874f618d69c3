package http

import (
	"Shorty-Backend/internal/repository"
	"Shorty-Backend/internal/service"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse структура ошибки
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse простое подтверждение
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, message string, statusCode int) {
	writeJSON(w, log, ErrorResponse{Error: message}, statusCode)
}

// writeServiceError переводит ошибки сервисов в HTTP статусы
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, repository.ErrAliasTaken):
		writeError(w, log, "Alias already taken", http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrInvalidAlias):
		writeError(w, log, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrLinkNotFound):
		writeError(w, log, "Link not found", http.StatusNotFound)
	case errors.Is(err, service.ErrLinkExpired):
		writeError(w, log, "Link expired", http.StatusGone)
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, log, "Not authenticated", http.StatusUnauthorized)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, log, "Access denied", http.StatusForbidden)
	case errors.Is(err, repository.ErrStorageUnavailable):
		log.Error("storage unavailable", zap.Error(err))
		writeError(w, log, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		log.Error("unexpected error", zap.Error(err))
		writeError(w, log, "Internal server error", http.StatusInternalServerError)
	}
}
