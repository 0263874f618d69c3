package auth

import (
	"Shorty-Backend/internal/repository"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// AuthHandlers обработчики аутентификации
type AuthHandlers struct {
	provider *Provider
	log      *zap.Logger
}

// NewAuthHandlers создает новые обработчики аутентификации
func NewAuthHandlers(provider *Provider, log *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		provider: provider,
		log:      log,
	}
}

// CredentialsRequest структура запроса регистрации и входа
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse структура ответа регистрации
type RegisterResponse struct {
	Message string `json:"message"`
}

// TokenResponse структура ответа входа
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ErrorResponse структура ошибки
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register обработчик регистрации
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid registration request", zap.Error(err))
		h.writeError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if _, err := h.provider.Register(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			h.writeError(w, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "), http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserExists):
			h.writeError(w, "User already exists", http.StatusConflict)
		case errors.Is(err, repository.ErrStorageUnavailable):
			h.log.Error("failed to register user", zap.Error(err))
			h.writeError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		default:
			h.log.Error("failed to register user", zap.Error(err))
			h.writeError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, RegisterResponse{Message: "User registered successfully"}, http.StatusCreated)
}

// Login обработчик входа
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid login request", zap.Error(err))
		h.writeError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	token, err := h.provider.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			h.writeError(w, "Invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, repository.ErrStorageUnavailable):
			h.log.Error("failed to authenticate user", zap.Error(err))
			h.writeError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
		default:
			h.log.Error("failed to authenticate user", zap.Error(err))
			h.writeError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, TokenResponse{AccessToken: token, TokenType: "bearer"}, http.StatusOK)
}

// Helper methods

func (h *AuthHandlers) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to encode response", zap.Error(err))
	}
}

func (h *AuthHandlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: message}, statusCode)
}
