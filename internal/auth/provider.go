package auth

import (
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInvalidInput       = errors.New("invalid input")
)

const maxLoginLength = 255

// Provider регистрирует пользователей, выдает и проверяет учетные данные.
// Пароли хранятся только в виде bcrypt хеша.
type Provider struct {
	storage   repository.Storage
	jwt       *JWTService
	passwords PasswordHasher
	log       *zap.Logger
	now       func() time.Time
}

// NewProvider создает новый провайдер аутентификации
func NewProvider(storage repository.Storage, jwtService *JWTService, passwords PasswordHasher, log *zap.Logger) *Provider {
	return &Provider{
		storage:   storage,
		jwt:       jwtService,
		passwords: passwords,
		log:       log,
		now:       time.Now,
	}
}

// NormalizeLogin приводит логин к каноническому виду
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// Register создает нового пользователя. Возвращает repository.ErrUserExists, если логин занят.
func (p *Provider) Register(ctx context.Context, login, secret string) (*domain.User, error) {
	login = NormalizeLogin(login)
	if login == "" || len(login) > maxLoginLength {
		return nil, fmt.Errorf("%w: login must be between 1 and %d characters", ErrInvalidInput, maxLoginLength)
	}
	if err := IsValidPassword(secret); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	hashedPassword, err := p.passwords.HashPassword(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := p.storage.CreateUser(ctx, login, hashedPassword)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	p.log.Info("user registered successfully", zap.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate проверяет логин и пароль и выдает access токен
func (p *Provider) Authenticate(ctx context.Context, login, secret string) (string, error) {
	login = NormalizeLogin(login)

	user, err := p.storage.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// время ответа не должно выдавать, существует ли логин
			p.passwords.VerifyDummy(secret)
			p.log.Debug("user not found for login")
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	if err := p.passwords.VerifyPassword(user.PasswordHash, secret); err != nil {
		p.log.Debug("invalid password for user", zap.Int64("user_id", user.ID))
		return "", ErrInvalidCredentials
	}

	// Обновляем время последнего входа
	if err := p.storage.TouchLastLogin(ctx, user.ID, p.now().UTC()); err != nil {
		p.log.Warn("failed to update last login time", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	token, err := p.jwt.GenerateAccessToken(user.ID, user.Login)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}

	p.log.Info("user logged in successfully", zap.Int64("user_id", user.ID))
	return token, nil
}

// VerifyCredential проверяет токен и возвращает принципала.
// Токен пользователя, которого больше нет, считается недействительным.
func (p *Provider) VerifyCredential(ctx context.Context, token string) (domain.Principal, error) {
	claims, err := p.jwt.ValidateToken(token)
	if err != nil {
		return domain.Principal{}, err
	}

	user, err := p.storage.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.Principal{}, ErrInvalidToken
		}
		return domain.Principal{}, fmt.Errorf("failed to get user: %w", err)
	}

	return domain.Principal{UserID: user.ID, Login: user.Login}, nil
}
