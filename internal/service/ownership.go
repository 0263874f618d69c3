package service

import (
	"Shorty-Backend/internal/auth"
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// CredentialVerifier превращает bearer токен в принципала
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (domain.Principal, error)
}

// OwnershipGuard проверяет, что действующий пользователь владеет ссылкой.
// Отсутствующая ссылка и чужая ссылка дают одинаковый ErrForbidden.
type OwnershipGuard struct {
	verifier CredentialVerifier
	storage  repository.Storage
	log      *zap.Logger
}

func NewOwnershipGuard(verifier CredentialVerifier, storage repository.Storage, log *zap.Logger) *OwnershipGuard {
	return &OwnershipGuard{
		verifier: verifier,
		storage:  storage,
		log:      log,
	}
}

// Principal resolves the caller. Missing or invalid credentials give ErrUnauthorized.
func (g *OwnershipGuard) Principal(ctx context.Context, credential string) (domain.Principal, error) {
	if credential == "" {
		return domain.Principal{}, ErrUnauthorized
	}

	principal, err := g.verifier.VerifyCredential(ctx, credential)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
			return domain.Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return domain.Principal{}, fmt.Errorf("failed to verify credential: %w", err)
	}

	return principal, nil
}

// Authorize returns the link identified by code if the caller owns it.
func (g *OwnershipGuard) Authorize(ctx context.Context, credential, code string) (domain.Principal, *domain.Link, error) {
	principal, err := g.Principal(ctx, credential)
	if err != nil {
		return domain.Principal{}, nil, err
	}

	link, err := g.storage.GetLinkByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			g.log.Debug("access denied", zap.String("short_code", code), zap.Int64("user_id", principal.UserID))
			return domain.Principal{}, nil, ErrForbidden
		}
		return domain.Principal{}, nil, err
	}

	if !link.Owner.IsOwnedBy(principal.UserID) {
		g.log.Debug("access denied", zap.String("short_code", code), zap.Int64("user_id", principal.UserID))
		return domain.Principal{}, nil, ErrForbidden
	}

	return principal, link, nil
}
