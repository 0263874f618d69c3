package service

import (
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// LinkStats статистика ссылки для владельца
type LinkStats struct {
	Link           *domain.Link
	ClicksByDevice map[string]int64
}

// LinkService операции владельца над своими ссылками. Все проходят через OwnershipGuard.
type LinkService struct {
	guard   *OwnershipGuard
	storage repository.Storage
	log     *zap.Logger
}

func NewLinkService(guard *OwnershipGuard, storage repository.Storage, log *zap.Logger) *LinkService {
	return &LinkService{
		guard:   guard,
		storage: storage,
		log:     log,
	}
}

func (s *LinkService) Stats(ctx context.Context, credential, code string) (*LinkStats, error) {
	_, link, err := s.guard.Authorize(ctx, credential, code)
	if err != nil {
		return nil, err
	}

	byDevice, err := s.storage.GetClicksByDevice(ctx, link.ID)
	if err != nil {
		// статистика по устройствам вторична, счетчик кликов уже есть в ссылке
		s.log.Warn("failed to load clicks by device", zap.String("short_code", code), zap.Error(err))
		byDevice = map[string]int64{}
	}

	return &LinkStats{Link: link, ClicksByDevice: byDevice}, nil
}

func (s *LinkService) UpdateDestination(ctx context.Context, credential, code, newURL string) (*domain.Link, error) {
	principal, link, err := s.guard.Authorize(ctx, credential, code)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(newURL) == "" {
		return nil, fmt.Errorf("%w: new_original_url must not be empty", ErrInvalidURL)
	}

	updated, err := s.storage.UpdateDestination(ctx, link.ID, newURL)
	if err != nil {
		return nil, err
	}

	s.log.Info("link destination updated", zap.String("short_code", code), zap.Int64("user_id", principal.UserID))
	return updated, nil
}

func (s *LinkService) Delete(ctx context.Context, credential, code string) error {
	principal, link, err := s.guard.Authorize(ctx, credential, code)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteLinkByID(ctx, link.ID); err != nil {
		return err
	}

	s.log.Info("link deleted", zap.String("short_code", code), zap.Int64("user_id", principal.UserID))
	return nil
}

func (s *LinkService) ListMine(ctx context.Context, credential string) ([]*domain.Link, error) {
	principal, err := s.guard.Principal(ctx, credential)
	if err != nil {
		return nil, err
	}
	return s.storage.ListLinksByOwner(ctx, principal.UserID)
}
