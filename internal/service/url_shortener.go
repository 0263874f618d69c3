package service

import (
	"Shorty-Backend/internal/analytics"
	"Shorty-Backend/internal/config"
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultMaxRetries = 5

// ClickRecorder принимает успешные переходы для асинхронной аналитики
type ClickRecorder interface {
	SubmitClick(clickData *analytics.ClickData) error
}

// ShortenInput описывает запрос на создание ссылки
type ShortenInput struct {
	OriginalURL string
	CustomAlias *string
	ExpiresAt   *time.Time
	Owner       domain.Owner
}

// Visit carries request details of a resolution that analytics cares about.
type Visit struct {
	UserAgent string
	Referer   string
}

type URLShortenerService struct {
	storage    repository.Storage
	generator  *CodeGenerator
	clicks     ClickRecorder
	maxRetries int
	log        *zap.Logger
	now        func() time.Time
}

// NewURLShortener создает сервис. clicks может быть nil, тогда аналитика не собирается.
func NewURLShortener(storage repository.Storage, cfg *config.URLShortener, clicks ClickRecorder, log *zap.Logger) *URLShortenerService {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &URLShortenerService{
		storage:    storage,
		generator:  NewCodeGenerator(cfg.AliasLength),
		clicks:     clicks,
		maxRetries: maxRetries,
		log:        log,
		now:        time.Now,
	}
}

// Shorten создает ссылку. Явно запрошенный алиас проверяется ровно один раз и
// при занятости возвращается repository.ErrAliasTaken. Сгенерированный код
// при коллизии молча генерируется заново, не более maxRetries раз.
func (s *URLShortenerService) Shorten(ctx context.Context, in ShortenInput) (*domain.Link, error) {
	if strings.TrimSpace(in.OriginalURL) == "" {
		return nil, fmt.Errorf("%w: original_url must not be empty", ErrInvalidURL)
	}

	explicit := in.CustomAlias != nil && *in.CustomAlias != ""
	if explicit {
		if err := validateAlias(*in.CustomAlias); err != nil {
			return nil, err
		}
	}

	var expiresAt *time.Time
	if in.ExpiresAt != nil {
		t := in.ExpiresAt.UTC()
		expiresAt = &t
	}

	attempts := 1
	if !explicit {
		attempts = s.maxRetries
	}

	for i := 0; i < attempts; i++ {
		link := &domain.Link{
			OriginalURL: in.OriginalURL,
			ShortCode:   s.generator.Generate(in.CustomAlias),
			CreatedAt:   s.now().UTC(),
			ExpiresAt:   expiresAt,
			Owner:       in.Owner,
		}

		err := s.storage.CreateLinkIfAbsent(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, repository.ErrAliasTaken) {
			return nil, fmt.Errorf("failed to save link: %w", err)
		}
		if explicit {
			return nil, err
		}

		s.log.Debug("generated code collision, retrying",
			zap.String("short_code", link.ShortCode),
			zap.Int("attempt", i+1),
		)
	}

	return nil, fmt.Errorf("failed to generate unique code after %d attempts: %w", attempts, repository.ErrAliasTaken)
}

// Resolve возвращает живую ссылку и учитывает переход.
// Порядок проверок: существование, затем срок действия.
func (s *URLShortenerService) Resolve(ctx context.Context, code string, visit Visit) (*domain.Link, error) {
	link, err := s.storage.GetLinkByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if link.IsExpired(now) {
		return nil, ErrLinkExpired
	}

	// ссылку могли удалить между чтением и учетом, тогда это ErrLinkNotFound
	link, err = s.storage.RecordVisit(ctx, code, now)
	if err != nil {
		return nil, err
	}

	s.submitClick(link, visit, now)
	return link, nil
}

// Lookup returns the link without redirect semantics: expiry is not checked
// and the visit is not counted.
func (s *URLShortenerService) Lookup(ctx context.Context, code string) (*domain.Link, error) {
	return s.storage.GetLinkByCode(ctx, code)
}

func (s *URLShortenerService) submitClick(link *domain.Link, visit Visit, at time.Time) {
	if s.clicks == nil {
		return
	}
	err := s.clicks.SubmitClick(&analytics.ClickData{
		LinkID:    link.ID,
		ShortCode: link.ShortCode,
		UserAgent: visit.UserAgent,
		Referer:   visit.Referer,
		ClickedAt: at,
	})
	if err != nil {
		s.log.Warn("failed to submit click for analytics", zap.String("short_code", link.ShortCode), zap.Error(err))
	}
}
