package postgres

import (
	"Shorty-Backend/internal/domain"
	"Shorty-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// retentionClock is the column expression the inactivity purge is measured against.
const retentionClock = "COALESCE(last_used_at, created_at)"

// PostgresStorage реализует интерфейс Storage поверх GORM.
// Работает с PostgreSQL в production и с SQLite диалектом для single-node запуска и тестов.
type PostgresStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

// New создает новый экземпляр storage
func New(db *gorm.DB, log *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:  db,
		log: log,
	}
}

// --- User Methods ---

// CreateUser создает пользователя, логин должен быть уникальным
func (s *PostgresStorage) CreateUser(ctx context.Context, login, passwordHash string) (*domain.User, error) {
	user := domain.User{
		Login:        login,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "login"}}, DoNothing: true}).
		Create(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, repository.ErrUserExists
		}
		s.log.Error("failed to create user", zap.String("login", login), zap.Error(result.Error))
		return nil, unavailable("failed to create user", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, repository.ErrUserExists
	}

	s.log.Info("created new user", zap.Int64("user_id", user.ID))
	return &user, nil
}

// GetUserByLogin получает пользователя по логину
func (s *PostgresStorage) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	var user domain.User

	err := s.db.WithContext(ctx).Where("login = ?", login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		s.log.Error("failed to get user by login", zap.String("login", login), zap.Error(err))
		return nil, unavailable("failed to get user", err)
	}

	return &user, nil
}

// GetUserByID получает пользователя по ID
func (s *PostgresStorage) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User

	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		s.log.Error("failed to get user by id", zap.Int64("user_id", id), zap.Error(err))
		return nil, unavailable("failed to get user", err)
	}

	return &user, nil
}

// TouchLastLogin обновляет время последнего входа
func (s *PostgresStorage) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("last_login_at", at)
	if result.Error != nil {
		return unavailable("failed to update last login", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

// --- Link Methods ---

// CreateLinkIfAbsent сохраняет новую ссылку одним INSERT ... ON CONFLICT DO NOTHING,
// поэтому из двух одновременных вставок с одним кодом успешна ровно одна
func (s *PostgresStorage) CreateLinkIfAbsent(ctx context.Context, link *domain.Link) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "short_code"}}, DoNothing: true}).
		Create(link)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return repository.ErrAliasTaken
		}
		s.log.Error("failed to save link", zap.String("short_code", link.ShortCode), zap.Error(result.Error))
		return unavailable("failed to save link", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrAliasTaken
	}

	s.log.Info("saved new link", zap.String("short_code", link.ShortCode), zap.Stringer("owner", link.Owner))
	return nil
}

// GetLinkByCode получает ссылку по короткому коду. Срок действия здесь не проверяется.
func (s *PostgresStorage) GetLinkByCode(ctx context.Context, code string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLinkNotFound
	}
	if err != nil {
		s.log.Error("failed to get link", zap.String("short_code", code), zap.Error(err))
		return nil, unavailable("failed to get link", err)
	}

	return &link, nil
}

// RecordVisit увеличивает счетчик кликов и сдвигает last_used_at одним UPDATE,
// затем читает обновленную запись в той же транзакции
func (s *PostgresStorage) RecordVisit(ctx context.Context, code string, at time.Time) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Link{}).Where("short_code = ?", code).Updates(map[string]interface{}{
			"click_count":  gorm.Expr("click_count + 1"),
			"last_used_at": gorm.Expr("CASE WHEN last_used_at IS NULL OR last_used_at < ? THEN ? ELSE last_used_at END", at, at),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrLinkNotFound
		}
		return tx.Where("short_code = ?", code).First(&link).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrLinkNotFound
		}
		s.log.Error("failed to record visit", zap.String("short_code", code), zap.Error(err))
		return nil, unavailable("failed to record visit", err)
	}

	s.log.Debug("recorded visit", zap.String("short_code", code), zap.Int64("click_count", link.ClickCount))
	return &link, nil
}

// UpdateDestination меняет оригинальный URL ссылки
func (s *PostgresStorage) UpdateDestination(ctx context.Context, id int64, originalURL string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Link{}).Where("id = ?", id).Update("original_url", originalURL)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrLinkNotFound
		}
		return tx.First(&link, id).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrLinkNotFound
		}
		s.log.Error("failed to update link", zap.Int64("link_id", id), zap.Error(err))
		return nil, unavailable("failed to update link", err)
	}

	s.log.Info("updated link destination", zap.Int64("link_id", id))
	return &link, nil
}

// DeleteLinkByID удаляет ссылку вместе с ее кликами
func (s *PostgresStorage) DeleteLinkByID(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("link_id = ?", id).Delete(&domain.Click{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.Link{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrLinkNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return err
		}
		s.log.Error("failed to delete link", zap.Int64("link_id", id), zap.Error(err))
		return unavailable("failed to delete link", err)
	}

	s.log.Info("deleted link", zap.Int64("link_id", id))
	return nil
}

// ListLinksByOwner возвращает список ссылок пользователя, новые первыми
func (s *PostgresStorage) ListLinksByOwner(ctx context.Context, ownerID int64) ([]*domain.Link, error) {
	links := make([]*domain.Link, 0)

	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").Find(&links).Error
	if err != nil {
		s.log.Error("failed to list user links", zap.Int64("user_id", ownerID), zap.Error(err))
		return nil, unavailable("failed to list user links", err)
	}

	return links, nil
}

// purgeBatchSize ограничивает число id в одном IN (...)
const purgeBatchSize = 500

// DeleteLinksLastUsedBefore удаляет ссылки, не использовавшиеся с threshold.
// Для ни разу не открытых ссылок отсчет идет от created_at.
// Устаревшие id выбираются один раз под FOR UPDATE (в SQLite блокировка не нужна,
// соединение одно), клики и ссылки удаляются по этому набору.
func (s *PostgresStorage) DeleteLinksLastUsedBefore(ctx context.Context, threshold time.Time) (int64, error) {
	var deleted int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		err := tx.Model(&domain.Link{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(retentionClock+" < ?", threshold).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}

		for start := 0; start < len(ids); start += purgeBatchSize {
			batch := ids[start:min(start+purgeBatchSize, len(ids))]
			if err := tx.Where("link_id IN ?", batch).Delete(&domain.Click{}).Error; err != nil {
				return err
			}
			result := tx.Where("id IN ?", batch).Delete(&domain.Link{})
			if result.Error != nil {
				return result.Error
			}
			deleted += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("failed to purge inactive links", err)
	}

	return deleted, nil
}

// --- Analytics Methods ---

// SaveClick сохраняет запись о клике. Клик по уже удаленной ссылке не
// сохраняется и возвращает repository.ErrLinkNotFound.
func (s *PostgresStorage) SaveClick(ctx context.Context, click *domain.Click) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Link{}).Where("id = ?", click.LinkID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repository.ErrLinkNotFound
		}
		return tx.Create(click).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) || errors.Is(err, gorm.ErrForeignKeyViolated) {
			return repository.ErrLinkNotFound
		}
		s.log.Error("failed to create click record", zap.Int64("link_id", click.LinkID), zap.Error(err))
		return unavailable("failed to create click", err)
	}
	return nil
}

// GetClicksByDevice возвращает статистику кликов по типам устройств для ссылки
func (s *PostgresStorage) GetClicksByDevice(ctx context.Context, linkID int64) (map[string]int64, error) {
	var results []struct {
		DeviceType string `gorm:"column:device_type"`
		Count      int64  `gorm:"column:count"`
	}

	err := s.db.WithContext(ctx).
		Model(&domain.Click{}).
		Select("COALESCE(device_type, 'unknown') as device_type, count(*) as count").
		Where("link_id = ?", linkID).
		Group("device_type").
		Find(&results).Error

	if err != nil {
		s.log.Error("failed to get clicks by device", zap.Int64("link_id", linkID), zap.Error(err))
		return nil, unavailable("failed to get clicks by device", err)
	}

	clicksByDevice := make(map[string]int64)
	for _, result := range results {
		clicksByDevice[result.DeviceType] = result.Count
	}

	return clicksByDevice, nil
}

// Ping проверяет доступность базы данных
func (s *PostgresStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("failed to get sql.DB instance", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("database ping failed", err)
	}
	return nil
}

// --- Helper Methods ---

// unavailable помечает инфраструктурную ошибку как ErrStorageUnavailable
func unavailable(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, repository.ErrStorageUnavailable, err)
}
