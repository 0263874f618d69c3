package database

import (
	"Shorty-Backend/internal/domain"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate выполняет автоматические миграции для всех доменных моделей
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("starting database auto-migration")

	// Порядок миграций важен: ссылки ссылаются на пользователей, клики на ссылки
	models := []interface{}{
		&domain.User{},
		&domain.Link{},
		&domain.Click{},
	}

	for i, model := range models {
		modelName := fmt.Sprintf("%T", model)
		log.Debug("migrating model",
			zap.String("model", modelName),
			zap.Int("step", i+1),
			zap.Int("total", len(models)))

		if err := db.AutoMigrate(model); err != nil {
			log.Error("failed to migrate model",
				zap.String("model", modelName),
				zap.Error(err))
			return fmt.Errorf("failed to migrate model %s: %w", modelName, err)
		}
	}

	if err := ensureForeignKeys(db); err != nil {
		log.Error("failed to create foreign keys", zap.Error(err))
		return err
	}

	log.Info("database auto-migration completed successfully", zap.Int("migrated_models", len(models)))
	return nil
}

type foreignKey struct {
	model interface{}
	name  string
	ddl   string
}

// Owner и LinkID не являются ассоциациями GORM, поэтому ключи создаются вручную.
// SQLite не умеет ALTER TABLE ADD CONSTRAINT, там ключей нет, а целостность
// обеспечивает хранилище.
var foreignKeys = []foreignKey{
	{
		model: &domain.Link{},
		name:  "fk_links_owner",
		ddl:   "ALTER TABLE links ADD CONSTRAINT fk_links_owner FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE SET NULL",
	},
	{
		model: &domain.Click{},
		name:  "fk_clicks_link",
		ddl:   "ALTER TABLE clicks ADD CONSTRAINT fk_clicks_link FOREIGN KEY (link_id) REFERENCES links(id) ON DELETE CASCADE",
	},
}

func ensureForeignKeys(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, fk := range foreignKeys {
		if db.Migrator().HasConstraint(fk.model, fk.name) {
			continue
		}
		if err := db.Exec(fk.ddl).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", fk.name, err)
		}
	}
	return nil
}
