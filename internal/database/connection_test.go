package database

import (
	"Shorty-Backend/internal/config"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewConnection(t *testing.T) {
	log := zap.NewNop()

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Database{
			Driver:          "sqlite",
			Path:            filepath.Join(t.TempDir(), "shorty.db"),
			MaxIdleConns:    1,
			MaxOpenConns:    10,
			ConnMaxLifetime: "not-a-duration",
		}

		db, err := NewConnection(cfg, log, false)
		require.NoError(t, err)
		require.NoError(t, AutoMigrate(db, log))

		assert.True(t, db.Migrator().HasTable("users"))
		assert.True(t, db.Migrator().HasTable("links"))
		assert.True(t, db.Migrator().HasTable("clicks"))
		assert.True(t, db.Migrator().HasIndex("links", "idx_links_short_code"))

		sqlDB, err := db.DB()
		require.NoError(t, err)
		assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

		assert.NoError(t, Close(db, log))
	})

	t.Run("unsupported driver", func(t *testing.T) {
		_, err := NewConnection(&config.Database{Driver: "mysql"}, log, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})
}
