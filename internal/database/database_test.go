package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"catalogsync/internal/models"
)

func TestNewSQLiteMigrates(t *testing.T) {
	db, err := New("sqlite://file:database_test?mode=memory&cache=shared", "silent")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping())
	for _, model := range models.All() {
		assert.True(t, db.DB.Migrator().HasTable(model))
	}
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, gormLogLevel("debug"))
	assert.Equal(t, logger.Warn, gormLogLevel("info"))
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Error, gormLogLevel("error"))
}
