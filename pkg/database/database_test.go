package database

import (
	"context"
	"path/filepath"
	"testing"

	"cdas-go/internal/config"
	"cdas-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMigrates(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "cdas.db")
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&model.Document{}))
	assert.True(t, db.Migrator().HasTable(&model.Subject{}))
	assert.FileExists(t, dsn)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNewRedis_DisabledWithoutAddr(t *testing.T) {
	rdb, err := NewRedis(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, rdb)
}
