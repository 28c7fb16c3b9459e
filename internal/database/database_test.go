package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"carkey/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestConfigurePool(t *testing.T) {
	cfg := &config.Config{
		DBDriver:                 "sqlite",
		DBSQLitePath:             ":memory:",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	db, err := gorm.Open(Dialector(cfg), GormConfig())
	require.NoError(t, err)

	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	cfg.DBDriver = "postgres"
	require.NoError(t, configurePool(db, cfg))
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestConnectWithOptions_SQLiteAppliesSchema(t *testing.T) {
	cfg := &config.Config{
		Env:          "development",
		DBDriver:     "sqlite",
		DBSQLitePath: "file:connect_test?mode=memory&cache=shared",
		DBSchemaMode: SchemaModeHybrid,
	}
	db, err := ConnectWithOptions(cfg, ConnectOptions{ApplySchema: true})
	require.NoError(t, err)
	t.Cleanup(func() { DB = nil })

	assert.True(t, db.Migrator().HasTable("boards"))
	assert.True(t, db.Migrator().HasTable("notice_replies"))
	assert.Nil(t, GetReadDB())
}

func TestPostgresDSN(t *testing.T) {
	cfg := &config.Config{DBName: "carkey"}
	dsn := postgresDSN(cfg, "db", "5432", "u", "p")
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=carkey sslmode=disable", dsn)

	cfg.DBSSLMode = "require"
	assert.Contains(t, postgresDSN(cfg, "db", "5432", "u", "p"), "sslmode=require")
}

func TestStatementVerb(t *testing.T) {
	assert.Equal(t, "select", statementVerb(`SELECT * FROM "boards"`))
	assert.Equal(t, "insert", statementVerb("  insert into x values (1)"))
	assert.Equal(t, "other", statementVerb("CREATE TABLE x ()"))
	assert.Equal(t, "other", statementVerb(""))
}

func TestCustomGormLogger_LogMode(t *testing.T) {
	l := NewGormLogger(nil)
	silent := l.LogMode(logger.Silent).(*CustomGormLogger)
	assert.Equal(t, logger.Silent, silent.Config.LogLevel)
	assert.Equal(t, logger.Warn, l.Config.LogLevel)

	// Silent never touches the slog logger, so a nil one is safe.
	assert.NotPanics(t, func() {
		silent.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, errors.New("x"))
	})
}
