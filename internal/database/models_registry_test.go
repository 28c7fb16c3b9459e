package database

import (
	"testing"

	"carkey/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSharedShapeTables_CoversEveryKind(t *testing.T) {
	tables := SharedShapeTables()
	for _, kind := range models.ContentKinds {
		assert.IsType(t, &models.Reply{}, tables[kind.ReplyTable()], kind)
		assert.IsType(t, &models.Image{}, tables[kind.ImageTable()], kind)
	}
	assert.IsType(t, &models.Article{}, tables["feedbacks"])
	assert.IsType(t, &models.Article{}, tables["notices"])
}

func TestAutoMigrateAll_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), GormConfig())
	require.NoError(t, err)

	require.NoError(t, AutoMigrateAll(db))

	for _, table := range []string{
		"users", "boards", "recommends", "best_boards", "notifications", "scores", "error_logs", "analyses",
		"replies", "feedback_replies", "notice_replies",
		"board_images", "feedback_images", "notice_images",
		"feedbacks", "notices",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	assert.True(t, db.Migrator().HasColumn(&models.Board{}, "recommend_count"))
	assert.False(t, db.Migrator().HasColumn(&models.Board{}, "author_username"))
	assert.True(t, db.Table("notice_images").Migrator().HasColumn(&models.Image{}, "image"))
	assert.True(t, db.Table("replies").Migrator().HasColumn(&models.Reply{}, "parent_id"))

	// Running twice is a no-op.
	require.NoError(t, AutoMigrateAll(db))
}

func TestAutoMigrateAll_CreatesPerTableIndexes(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:automigrate_idx?mode=memory&cache=shared"), GormConfig())
	require.NoError(t, err)
	require.NoError(t, AutoMigrateAll(db))

	for _, kind := range models.ContentKinds {
		assert.True(t, db.Migrator().HasIndex(kind.ReplyTable(), "idx_"+kind.ReplyTable()+"_target_id"), kind)
		assert.True(t, db.Migrator().HasIndex(kind.ImageTable(), "idx_"+kind.ImageTable()+"_target_id"), kind)
	}
	assert.True(t, db.Migrator().HasIndex("notices", "idx_notices_user_id"))
}
