package database

import (
	"fmt"

	"carkey/internal/models"

	"gorm.io/gorm"
)

// PersistentModels returns the schema-managed models that own a single table.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Board{},
		&models.Recommend{},
		&models.BestBoard{},
		&models.Notification{},
		&models.Score{},
		&models.ErrorLog{},
		&models.Analysis{},
	}
}

// sharedShapeIndexes lists the indexed columns per shared-shape model. Index
// names are global in both Postgres and SQLite, so they are created per table
// here instead of through struct tags.
var sharedShapeIndexes = map[string][]string{
	"article": {"user_id", "created_at"},
	"reply":   {"target_id", "parent_id", "author_id"},
	"image":   {"target_id"},
}

// SharedShapeTables maps each table to the model whose shape it shares with
// sibling tables (one reply table and one image table per content kind).
func SharedShapeTables() map[string]interface{} {
	tables := map[string]interface{}{
		models.KindFeedback.TargetTable(): &models.Article{},
		models.KindNotice.TargetTable():   &models.Article{},
	}
	for _, kind := range models.ContentKinds {
		tables[kind.ReplyTable()] = &models.Reply{}
		tables[kind.ImageTable()] = &models.Image{}
	}
	return tables
}

// AutoMigrateAll creates or updates every table with GORM AutoMigrate.
func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return err
	}
	for table, model := range SharedShapeTables() {
		if err := db.Table(table).AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate %s: %w", table, err)
		}
		for _, column := range sharedShapeIndexes[shapeName(model)] {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", table, column, table, column)
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index %s.%s: %w", table, column, err)
			}
		}
	}
	return nil
}

func shapeName(model interface{}) string {
	switch model.(type) {
	case *models.Article:
		return "article"
	case *models.Reply:
		return "reply"
	case *models.Image:
		return "image"
	}
	return ""
}
