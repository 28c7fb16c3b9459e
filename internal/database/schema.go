package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"carkey/internal/config"
	"carkey/internal/middleware"

	"gorm.io/gorm"
)

// DB_SCHEMA_MODE values.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan says which schema mechanisms run for a configuration.
type SchemaPlan struct {
	Mode        string
	Environment string
	SQL         bool
	AutoMigrate bool
}

// SchemaStatus is a SchemaPlan plus the migration state of the database.
type SchemaStatus struct {
	SchemaPlan
	Applied []int
	Pending []Migration
}

// PlanSchema resolves DB_SCHEMA_MODE for the environment and driver.
//
//	mode     postgres dev    postgres prod-like           sqlite
//	hybrid   sql + auto      sql                          auto
//	sql      sql             sql                          auto
//	auto     auto            refused unless destructive   auto
//
// The SQL files are Postgres dialect, hence auto-migrate on SQLite.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	plan := SchemaPlan{
		Mode:        strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)),
		Environment: cfg.Env,
	}
	if plan.Mode == "" {
		plan.Mode = SchemaModeHybrid
	}

	switch plan.Mode {
	case SchemaModeHybrid, SchemaModeSQL, SchemaModeAuto:
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.Mode)
	}

	if cfg.DBDriver == "sqlite" {
		plan.AutoMigrate = true
		return plan, nil
	}

	prodLike := isProdLikeEnv(cfg.Env)
	switch plan.Mode {
	case SchemaModeSQL:
		plan.SQL = true
	case SchemaModeHybrid:
		plan.SQL = true
		plan.AutoMigrate = !prodLike
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.AutoMigrate = true
	}
	return plan, nil
}

func isProdLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

// ApplySchema brings the database schema up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}

	if plan.SQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if !plan.AutoMigrate {
		return nil
	}

	if plan.Mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
		middleware.Logger.Warn("auto-migrating with DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true; review schema diffs before deploying")
	}
	middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", plan.Mode), slog.String("env", cfg.Env))
	if err := AutoMigrateAll(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// GetSchemaStatus reports the plan and, when SQL migrations are in play, which
// ones have been applied and which are pending.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{SchemaPlan: plan}
	if !plan.SQL {
		return status, nil
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	for version := range applied {
		status.Applied = append(status.Applied, version)
	}
	sort.Ints(status.Applied)
	status.Pending = pendingMigrations(applied, registry)
	return status, nil
}
