// Command migrate runs schema operations for the CarKey backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"carkey/internal/config"
	"carkey/internal/database"

	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|auto|status|down <version>|tables|constraints [table]|reset -yes>")
}

func run() error {
	confirm := flag.Bool("yes", false, "confirm destructive commands (reset)")
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		log.Println("sql migrations applied")
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
		log.Println("automigrations applied")
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		log.Printf("mode=%s env=%s sql=%t auto=%t applied=%d pending=%d", status.Mode, status.Environment, status.SQL, status.AutoMigrate, len(status.Applied), len(status.Pending))
		for _, m := range status.Pending {
			log.Printf("pending: %s", m)
		}
	case "down":
		if flag.NArg() < 2 {
			return fmt.Errorf("usage: go run ./cmd/migrate down <version>")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", flag.Arg(1), err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Printf("rolled back migration %d", version)
	case "tables":
		return listTables(ctx, db)
	case "constraints":
		return listConstraints(ctx, db, flag.Arg(1))
	case "reset":
		if !*confirm {
			return fmt.Errorf("reset drops every table; rerun with -yes")
		}
		if !strings.EqualFold(cfg.Env, "development") && !strings.EqualFold(cfg.Env, "test") {
			return fmt.Errorf("reset refused in %q environment", cfg.Env)
		}
		if err := db.WithContext(ctx).Exec("DROP SCHEMA public CASCADE; CREATE SCHEMA public; GRANT ALL ON SCHEMA public TO public;").Error; err != nil {
			return fmt.Errorf("reset schema: %w", err)
		}
		log.Println("schema reset; run `up` to recreate tables")
	default:
		return usage()
	}

	return nil
}

// listTables reports every table the application expects and whether it exists.
func listTables(ctx context.Context, db *gorm.DB) error {
	tables := database.SharedShapeTables()
	for _, model := range database.PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse %T: %w", model, err)
		}
		tables[stmt.Schema.Table] = model
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	migrator := db.WithContext(ctx).Migrator()
	for _, name := range names {
		state := "missing"
		if migrator.HasTable(name) {
			state = "ok"
		}
		fmt.Printf("%-28s %s\n", name, state)
	}
	return nil
}

func listConstraints(ctx context.Context, db *gorm.DB, table string) error {
	var rows []struct {
		Relname string `gorm:"column:relname"`
		Conname string `gorm:"column:conname"`
		Def     string `gorm:"column:def"`
	}
	q := `SELECT r.relname, c.conname, pg_get_constraintdef(c.oid) AS def
		FROM pg_constraint c
		JOIN pg_class r ON c.conrelid = r.oid
		JOIN pg_namespace n ON n.oid = r.relnamespace
		WHERE n.nspname = 'public' AND (? = '' OR r.relname = ?)
		ORDER BY r.relname, c.conname`
	if err := db.WithContext(ctx).Raw(q, table, table).Scan(&rows).Error; err != nil {
		return fmt.Errorf("list constraints: %w", err)
	}
	for _, r := range rows {
		fmt.Printf("%s.%s: %s\n", r.Relname, r.Conname, r.Def)
	}
	return nil
}
