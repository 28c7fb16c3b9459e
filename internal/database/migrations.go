package database

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"carkey/internal/middleware"

	"gorm.io/gorm"
)

// Migration is one embedded up/down SQL pair, named NNNNNN_name.{up,down}.sql.
type Migration struct {
	Version  int
	Name     string
	Up       string
	Down     string
	Checksum string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var registry = mustParseMigrations(migrationFS, "migrations")

func mustParseMigrations(fsys fs.FS, dir string) []Migration {
	ms, err := parseMigrations(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return ms
}

// parseMigrations reads every up script in dir with its down script. Badly
// named files, missing down scripts and duplicate versions are errors.
func parseMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(name, ".up.sql")
		prefix, label, ok := strings.Cut(base, "_")
		if !ok || label == "" {
			return nil, fmt.Errorf("%s: expected NNNNNN_name.up.sql", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("%s: version must be a positive number", name)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%s: version %d already used by %s", name, version, prev)
		}
		seen[version] = name

		up, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		down, err := fs.ReadFile(fsys, path.Join(dir, base+".down.sql"))
		if err != nil {
			return nil, fmt.Errorf("%s: missing down script: %w", name, err)
		}

		sum := sha256.Sum256(up)
		out = append(out, Migration{
			Version:  version,
			Name:     label,
			Up:       string(up),
			Down:     string(down),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrations returns the embedded migrations in version order.
func Migrations() []Migration {
	return append([]Migration(nil), registry...)
}

func findMigration(version int) (Migration, bool) {
	for _, m := range registry {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}

// MigrationLog is one applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	Checksum  string    `gorm:"size:64"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

const ensureMigrationLogs = `
CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	checksum VARCHAR(64) NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE migration_logs ADD COLUMN IF NOT EXISTS checksum VARCHAR(64) NOT NULL DEFAULT '';`

// appliedMigrations maps applied versions to the checksum recorded with them.
// A missing table means nothing has been applied yet.
func appliedMigrations(ctx context.Context, db *gorm.DB) (map[int]string, error) {
	var logs []MigrationLog
	if err := db.WithContext(ctx).Order("version").Find(&logs).Error; err != nil {
		if isMissingTableError(err) {
			return map[int]string{}, nil
		}
		return nil, fmt.Errorf("read migration_logs: %w", err)
	}
	applied := make(map[int]string, len(logs))
	for _, l := range logs {
		applied[l.Version] = l.Checksum
	}
	return applied, nil
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// checkDrift fails when the database records versions this build does not
// know, or when an applied script was edited afterwards. Rows written before
// checksums were tracked have an empty checksum and are not compared.
func checkDrift(applied map[int]string, known []Migration) error {
	byVersion := make(map[int]Migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}

	var unknown, edited []string
	for version, sum := range applied {
		m, ok := byVersion[version]
		switch {
		case !ok:
			unknown = append(unknown, fmt.Sprintf("%06d", version))
		case sum != "" && sum != m.Checksum:
			edited = append(edited, m.String())
		}
	}
	sort.Strings(unknown)
	sort.Strings(edited)

	switch {
	case len(unknown) > 0:
		return fmt.Errorf("migration_logs has versions missing from this build: %s (roll them back with the build that added them, or rebuild the database)",
			strings.Join(unknown, ", "))
	case len(edited) > 0:
		return fmt.Errorf("applied migrations were modified after they ran: %s (add a new migration instead)",
			strings.Join(edited, ", "))
	}
	return nil
}

func pendingMigrations(applied map[int]string, known []Migration) []Migration {
	var pending []Migration
	for _, m := range known {
		if _, ok := applied[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending
}

// RunMigrations applies every pending migration, each in its own transaction
// together with its migration_logs row.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec(ensureMigrationLogs).Error; err != nil {
		return fmt.Errorf("ensure migration_logs: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	if err := checkDrift(applied, registry); err != nil {
		return err
	}

	for _, m := range pendingMigrations(applied, registry) {
		middleware.Logger.Info("Applying migration", slog.String("migration", m.String()))
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.Up).Error; err != nil {
				return fmt.Errorf("apply %s: %w", m, err)
			}
			return tx.Create(&MigrationLog{Version: m.Version, Name: m.Name, Checksum: m.Checksum}).Error
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RollbackMigration runs the down script of an applied migration and forgets it.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m, ok := findMigration(version)
	if !ok {
		return fmt.Errorf("migration version %d not found", version)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	if _, ok := applied[version]; !ok {
		return fmt.Errorf("migration %s has not been applied", m)
	}

	middleware.Logger.Info("Rolling back migration", slog.String("migration", m.String()))
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.Down).Error; err != nil {
			return fmt.Errorf("roll back %s: %w", m, err)
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
}
