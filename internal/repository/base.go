// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"strings"

	"carkey/internal/database"
	"carkey/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ListQuery carries the list parameters shared by every browsable resource.
type ListQuery struct {
	Search   string
	Ordering string
	Limit    int
	Offset   int
	// ViewerID is the requesting user, used for per-viewer fields. Zero means anonymous.
	ViewerID uint
}

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// orderingSpec whitelists the ?ordering= fields of one resource.
type orderingSpec struct {
	fields   map[string]string
	fallback string
	tiebreak string
}

// clause turns "-recommend_count,title" into a safe ORDER BY list. Unknown
// fields are dropped; an empty result falls back to the resource default.
func (o orderingSpec) clause(raw string) string {
	parts := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		col, ok := o.fields[field]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		if desc {
			parts = append(parts, col+" DESC")
		} else {
			parts = append(parts, col+" ASC")
		}
	}
	if len(parts) == 0 {
		return o.clause(o.fallback)
	}
	if !seen[strings.Fields(o.tiebreak)[0]] {
		parts = append(parts, o.tiebreak)
	}
	return strings.Join(parts, ", ")
}

// searchScope matches term case-insensitively against any of columns.
func searchScope(term string, columns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		term = strings.TrimSpace(term)
		if term == "" || len(columns) == 0 {
			return db
		}
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		conds := make([]string, len(columns))
		args := make([]interface{}, len(columns))
		for i, col := range columns {
			conds[i] = "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
			args[i] = pattern
		}
		return db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func paginate(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	}
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

// wrapNotFound maps gorm.ErrRecordNotFound to a NOT_FOUND AppError and other errors to INTERNAL_ERROR.
func wrapNotFound(err error, resource string, id interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

func internal(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}
