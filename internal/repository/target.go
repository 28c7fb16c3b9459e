package repository

import (
	"context"

	"carkey/internal/models"

	"gorm.io/gorm"
)

// TargetRepository answers ownership questions about any content kind without loading the row.
type TargetRepository interface {
	// Owner returns the author of the target, or NOT_FOUND.
	Owner(ctx context.Context, kind models.ContentKind, id uint) (uint, error)
}

type targetRepository struct {
	db *gorm.DB
}

// NewTargetRepository returns a new TargetRepository implementation.
func NewTargetRepository(db *gorm.DB) TargetRepository {
	return &targetRepository{db: db}
}

func (r *targetRepository) Owner(ctx context.Context, kind models.ContentKind, id uint) (uint, error) {
	var owners []uint
	if err := readDB(r.db).WithContext(ctx).Table(kind.TargetTable()).
		Where("id = ?", id).
		Limit(1).
		Pluck(kind.OwnerColumn(), &owners).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	if len(owners) == 0 {
		return 0, models.NewNotFoundError(kind.Resource(), id)
	}
	return owners[0], nil
}
