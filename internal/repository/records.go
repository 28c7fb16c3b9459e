package repository

import (
	"context"

	"carkey/internal/models"

	"gorm.io/gorm"
)

// RecordRepository is plain CRUD over one admin-managed table.
type RecordRepository[T any] interface {
	Resource() string
	List(ctx context.Context, limit, offset int) ([]*T, int64, error)
	GetByID(ctx context.Context, id uint) (*T, error)
	Create(ctx context.Context, record *T) error
	// Update writes only the given columns.
	Update(ctx context.Context, id uint, columns map[string]interface{}) (*T, error)
	Delete(ctx context.Context, id uint) error
}

type recordRepository[T any] struct {
	db       *gorm.DB
	resource string
	order    string
}

// NewRecordRepository returns a RecordRepository listing rows in order.
func NewRecordRepository[T any](db *gorm.DB, resource, order string) RecordRepository[T] {
	return &recordRepository[T]{db: db, resource: resource, order: order}
}

func NewScoreRepository(db *gorm.DB) RecordRepository[models.Score] {
	return NewRecordRepository[models.Score](db, "Score", "created_at DESC, id DESC")
}

func NewErrorLogRepository(db *gorm.DB) RecordRepository[models.ErrorLog] {
	return NewRecordRepository[models.ErrorLog](db, "ErrorLog", "timestamp DESC, id DESC")
}

func NewAnalysisRepository(db *gorm.DB) RecordRepository[models.Analysis] {
	return NewRecordRepository[models.Analysis](db, "Analysis", "analyze_datetime DESC, id DESC")
}

func NewRecommendRecordRepository(db *gorm.DB) RecordRepository[models.Recommend] {
	return NewRecordRepository[models.Recommend](db, "Recommend", "id DESC")
}

func NewBestBoardRecordRepository(db *gorm.DB) RecordRepository[models.BestBoard] {
	return NewRecordRepository[models.BestBoard](db, "BestBoard", "update_date DESC, id DESC")
}

func (r *recordRepository[T]) Resource() string { return r.resource }

func (r *recordRepository[T]) List(ctx context.Context, limit, offset int) ([]*T, int64, error) {
	var total int64
	if err := readDB(r.db).WithContext(ctx).Model(new(T)).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	rows := make([]*T, 0)
	if err := readDB(r.db).WithContext(ctx).Order(r.order).Scopes(paginate(limit, offset)).Find(&rows).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return rows, total, nil
}

func (r *recordRepository[T]) GetByID(ctx context.Context, id uint) (*T, error) {
	record := new(T)
	if err := readDB(r.db).WithContext(ctx).First(record, id).Error; err != nil {
		return nil, wrapNotFound(err, r.resource, id)
	}
	return record, nil
}

func (r *recordRepository[T]) Create(ctx context.Context, record *T) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError(r.resource + " already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *recordRepository[T]) Update(ctx context.Context, id uint, columns map[string]interface{}) (*T, error) {
	if len(columns) > 0 {
		res := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(columns)
		if res.Error != nil {
			if isUniqueConstraintError(res.Error) {
				return nil, models.NewValidationError(r.resource + " already exists")
			}
			return nil, models.NewInternalError(res.Error)
		}
	}
	record := new(T)
	if err := r.db.WithContext(ctx).First(record, id).Error; err != nil {
		return nil, wrapNotFound(err, r.resource, id)
	}
	return record, nil
}

func (r *recordRepository[T]) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(new(T), id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(r.resource, id)
	}
	return nil
}
