package repository

import (
	"context"

	"carkey/internal/models"

	"gorm.io/gorm"
)

// ImageRepository defines persistence operations for the image attachments of one content kind.
type ImageRepository interface {
	Kind() models.ContentKind
	GetByID(ctx context.Context, id uint) (*models.Image, error)
	List(ctx context.Context, limit, offset int) ([]*models.Image, int64, error)
	ListByTargets(ctx context.Context, targetIDs []uint) (map[uint][]models.Image, error)
	CreateBatch(ctx context.Context, images []*models.Image) error
	Delete(ctx context.Context, id uint) error
	// ReferencedKeys reports which of keys are still the object_key of some row.
	ReferencedKeys(ctx context.Context, keys []string) (map[string]bool, error)
}

type imageRepository struct {
	db    *gorm.DB
	kind  models.ContentKind
	table string
}

// NewImageRepository returns an ImageRepository for kind.
func NewImageRepository(db *gorm.DB, kind models.ContentKind) ImageRepository {
	return &imageRepository{db: db, kind: kind, table: kind.ImageTable()}
}

func (r *imageRepository) Kind() models.ContentKind { return r.kind }

func (r *imageRepository) GetByID(ctx context.Context, id uint) (*models.Image, error) {
	var image models.Image
	if err := readDB(r.db).WithContext(ctx).Table(r.table).Where("id = ?", id).Take(&image).Error; err != nil {
		return nil, wrapNotFound(err, "Image", id)
	}
	image.Kind = r.kind
	return &image, nil
}

func (r *imageRepository) List(ctx context.Context, limit, offset int) ([]*models.Image, int64, error) {
	var total int64
	if err := readDB(r.db).WithContext(ctx).Table(r.table).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	images := make([]*models.Image, 0)
	if err := readDB(r.db).WithContext(ctx).Table(r.table).
		Order("id DESC").
		Scopes(paginate(limit, offset)).
		Find(&images).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	for _, img := range images {
		img.Kind = r.kind
	}
	return images, total, nil
}

func (r *imageRepository) ListByTargets(ctx context.Context, targetIDs []uint) (map[uint][]models.Image, error) {
	grouped := make(map[uint][]models.Image, len(targetIDs))
	if len(targetIDs) == 0 {
		return grouped, nil
	}
	var images []models.Image
	if err := readDB(r.db).WithContext(ctx).Table(r.table).
		Where("target_id IN ?", targetIDs).
		Order("id ASC").
		Find(&images).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, img := range images {
		img.Kind = r.kind
		grouped[img.TargetID] = append(grouped[img.TargetID], img)
	}
	return grouped, nil
}

// CreateBatch inserts all images in one transaction.
func (r *imageRepository) CreateBatch(ctx context.Context, images []*models.Image) error {
	if len(images) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Table(r.table).Create(images).Error; err != nil {
		return models.NewInternalError(err)
	}
	for _, img := range images {
		img.Kind = r.kind
	}
	return nil
}

func (r *imageRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Table(r.table).Where("id = ?", id).Delete(&models.Image{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Image", id)
	}
	return nil
}

func (r *imageRepository) ReferencedKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}
	var referenced []string
	if err := r.db.WithContext(ctx).Table(r.table).
		Where("object_key IN ?", keys).
		Distinct().
		Pluck("object_key", &referenced).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, key := range referenced {
		found[key] = true
	}
	return found, nil
}
