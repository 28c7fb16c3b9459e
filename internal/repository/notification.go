package repository

import (
	"context"

	"carkey/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository defines persistence operations for notification inboxes.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	// ListForUser returns the user's notifications newest first.
	ListForUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Notification, int64, error)
	GetForUser(ctx context.Context, id, userID uint) (*models.Notification, error)
	MarkRead(ctx context.Context, id, userID uint) error
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	UnreadCount(ctx context.Context, userID uint) (int64, error)
	DeleteForUser(ctx context.Context, id, userID uint) error
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository returns a new NotificationRepository implementation.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// withDetails joins the board title and the board reply comment.
func withDetails(db *gorm.DB) *gorm.DB {
	return db.Table("notifications").
		Select("notifications.*, boards.title AS board_title, replies.comment AS reply_comment").
		Joins("LEFT JOIN boards ON boards.id = notifications.board_id").
		Joins("LEFT JOIN replies ON replies.id = notifications.reply_id")
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Notification, int64, error) {
	var total int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Notification{}).
		Where("to_user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	items := make([]*models.Notification, 0)
	if err := withDetails(readDB(r.db).WithContext(ctx)).
		Where("notifications.to_user_id = ?", userID).
		Order("notifications.created_at DESC, notifications.id DESC").
		Scopes(paginate(limit, offset)).
		Find(&items).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return items, total, nil
}

func (r *notificationRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Notification, error) {
	var n models.Notification
	err := withDetails(readDB(r.db).WithContext(ctx)).
		Where("notifications.id = ? AND notifications.to_user_id = ?", id, userID).
		Take(&n).Error
	if err != nil {
		return nil, wrapNotFound(err, "Notification", id)
	}
	return &n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND to_user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("to_user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Notification{}).
		Where("to_user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *notificationRepository) DeleteForUser(ctx context.Context, id, userID uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND to_user_id = ?", id, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}
