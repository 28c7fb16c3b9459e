package repository

import (
	"context"
	"errors"
	"time"

	"carkey/internal/cache"
	"carkey/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// GetCredentials loads the user with the password hash, bypassing the cache.
	GetCredentials(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsUsername(ctx context.Context, username string) (bool, error)
	ExistsEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetPassword(ctx context.Context, id uint, hash string) error
	SetStaff(ctx context.Context, id uint, staff bool) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	// Delete removes the user with all of their content and returns the object
	// keys of images that went with it.
	Delete(ctx context.Context, id uint) ([]string, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		return wrapNotFound(readDB(r.db).WithContext(ctx).First(&user, id).Error, "User", id)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetCredentials(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, wrapNotFound(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

// findOne returns nil, nil when no row matches.
func (r *userRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) ExistsUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username = ?", username)
}

// ExistsEmail matches case-insensitively; addresses are stored as typed.
func (r *userRepository) ExistsEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "LOWER(email) = LOWER(?)", email)
}

func (r *userRepository) exists(ctx context.Context, query string, arg interface{}) (bool, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.User{}).Where(query, arg).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("A user with that username already exists.")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Update writes the profile columns. Password and last_login have their own setters.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Model(&models.User{ID: user.ID}).
		Select("username", "email", "is_staff").
		Updates(map[string]interface{}{
			"username": user.Username,
			"email":    user.Email,
			"is_staff": user.IsStaff,
		}).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("A user with that username already exists.")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) SetPassword(ctx context.Context, id uint, hash string) error {
	return r.updateColumn(ctx, id, "password", hash)
}

func (r *userRepository) SetStaff(ctx context.Context, id uint, staff bool) error {
	return r.updateColumn(ctx, id, "is_staff", staff)
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumn(ctx, id, "last_login", at)
}

func (r *userRepository) updateColumn(ctx context.Context, id uint, column string, value interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&models.User{}, id).Error; err != nil {
			return wrapNotFound(err, "User", id)
		}
		for _, kind := range models.ContentKinds {
			var ids []uint
			if err := tx.Table(kind.TargetTable()).Where(kind.OwnerColumn()+" = ?", id).Pluck("id", &ids).Error; err != nil {
				return err
			}
			purged, err := purgeTargets(tx, kind, ids)
			if err != nil {
				return err
			}
			keys = append(keys, purged...)
			var replyIDs []uint
			if err := tx.Table(kind.ReplyTable()).Where("author_id = ?", id).Pluck("id", &replyIDs).Error; err != nil {
				return err
			}
			if err := deleteReplies(tx, kind, replyIDs); err != nil {
				return err
			}
		}
		var liked []uint
		if err := tx.Model(&models.Recommend{}).Where("user_id = ?", id).Pluck("board_id", &liked).Error; err != nil {
			return err
		}
		for _, model := range []interface{}{&models.Recommend{}, &models.Score{}, &models.Analysis{}} {
			if err := tx.Where("user_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if len(liked) > 0 {
			if err := tx.Exec(recountSQL, liked).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("to_user_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		return nil, internal(err)
	}
	cache.InvalidateUser(ctx, id)
	cache.InvalidateBestList(ctx)
	return keys, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	if err := readDB(r.db).WithContext(ctx).Order("id ASC").Scopes(paginate(limit, offset)).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
