package repository

import (
	"context"
	"errors"

	"carkey/internal/cache"
	"carkey/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	boardOrdering = orderingSpec{
		fields: map[string]string{
			"id":              "boards.id",
			"post_date":       "boards.post_date",
			"recommend_count": "boards.recommend_count",
		},
		fallback: "-post_date",
		tiebreak: "boards.id DESC",
	}
	bestBoardOrdering = orderingSpec{
		fields: map[string]string{
			"id":               "boards.id",
			"post_date":        "boards.post_date",
			"recommend_count":  "boards.recommend_count",
			"title":            "boards.title",
			"author__username": "users.username",
		},
		fallback: "-recommend_count",
		tiebreak: "boards.id DESC",
	}
)

const recountSQL = `UPDATE boards SET recommend_count =
	(SELECT COUNT(*) FROM recommends WHERE recommends.board_id = boards.id)
	WHERE id IN ?`

// BoardRepository defines persistence operations for boards and their likes.
type BoardRepository interface {
	GetByID(ctx context.Context, id, viewerID uint) (*models.Board, error)
	List(ctx context.Context, q ListQuery) ([]*models.Board, int64, error)
	// ListBest lists boards recorded in best_boards.
	ListBest(ctx context.Context, q ListQuery) ([]*models.Board, int64, error)
	GetBest(ctx context.Context, id, viewerID uint) (*models.Board, error)
	Create(ctx context.Context, board *models.Board) error
	Update(ctx context.Context, board *models.Board) error
	// Delete removes the board and its dependents and returns the object keys of its images.
	Delete(ctx context.Context, id uint) ([]string, error)
	// AddRecommend reports false when the user had already liked the board.
	AddRecommend(ctx context.Context, boardID, userID uint) (bool, error)
	RemoveRecommend(ctx context.Context, boardID, userID uint) (bool, error)
	// RecountRecommends stores and returns COUNT(recommends) for the board.
	RecountRecommends(ctx context.Context, boardID uint) (int, error)
	MarkBest(ctx context.Context, boardID uint) error
	// UnmarkBest drops the board from best_boards. Missing rows are not an error.
	UnmarkBest(ctx context.Context, boardID uint) error
}

type boardRepository struct {
	db *gorm.DB
}

// NewBoardRepository returns a new BoardRepository implementation.
func NewBoardRepository(db *gorm.DB) BoardRepository {
	return &boardRepository{db: db}
}

// applyBoardDetails joins the author and computes recommended_by_me for viewerID.
func applyBoardDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	db = db.Table("boards").Joins("LEFT JOIN users ON users.id = boards.author_id")
	if viewerID == 0 {
		return db.Select("boards.*, users.username AS author_username, false AS recommended_by_me")
	}
	return db.Select("boards.*, users.username AS author_username, "+
		"EXISTS(SELECT 1 FROM recommends WHERE recommends.board_id = boards.id AND recommends.user_id = ?) AS recommended_by_me", viewerID)
}

func (r *boardRepository) GetByID(ctx context.Context, id, viewerID uint) (*models.Board, error) {
	var board models.Board
	err := applyBoardDetails(readDB(r.db).WithContext(ctx), viewerID).
		Where("boards.id = ?", id).
		Take(&board).Error
	if err != nil {
		return nil, wrapNotFound(err, "Board", id)
	}
	return &board, nil
}

func (r *boardRepository) List(ctx context.Context, q ListQuery) ([]*models.Board, int64, error) {
	return r.list(ctx, q, boardOrdering, nil)
}

func (r *boardRepository) ListBest(ctx context.Context, q ListQuery) ([]*models.Board, int64, error) {
	onlyBest := func(db *gorm.DB) *gorm.DB {
		return db.Where("boards.id IN (SELECT board_id FROM best_boards)")
	}
	if q.Search != "" || q.Offset > 0 {
		return r.list(ctx, q, bestBoardOrdering, onlyBest)
	}

	// The anonymous first page is shared by everyone; the viewer's own likes are filled in afterwards.
	type page struct {
		Boards []*models.Board `json:"boards"`
		Total  int64           `json:"total"`
	}
	var cached page
	key := cache.BestListKey(cache.BestListVersion(ctx), bestBoardOrdering.clause(q.Ordering))
	anon := q
	anon.ViewerID = 0
	err := cache.Aside(ctx, key, &cached, cache.BestListTTL, func() error {
		boards, total, err := r.list(ctx, anon, bestBoardOrdering, onlyBest)
		if err != nil {
			return err
		}
		cached = page{Boards: boards, Total: total}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if q.ViewerID != 0 && len(cached.Boards) > 0 {
		if err := r.fillRecommendedByMe(ctx, cached.Boards, q.ViewerID); err != nil {
			return nil, 0, err
		}
	}
	return cached.Boards, cached.Total, nil
}

func (r *boardRepository) fillRecommendedByMe(ctx context.Context, boards []*models.Board, viewerID uint) error {
	ids := make([]uint, len(boards))
	for i, b := range boards {
		ids[i] = b.ID
	}
	var liked []uint
	if err := readDB(r.db).WithContext(ctx).Model(&models.Recommend{}).
		Where("user_id = ? AND board_id IN ?", viewerID, ids).
		Pluck("board_id", &liked).Error; err != nil {
		return models.NewInternalError(err)
	}
	set := make(map[uint]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	for _, b := range boards {
		b.RecommendedByMe = set[b.ID]
	}
	return nil
}

func (r *boardRepository) list(ctx context.Context, q ListQuery, ordering orderingSpec, scope func(*gorm.DB) *gorm.DB) ([]*models.Board, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		db = db.Scopes(searchScope(q.Search, "boards.title", "boards.content", "users.username"))
		if scope != nil {
			db = db.Scopes(scope)
		}
		return db
	}

	var total int64
	if err := readDB(r.db).WithContext(ctx).Table("boards").
		Joins("LEFT JOIN users ON users.id = boards.author_id").
		Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	boards := make([]*models.Board, 0)
	if err := applyBoardDetails(readDB(r.db).WithContext(ctx), q.ViewerID).
		Scopes(filter, paginate(q.Limit, q.Offset)).
		Order(ordering.clause(q.Ordering)).
		Find(&boards).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return boards, total, nil
}

func (r *boardRepository) GetBest(ctx context.Context, id, viewerID uint) (*models.Board, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.BestBoard{}).Where("board_id = ?", id).Count(&count).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if count == 0 {
		return nil, models.NewNotFoundError("Board", id)
	}
	return r.GetByID(ctx, id, viewerID)
}

func (r *boardRepository) Create(ctx context.Context, board *models.Board) error {
	if err := r.db.WithContext(ctx).Create(board).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *boardRepository) Update(ctx context.Context, board *models.Board) error {
	res := r.db.WithContext(ctx).Model(&models.Board{}).Where("id = ?", board.ID).
		Updates(map[string]interface{}{
			"title":   board.Title,
			"content": board.Content,
			"cost":    board.Cost,
		})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Board", board.ID)
	}
	cache.InvalidateBestList(ctx)
	return nil
}

func (r *boardRepository) Delete(ctx context.Context, id uint) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Board{}, id).Error; err != nil {
			return wrapNotFound(err, "Board", id)
		}
		var err error
		keys, err = purgeTargets(tx, models.KindBoard, []uint{id})
		return err
	})
	if err != nil {
		return nil, internal(err)
	}
	cache.InvalidateBestList(ctx)
	return keys, nil
}

func (r *boardRepository) AddRecommend(ctx context.Context, boardID, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Recommend{BoardID: boardID, UserID: userID})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *boardRepository) RemoveRecommend(ctx context.Context, boardID, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		Delete(&models.Recommend{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *boardRepository) RecountRecommends(ctx context.Context, boardID uint) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Recommend{}).Where("board_id = ?", boardID).Count(&count).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Board{}).Where("id = ?", boardID).Update("recommend_count", count)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Board", boardID)
		}
		return nil
	})
	if err != nil {
		return 0, internal(err)
	}
	cache.InvalidateBestList(ctx)
	return int(count), nil
}

// MarkBest records the board in best_boards, refreshing update_date when it is already there.
func (r *boardRepository) MarkBest(ctx context.Context, boardID uint) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "board_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"update_date"}),
	}).Create(&models.BestBoard{BoardID: boardID}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateBestList(ctx)
	return nil
}

func (r *boardRepository) UnmarkBest(ctx context.Context, boardID uint) error {
	res := r.db.WithContext(ctx).Where("board_id = ?", boardID).Delete(&models.BestBoard{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		cache.InvalidateBestList(ctx)
	}
	return nil
}

// IsNotFound reports whether err is a NOT_FOUND AppError.
func IsNotFound(err error) bool {
	var appErr *models.AppError
	return errors.As(err, &appErr) && appErr.Code == models.CodeNotFound
}
