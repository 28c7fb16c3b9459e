package repository

import (
	"context"
	"fmt"

	"carkey/internal/cache"
	"carkey/internal/models"

	"gorm.io/gorm"
)

func articleOrdering(table string) orderingSpec {
	return orderingSpec{
		fields: map[string]string{
			"id":             table + ".id",
			"created_at":     table + ".created_at",
			"title":          table + ".title",
			"user__username": "users.username",
		},
		fallback: "-created_at",
		tiebreak: table + ".id DESC",
	}
}

// ArticleRepository defines persistence operations for feedback entries or
// notices. One instance serves one kind.
type ArticleRepository interface {
	Kind() models.ContentKind
	GetByID(ctx context.Context, id uint) (*models.Article, error)
	List(ctx context.Context, q ListQuery) ([]*models.Article, int64, error)
	Create(ctx context.Context, article *models.Article) error
	Update(ctx context.Context, article *models.Article) error
	// Delete removes the article with its replies and images and returns the images' object keys.
	Delete(ctx context.Context, id uint) ([]string, error)
}

type articleRepository struct {
	db       *gorm.DB
	kind     models.ContentKind
	table    string
	ordering orderingSpec
}

// NewArticleRepository returns an ArticleRepository for models.KindFeedback or models.KindNotice.
func NewArticleRepository(db *gorm.DB, kind models.ContentKind) ArticleRepository {
	if kind == models.KindBoard {
		panic("repository: boards have their own repository")
	}
	table := kind.TargetTable()
	return &articleRepository{db: db, kind: kind, table: table, ordering: articleOrdering(table)}
}

func (r *articleRepository) Kind() models.ContentKind { return r.kind }

func (r *articleRepository) withUser(db *gorm.DB) *gorm.DB {
	return db.Table(r.table).
		Joins(fmt.Sprintf("LEFT JOIN users ON users.id = %s.user_id", r.table))
}

func (r *articleRepository) GetByID(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	fetch := func() error {
		err := r.withUser(readDB(r.db).WithContext(ctx)).
			Select(r.table+".*, users.username AS user_username").
			Where(r.table+".id = ?", id).
			Take(&article).Error
		return wrapNotFound(err, r.kind.Resource(), id)
	}

	var err error
	if r.kind == models.KindNotice {
		err = cache.Aside(ctx, cache.NoticeKey(id), &article, cache.NoticeTTL, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return nil, err
	}
	article.Kind = r.kind
	return &article, nil
}

func (r *articleRepository) List(ctx context.Context, q ListQuery) ([]*models.Article, int64, error) {
	search := searchScope(q.Search, r.table+".title", r.table+".content", "users.username")

	var total int64
	if err := r.withUser(readDB(r.db).WithContext(ctx)).Scopes(search).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	articles := make([]*models.Article, 0)
	if err := r.withUser(readDB(r.db).WithContext(ctx)).
		Select(r.table+".*, users.username AS user_username").
		Scopes(search, paginate(q.Limit, q.Offset)).
		Order(r.ordering.clause(q.Ordering)).
		Find(&articles).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	for _, a := range articles {
		a.Kind = r.kind
	}
	return articles, total, nil
}

func (r *articleRepository) Create(ctx context.Context, article *models.Article) error {
	if err := r.db.WithContext(ctx).Table(r.table).Create(article).Error; err != nil {
		return models.NewInternalError(err)
	}
	article.Kind = r.kind
	return nil
}

func (r *articleRepository) Update(ctx context.Context, article *models.Article) error {
	res := r.db.WithContext(ctx).Table(r.table).Where("id = ?", article.ID).
		Updates(map[string]interface{}{
			"title":   article.Title,
			"content": article.Content,
		})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(r.kind.Resource(), article.ID)
	}
	r.invalidate(ctx, article.ID)
	return nil
}

func (r *articleRepository) Delete(ctx context.Context, id uint) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table(r.table).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.NewNotFoundError(r.kind.Resource(), id)
		}
		var err error
		keys, err = purgeTargets(tx, r.kind, []uint{id})
		return err
	})
	if err != nil {
		return nil, internal(err)
	}
	r.invalidate(ctx, id)
	return keys, nil
}

func (r *articleRepository) invalidate(ctx context.Context, id uint) {
	if r.kind == models.KindNotice {
		cache.InvalidateNotice(ctx, id)
	}
}
