package repository

import (
	"context"
	"fmt"

	"carkey/internal/models"

	"gorm.io/gorm"
)

// ReplyRepository defines persistence operations for the replies of one content kind.
type ReplyRepository interface {
	Kind() models.ContentKind
	GetByID(ctx context.Context, id uint) (*models.Reply, error)
	// ListByTarget returns every reply on the target in created_at order.
	ListByTarget(ctx context.Context, targetID uint) ([]*models.Reply, error)
	// ListByTargets groups the replies of several targets by target id.
	ListByTargets(ctx context.Context, targetIDs []uint) (map[uint][]*models.Reply, error)
	// List pages through all replies, newest first.
	List(ctx context.Context, limit, offset int) ([]*models.Reply, int64, error)
	// Descendants returns every reply below the given roots in created_at order.
	Descendants(ctx context.Context, rootIDs []uint) ([]*models.Reply, error)
	Create(ctx context.Context, reply *models.Reply) error
	UpdateComment(ctx context.Context, id uint, comment string) error
	// Delete removes the reply and all of its descendants.
	Delete(ctx context.Context, id uint) error
}

type replyRepository struct {
	db    *gorm.DB
	kind  models.ContentKind
	table string
}

// NewReplyRepository returns a ReplyRepository for kind.
func NewReplyRepository(db *gorm.DB, kind models.ContentKind) ReplyRepository {
	return &replyRepository{db: db, kind: kind, table: kind.ReplyTable()}
}

func (r *replyRepository) Kind() models.ContentKind { return r.kind }

func (r *replyRepository) base(ctx context.Context) *gorm.DB {
	return readDB(r.db).WithContext(ctx).Table(r.table).
		Select(r.table + ".*, users.username AS author_username").
		Joins(fmt.Sprintf("LEFT JOIN users ON users.id = %s.author_id", r.table))
}

func (r *replyRepository) tag(replies []*models.Reply) []*models.Reply {
	for _, reply := range replies {
		reply.Kind = r.kind
	}
	return replies
}

func (r *replyRepository) GetByID(ctx context.Context, id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := r.base(ctx).Where(r.table+".id = ?", id).Take(&reply).Error; err != nil {
		return nil, wrapNotFound(err, "Reply", id)
	}
	reply.Kind = r.kind
	return &reply, nil
}

func (r *replyRepository) ListByTarget(ctx context.Context, targetID uint) ([]*models.Reply, error) {
	grouped, err := r.ListByTargets(ctx, []uint{targetID})
	if err != nil {
		return nil, err
	}
	if replies, ok := grouped[targetID]; ok {
		return replies, nil
	}
	return []*models.Reply{}, nil
}

func (r *replyRepository) ListByTargets(ctx context.Context, targetIDs []uint) (map[uint][]*models.Reply, error) {
	grouped := make(map[uint][]*models.Reply, len(targetIDs))
	if len(targetIDs) == 0 {
		return grouped, nil
	}
	var replies []*models.Reply
	if err := r.base(ctx).
		Where(r.table+".target_id IN ?", targetIDs).
		Order(r.table + ".created_at ASC, " + r.table + ".id ASC").
		Find(&replies).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, reply := range r.tag(replies) {
		grouped[reply.TargetID] = append(grouped[reply.TargetID], reply)
	}
	return grouped, nil
}

func (r *replyRepository) List(ctx context.Context, limit, offset int) ([]*models.Reply, int64, error) {
	var total int64
	if err := readDB(r.db).WithContext(ctx).Table(r.table).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	replies := make([]*models.Reply, 0)
	if err := r.base(ctx).
		Order(r.table + ".created_at DESC, " + r.table + ".id DESC").
		Scopes(paginate(limit, offset)).
		Find(&replies).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return r.tag(replies), total, nil
}

func (r *replyRepository) Descendants(ctx context.Context, rootIDs []uint) ([]*models.Reply, error) {
	out := make([]*models.Reply, 0)
	frontier := rootIDs
	for len(frontier) > 0 {
		var level []*models.Reply
		if err := r.base(ctx).
			Where(r.table+".parent_id IN ?", frontier).
			Order(r.table + ".created_at ASC, " + r.table + ".id ASC").
			Find(&level).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		frontier = frontier[:0:0]
		for _, reply := range level {
			frontier = append(frontier, reply.ID)
		}
		out = append(out, r.tag(level)...)
	}
	return out, nil
}

func (r *replyRepository) Create(ctx context.Context, reply *models.Reply) error {
	if err := r.db.WithContext(ctx).Table(r.table).Create(reply).Error; err != nil {
		return models.NewInternalError(err)
	}
	reply.Kind = r.kind
	return nil
}

func (r *replyRepository) UpdateComment(ctx context.Context, id uint, comment string) error {
	res := r.db.WithContext(ctx).Table(r.table).Where("id = ?", id).Update("comment", comment)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Reply", id)
	}
	return nil
}

func (r *replyRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table(r.table).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.NewNotFoundError("Reply", id)
		}
		return deleteReplies(tx, r.kind, []uint{id})
	})
	return internal(err)
}
