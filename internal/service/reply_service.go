package service

import (
	"context"
	"fmt"
	"slices"

	"carkey/internal/models"
	"carkey/internal/repository"
	"carkey/internal/validation"
)

// ReplyService manages the reply tree of one content kind and fans out
// notifications when someone replies to another user's content.
type ReplyService struct {
	replies  repository.ReplyRepository
	targets  repository.TargetRepository
	users    repository.UserRepository
	notifier *NotificationService
	policy   Policy
}

type CreateReplyInput struct {
	TargetID uint
	ParentID *uint
	Comment  string
}

func NewReplyService(
	replies repository.ReplyRepository,
	targets repository.TargetRepository,
	users repository.UserRepository,
	notifier *NotificationService,
	policy Policy,
) *ReplyService {
	return &ReplyService{replies: replies, targets: targets, users: users, notifier: notifier, policy: policy}
}

func (s *ReplyService) Kind() models.ContentKind { return s.replies.Kind() }

// canModify: feedback replies follow the board policy, the rest allow the author or staff.
func (s *ReplyService) canModify(actor Actor, authorID uint) bool {
	if s.Kind() == models.KindFeedback {
		return s.policy.CanEditBoard(actor, authorID)
	}
	return s.policy.CanEditOwn(actor, authorID)
}

// ListByTarget returns the root replies of a target with nested children.
func (s *ReplyService) ListByTarget(ctx context.Context, targetID uint) ([]*models.Reply, error) {
	if _, err := s.targets.Owner(ctx, s.Kind(), targetID); err != nil {
		return nil, err
	}
	flat, err := s.replies.ListByTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return models.BuildReplyTree(flat), nil
}

// List pages through every reply of the kind, newest first. Each item carries its subtree.
func (s *ReplyService) List(ctx context.Context, limit, offset int) ([]*models.Reply, int64, error) {
	page, total, err := s.replies.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachChildren(ctx, page); err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func (s *ReplyService) Get(ctx context.Context, id uint) (*models.Reply, error) {
	reply, err := s.replies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachChildren(ctx, []*models.Reply{reply}); err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *ReplyService) attachChildren(ctx context.Context, replies []*models.Reply) error {
	if len(replies) == 0 {
		return nil
	}
	ids := make([]uint, len(replies))
	seen := make(map[uint]bool, len(replies))
	all := make([]*models.Reply, 0, len(replies))
	for i, r := range replies {
		ids[i] = r.ID
		seen[r.ID] = true
		all = append(all, r)
	}
	desc, err := s.replies.Descendants(ctx, ids)
	if err != nil {
		return err
	}
	for _, r := range desc {
		if !seen[r.ID] {
			seen[r.ID] = true
			all = append(all, r)
		}
	}
	slices.SortStableFunc(all, func(a, b *models.Reply) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID) - int(b.ID)
	})
	models.BuildReplyTree(all)
	return nil
}

func (s *ReplyService) Create(ctx context.Context, actor Actor, in CreateReplyInput) (*models.Reply, error) {
	if !actor.Authenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	comment, err := validation.NormalizeComment(in.Comment)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.TargetID == 0 {
		return nil, models.NewValidationError(fmt.Sprintf("%s is required", s.Kind()))
	}
	ownerID, err := s.targets.Owner(ctx, s.Kind(), in.TargetID)
	if err != nil {
		return nil, err
	}

	var parent *models.Reply
	if in.ParentID != nil {
		parent, err = s.replies.GetByID(ctx, *in.ParentID)
		if repository.IsNotFound(err) {
			return nil, models.NewValidationError("Parent reply does not exist")
		}
		if err != nil {
			return nil, err
		}
		if parent.TargetID != in.TargetID {
			return nil, models.NewValidationError(
				fmt.Sprintf("Parent reply belongs to a different %s", s.Kind()))
		}
	}

	replier, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	reply := &models.Reply{
		TargetID: in.TargetID,
		AuthorID: actor.ID,
		ParentID: in.ParentID,
		Comment:  comment,
		Kind:     s.Kind(),
	}
	if err := s.replies.Create(ctx, reply); err != nil {
		return nil, err
	}
	reply.AuthorUsername = replier.Username
	reply.Children = []*models.Reply{}

	s.fanOut(ctx, reply, replier.Username, ownerID, parent)
	return reply, nil
}

// fanOut notifies the target's author and, for nested replies, the parent's author.
// Nobody is notified about their own reply, and nobody twice.
func (s *ReplyService) fanOut(ctx context.Context, reply *models.Reply, username string, ownerID uint, parent *models.Reply) {
	if s.notifier == nil {
		return
	}
	if ownerID != reply.AuthorID {
		s.notify(ctx, reply, ownerID,
			fmt.Sprintf("%s님이 회원님의 %s에 댓글을 남겼습니다.", username, s.Kind().Label()))
	}
	if parent != nil && parent.AuthorID != reply.AuthorID && parent.AuthorID != ownerID {
		s.notify(ctx, reply, parent.AuthorID,
			fmt.Sprintf("%s님이 회원님의 댓글에 답글을 남겼습니다.", username))
	}
}

func (s *ReplyService) notify(ctx context.Context, reply *models.Reply, to uint, message string) {
	n := &models.Notification{
		ToUserID:  to,
		NotifType: s.Kind().NotificationType(),
		Message:   truncateRunes(message, 255),
	}
	n.Link(s.Kind(), reply.TargetID, reply.ID)
	if err := s.notifier.Notify(ctx, n); err != nil {
		logWarn(ctx, "failed to create reply notification",
			"kind", s.Kind(), "reply_id", reply.ID, "to_user_id", to, "error", err)
	}
}

func (s *ReplyService) Update(ctx context.Context, actor Actor, id uint, comment string) (*models.Reply, error) {
	reply, err := s.replies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canModify(actor, reply.AuthorID) {
		return nil, models.NewForbiddenError("You do not have permission to perform this action.")
	}
	normalized, err := validation.NormalizeComment(comment)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := s.replies.UpdateComment(ctx, id, normalized); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *ReplyService) Delete(ctx context.Context, actor Actor, id uint) error {
	reply, err := s.replies.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.canModify(actor, reply.AuthorID) {
		return models.NewForbiddenError("You do not have permission to perform this action.")
	}
	return s.replies.Delete(ctx, id)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
