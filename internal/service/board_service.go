package service

import (
	"context"
	"strings"

	"carkey/internal/models"
	"carkey/internal/observability"
	"carkey/internal/repository"
	"carkey/internal/validation"
)

const defaultBestBoardThreshold = 10

type BoardService struct {
	boardRepo repository.BoardRepository
	content   *contentAssembler
	policy    Policy
	threshold int
	cleaner   ObjectCleaner
}

type BoardInput struct {
	Title   *string
	Content *string
	Cost    *string
	// CostSet distinguishes an explicit null cost from an absent one.
	CostSet bool
}

func NewBoardService(
	boardRepo repository.BoardRepository,
	images repository.ImageRepository,
	replies repository.ReplyRepository,
	policy Policy,
	threshold int,
	cleaner ObjectCleaner,
) *BoardService {
	if threshold <= 0 {
		threshold = defaultBestBoardThreshold
	}
	return &BoardService{
		boardRepo: boardRepo,
		content:   &contentAssembler{images: images, replies: replies},
		policy:    policy,
		threshold: threshold,
		cleaner:   cleaner,
	}
}

func (s *BoardService) List(ctx context.Context, q repository.ListQuery) ([]*models.Board, int64, error) {
	boards, total, err := s.boardRepo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return boards, total, s.hydrate(ctx, boards...)
}

func (s *BoardService) ListBest(ctx context.Context, q repository.ListQuery) ([]*models.Board, int64, error) {
	boards, total, err := s.boardRepo.ListBest(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return boards, total, s.hydrate(ctx, boards...)
}

func (s *BoardService) Get(ctx context.Context, id, viewerID uint) (*models.Board, error) {
	board, err := s.boardRepo.GetByID(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	return board, s.hydrate(ctx, board)
}

func (s *BoardService) GetBest(ctx context.Context, id, viewerID uint) (*models.Board, error) {
	board, err := s.boardRepo.GetBest(ctx, id, viewerID)
	if err != nil {
		return nil, err
	}
	return board, s.hydrate(ctx, board)
}

func (s *BoardService) Create(ctx context.Context, actor Actor, in BoardInput) (*models.Board, error) {
	if !actor.Authenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if in.Title == nil || in.Content == nil {
		return nil, models.NewValidationError("title and content are required")
	}
	board := &models.Board{AuthorID: actor.ID, Title: strings.TrimSpace(*in.Title), Content: *in.Content, Cost: in.Cost}
	if err := validateBoard(board); err != nil {
		return nil, err
	}
	if err := s.boardRepo.Create(ctx, board); err != nil {
		return nil, err
	}
	return s.Get(ctx, board.ID, actor.ID)
}

func (s *BoardService) Update(ctx context.Context, actor Actor, id uint, in BoardInput) (*models.Board, error) {
	board, err := s.boardRepo.GetByID(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanEditBoard(actor, board.AuthorID) {
		return nil, models.NewForbiddenError("You do not have permission to perform this action.")
	}
	if in.Title != nil {
		board.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		board.Content = *in.Content
	}
	if in.CostSet {
		board.Cost = in.Cost
	}
	if err := validateBoard(board); err != nil {
		return nil, err
	}
	if err := s.boardRepo.Update(ctx, board); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, actor.ID)
}

func (s *BoardService) Delete(ctx context.Context, actor Actor, id uint) error {
	board, err := s.boardRepo.GetByID(ctx, id, 0)
	if err != nil {
		return err
	}
	if !s.policy.CanEditBoard(actor, board.AuthorID) {
		return models.NewForbiddenError("You do not have permission to perform this action.")
	}
	keys, err := s.boardRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.cleaner.clean(ctx, keys)
	return nil
}

// Like records the actor's recommendation and returns the recomputed count.
// A second like by the same user is rejected.
func (s *BoardService) Like(ctx context.Context, actor Actor, id uint) (int, error) {
	if !actor.Authenticated() {
		return 0, models.NewUnauthorizedError("Authentication required")
	}
	if _, err := s.boardRepo.GetByID(ctx, id, 0); err != nil {
		return 0, err
	}
	created, err := s.boardRepo.AddRecommend(ctx, id, actor.ID)
	if err != nil {
		return 0, err
	}
	if !created {
		observability.RecommendEvents.WithLabelValues("like", "duplicate").Inc()
		return 0, models.NewValidationError("Already liked")
	}
	count, err := s.boardRepo.RecountRecommends(ctx, id)
	if err != nil {
		return 0, err
	}
	observability.RecommendEvents.WithLabelValues("like", "ok").Inc()
	if err := s.syncBest(ctx, id, count); err != nil {
		return 0, err
	}
	return count, nil
}

// Unlike removes the actor's recommendation and returns the recomputed count.
func (s *BoardService) Unlike(ctx context.Context, actor Actor, id uint) (int, error) {
	if !actor.Authenticated() {
		return 0, models.NewUnauthorizedError("Authentication required")
	}
	if _, err := s.boardRepo.GetByID(ctx, id, 0); err != nil {
		return 0, err
	}
	removed, err := s.boardRepo.RemoveRecommend(ctx, id, actor.ID)
	if err != nil {
		return 0, err
	}
	if !removed {
		observability.RecommendEvents.WithLabelValues("unlike", "missing").Inc()
		return 0, models.NewValidationError("Not liked yet")
	}
	observability.RecommendEvents.WithLabelValues("unlike", "ok").Inc()
	count, err := s.boardRepo.RecountRecommends(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.syncBest(ctx, id, count); err != nil {
		return 0, err
	}
	return count, nil
}

// Recount refreshes the stored count, e.g. after an admin edits recommends directly.
func (s *BoardService) Recount(ctx context.Context, id uint) (int, error) {
	count, err := s.boardRepo.RecountRecommends(ctx, id)
	if err != nil {
		return 0, err
	}
	return count, s.syncBest(ctx, id, count)
}

// syncBest keeps best_boards membership in step with the recommendation count.
func (s *BoardService) syncBest(ctx context.Context, id uint, count int) error {
	if count >= s.threshold {
		return s.boardRepo.MarkBest(ctx, id)
	}
	return s.boardRepo.UnmarkBest(ctx, id)
}

func (s *BoardService) hydrate(ctx context.Context, boards ...*models.Board) error {
	ids := make([]uint, len(boards))
	for i, b := range boards {
		ids[i] = b.ID
	}
	images, trees, err := s.content.load(ctx, ids)
	if err != nil {
		return err
	}
	for _, b := range boards {
		b.Images = imagesOrEmpty(images[b.ID])
		b.Replies = trees[b.ID]
	}
	return nil
}

func validateBoard(b *models.Board) error {
	if err := validation.ValidateTitle(b.Title); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateContent(b.Content); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateCost(b.Cost); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}
