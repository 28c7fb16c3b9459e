package service

import (
	"context"
	"strings"

	"carkey/internal/models"
	"carkey/internal/repository"
	"carkey/internal/validation"
)

// ArticleService manages feedback entries or notices; the repository's kind decides which.
//
// Feedback follows the board policy. Notices are public to read and staff-only to write.
type ArticleService struct {
	repo    repository.ArticleRepository
	content *contentAssembler
	policy  Policy
	cleaner ObjectCleaner
}

type ArticleInput struct {
	Title   *string
	Content *string
}

func NewArticleService(
	repo repository.ArticleRepository,
	images repository.ImageRepository,
	replies repository.ReplyRepository,
	policy Policy,
	cleaner ObjectCleaner,
) *ArticleService {
	return &ArticleService{
		repo:    repo,
		content: &contentAssembler{images: images, replies: replies},
		policy:  policy,
		cleaner: cleaner,
	}
}

func (s *ArticleService) Kind() models.ContentKind { return s.repo.Kind() }

func (s *ArticleService) canRead(actor Actor) error {
	if s.Kind() == models.KindNotice || actor.Authenticated() {
		return nil
	}
	return models.NewUnauthorizedError("Authentication required")
}

func (s *ArticleService) canCreate(actor Actor) error {
	if !actor.Authenticated() {
		return models.NewUnauthorizedError("Authentication required")
	}
	if s.Kind() == models.KindNotice && !actor.IsStaff {
		return models.NewForbiddenError("Only staff can manage notices")
	}
	return nil
}

// CanModify reports whether actor may change or attach to an article owned by ownerID.
func (s *ArticleService) CanModify(actor Actor, ownerID uint) bool {
	if s.Kind() == models.KindNotice {
		return actor.IsStaff
	}
	return s.policy.CanEditBoard(actor, ownerID)
}

func (s *ArticleService) List(ctx context.Context, actor Actor, q repository.ListQuery) ([]*models.Article, int64, error) {
	if err := s.canRead(actor); err != nil {
		return nil, 0, err
	}
	articles, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return articles, total, s.hydrate(ctx, articles...)
}

func (s *ArticleService) Get(ctx context.Context, actor Actor, id uint) (*models.Article, error) {
	if err := s.canRead(actor); err != nil {
		return nil, err
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return article, s.hydrate(ctx, article)
}

func (s *ArticleService) Create(ctx context.Context, actor Actor, in ArticleInput) (*models.Article, error) {
	if err := s.canCreate(actor); err != nil {
		return nil, err
	}
	if in.Title == nil || in.Content == nil {
		return nil, models.NewValidationError("title and content are required")
	}
	article := &models.Article{UserID: actor.ID, Title: strings.TrimSpace(*in.Title), Content: *in.Content}
	if err := validateArticle(article); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, article); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, article.ID)
}

func (s *ArticleService) Update(ctx context.Context, actor Actor, id uint, in ArticleInput) (*models.Article, error) {
	if !actor.Authenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.CanModify(actor, article.UserID) {
		return nil, models.NewForbiddenError("You do not have permission to perform this action.")
	}
	if in.Title != nil {
		article.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		article.Content = *in.Content
	}
	if err := validateArticle(article); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, article); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

func (s *ArticleService) Delete(ctx context.Context, actor Actor, id uint) error {
	if !actor.Authenticated() {
		return models.NewUnauthorizedError("Authentication required")
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.CanModify(actor, article.UserID) {
		return models.NewForbiddenError("You do not have permission to perform this action.")
	}
	keys, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.cleaner.clean(ctx, keys)
	return nil
}

func (s *ArticleService) hydrate(ctx context.Context, articles ...*models.Article) error {
	ids := make([]uint, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	images, trees, err := s.content.load(ctx, ids)
	if err != nil {
		return err
	}
	for _, a := range articles {
		a.Images = imagesOrEmpty(images[a.ID])
		a.Replies = trees[a.ID]
	}
	return nil
}

func validateArticle(a *models.Article) error {
	if err := validation.ValidateTitle(a.Title); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateContent(a.Content); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}
