package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carkey/internal/models"
	"carkey/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	carParts = []string{
		"front bumper", "rear bumper", "hood", "trunk lid", "driver door", "passenger door",
		"left fender", "right fender", "side mirror", "windshield", "tail light", "headlight",
		"roof", "quarter panel", "wheel arch", "rocker panel",
	}
	damageKinds = []string{
		"scratch", "dent", "crack", "scuff", "paint chip", "deep gouge", "hail damage", "rust spot",
	}
)

// Factory builds domain rows through the repositories, so seeded data takes
// the same paths as data created over the API.
type Factory struct {
	faker        *gofakeit.Faker
	passwordHash string

	users    repository.UserRepository
	boards   repository.BoardRepository
	articles map[models.ContentKind]repository.ArticleRepository
	replies  map[models.ContentKind]repository.ReplyRepository
	analyses repository.RecordRepository[models.Analysis]
	scores   repository.RecordRepository[models.Score]
}

// NewFactory hashes password once and reuses it for every user. A zero
// randSeed picks a random one.
func NewFactory(db *gorm.DB, password string, randSeed int64) (*Factory, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	if randSeed == 0 {
		randSeed = time.Now().UnixNano()
	}
	f := &Factory{
		faker:        gofakeit.New(randSeed),
		passwordHash: string(hash),
		users:        repository.NewUserRepository(db),
		boards:       repository.NewBoardRepository(db),
		articles:     make(map[models.ContentKind]repository.ArticleRepository),
		replies:      make(map[models.ContentKind]repository.ReplyRepository),
		analyses:     repository.NewAnalysisRepository(db),
		scores:       repository.NewScoreRepository(db),
	}
	for _, kind := range models.ContentKinds {
		f.replies[kind] = repository.NewReplyRepository(db, kind)
		if kind != models.KindBoard {
			f.articles[kind] = repository.NewArticleRepository(db, kind)
		}
	}
	return f, nil
}

// Intn returns a number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

// User creates an account with a unique username.
func (f *Factory) User(ctx context.Context, staff bool) (*models.User, error) {
	for attempt := 0; attempt < 5; attempt++ {
		username := strings.ToLower(f.faker.Username())
		if len(username) < 3 {
			continue
		}
		if len(username) > 30 {
			username = username[:30]
		}
		exists, err := f.users.ExistsUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		u := &models.User{
			Username: username,
			Email:    username + "@" + f.faker.DomainName(),
			Password: f.passwordHash,
			IsStaff:  staff,
		}
		if err := f.users.Create(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}
	return nil, fmt.Errorf("could not find a free username")
}

// Board creates a damage report with an optional repair cost.
func (f *Factory) Board(ctx context.Context, author *models.User) (*models.Board, error) {
	part := carParts[f.Intn(len(carParts))]
	damage := damageKinds[f.Intn(len(damageKinds))]
	b := &models.Board{
		AuthorID: author.ID,
		Title:    fmt.Sprintf("%s %s on my %s %s", strings.ToUpper(damage[:1])+damage[1:], part, f.faker.CarMaker(), f.faker.CarModel()),
		Content:  f.faker.Paragraph(1, 3, 12, "\n"),
	}
	if f.faker.Bool() {
		cost := fmt.Sprintf("%d", f.faker.Number(5, 300)*10000)
		b.Cost = &cost
	}
	if err := f.boards.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Like records a recommendation and promotes the board once it reaches threshold.
func (f *Factory) Like(ctx context.Context, boardID, userID uint, threshold int) error {
	created, err := f.boards.AddRecommend(ctx, boardID, userID)
	if err != nil || !created {
		return err
	}
	count, err := f.boards.RecountRecommends(ctx, boardID)
	if err != nil {
		return err
	}
	if threshold > 0 && count >= threshold {
		return f.boards.MarkBest(ctx, boardID)
	}
	return nil
}

// Article creates a feedback or notice.
func (f *Factory) Article(ctx context.Context, kind models.ContentKind, author *models.User) (*models.Article, error) {
	repo, ok := f.articles[kind]
	if !ok {
		return nil, fmt.Errorf("no article table for %s", kind)
	}
	a := &models.Article{
		UserID:  author.ID,
		Title:   f.faker.Sentence(6),
		Content: f.faker.Paragraph(2, 3, 10, "\n\n"),
	}
	if err := repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Reply adds a comment to a target, nested under parent when it is non-nil.
func (f *Factory) Reply(ctx context.Context, kind models.ContentKind, targetID uint, author *models.User, parent *models.Reply) (*models.Reply, error) {
	r := &models.Reply{
		TargetID: targetID,
		AuthorID: author.ID,
		Comment:  f.faker.Sentence(f.faker.Number(4, 16)),
	}
	if parent != nil {
		r.ParentID = &parent.ID
	}
	if err := f.replies[kind].Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Analysis records a damage estimate with placeholder render URLs, and a
// satisfaction score for it half of the time.
func (f *Factory) Analysis(ctx context.Context, user *models.User) (*models.Analysis, error) {
	id := f.faker.UUID()
	img := func(layer string) string {
		return fmt.Sprintf("https://picsum.photos/seed/%s-%s/640/480", id, layer)
	}
	at := f.faker.DateRange(time.Now().AddDate(0, -6, 0), time.Now())
	a := &models.Analysis{
		UserID:      user.ID,
		TotalPrice:  int64(f.faker.Number(3, 500)) * 10000,
		OriginalImg: img("original"),
		ScratchImg:  img("scratch"),
		CrushedImg:  img("crushed"),
		NaturalImg:  img("natural"),
		AnalyzeDate: time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
	}
	if err := f.analyses.Create(ctx, a); err != nil {
		return nil, err
	}
	if f.faker.Bool() {
		if err := f.scores.Create(ctx, &models.Score{UserID: user.ID, Value: f.faker.Number(1, 5)}); err != nil {
			return nil, err
		}
	}
	return a, nil
}
