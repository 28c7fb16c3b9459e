// Package seed fills a database with demo boards, articles, replies and
// recommendations for development.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"carkey/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Options controls how much data Run creates. Presets are YAML files with
// the same keys.
type Options struct {
	Users           int    `yaml:"users"`
	Staff           int    `yaml:"staff"`
	BoardsPerUser   int    `yaml:"boards_per_user"`
	RepliesPerBoard int    `yaml:"replies_per_board"`
	MaxLikes        int    `yaml:"max_likes"`
	BestThreshold   int    `yaml:"best_threshold"`
	Feedbacks       int    `yaml:"feedbacks"`
	Notices         int    `yaml:"notices"`
	AnalysesPerUser int    `yaml:"analyses_per_user"`
	Password        string `yaml:"password"`
	Clean           bool   `yaml:"clean"`
	RandSeed        int64  `yaml:"rand_seed"`
}

// DefaultOptions is a small but busy data set.
func DefaultOptions() Options {
	return Options{
		Users:           20,
		Staff:           1,
		BoardsPerUser:   3,
		RepliesPerBoard: 4,
		MaxLikes:        12,
		BestThreshold:   10,
		Feedbacks:       8,
		Notices:         3,
		AnalysesPerUser: 1,
		Password:        "password1234!",
		Clean:           true,
	}
}

// LoadPreset reads a YAML preset on top of DefaultOptions. Unknown keys are errors.
func LoadPreset(path string) (Options, error) {
	opts := DefaultOptions()
	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read preset: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return opts, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return opts, opts.validate()
}

func (o Options) validate() error {
	switch {
	case o.Users < 1:
		return errors.New("users must be at least 1")
	case o.Staff < 0 || o.BoardsPerUser < 0 || o.RepliesPerBoard < 0 || o.MaxLikes < 0 ||
		o.Feedbacks < 0 || o.Notices < 0 || o.AnalysesPerUser < 0:
		return errors.New("counts must not be negative")
	case o.Password == "":
		return errors.New("password is required")
	}
	return nil
}

// Summary counts what Run created.
type Summary struct {
	Users      int
	Boards     int
	BestBoards int
	Replies    int
	Likes      int
	Articles   int
	Analyses   int
}

// Seeder writes demo data into db.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new Seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// Run creates users first, then their boards with replies and likes, then
// feedbacks and staff notices.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Clean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, err
		}
	}
	f, err := NewFactory(s.db, opts.Password, opts.RandSeed)
	if err != nil {
		return nil, err
	}
	sum := &Summary{}

	users := make([]*models.User, 0, opts.Users+opts.Staff)
	staff := make([]*models.User, 0, opts.Staff)
	for i := 0; i < opts.Users+opts.Staff; i++ {
		u, err := f.User(ctx, i < opts.Staff)
		if err != nil {
			return sum, fmt.Errorf("create user: %w", err)
		}
		if u.IsStaff {
			staff = append(staff, u)
		}
		users = append(users, u)
		sum.Users++

		for j := 0; j < opts.AnalysesPerUser; j++ {
			if _, err := f.Analysis(ctx, u); err != nil {
				return sum, fmt.Errorf("create analysis: %w", err)
			}
			sum.Analyses++
		}
	}

	for _, author := range users {
		for i := 0; i < opts.BoardsPerUser; i++ {
			board, err := f.Board(ctx, author)
			if err != nil {
				return sum, fmt.Errorf("create board: %w", err)
			}
			sum.Boards++

			n, err := s.replyThread(ctx, f, models.KindBoard, board.ID, users, opts.RepliesPerBoard)
			sum.Replies += n
			if err != nil {
				return sum, err
			}

			likes := f.Intn(min(opts.MaxLikes, len(users)) + 1)
			for _, idx := range pick(f, len(users), likes) {
				if err := f.Like(ctx, board.ID, users[idx].ID, opts.BestThreshold); err != nil {
					return sum, fmt.Errorf("like board: %w", err)
				}
				sum.Likes++
			}
			if opts.BestThreshold > 0 && likes >= opts.BestThreshold {
				sum.BestBoards++
			}
		}
	}

	for i := 0; i < opts.Feedbacks; i++ {
		author := users[f.Intn(len(users))]
		a, err := f.Article(ctx, models.KindFeedback, author)
		if err != nil {
			return sum, fmt.Errorf("create feedback: %w", err)
		}
		sum.Articles++
		n, err := s.replyThread(ctx, f, models.KindFeedback, a.ID, users, opts.RepliesPerBoard/2)
		sum.Replies += n
		if err != nil {
			return sum, err
		}
	}

	if len(staff) > 0 {
		for i := 0; i < opts.Notices; i++ {
			if _, err := f.Article(ctx, models.KindNotice, staff[f.Intn(len(staff))]); err != nil {
				return sum, fmt.Errorf("create notice: %w", err)
			}
			sum.Articles++
		}
	} else if opts.Notices > 0 {
		log.Printf("skipping %d notices: no staff users", opts.Notices)
	}

	return sum, nil
}

// replyThread adds up to n replies; each one after the first answers an
// earlier reply half of the time.
func (s *Seeder) replyThread(ctx context.Context, f *Factory, kind models.ContentKind, targetID uint, users []*models.User, n int) (int, error) {
	var thread []*models.Reply
	for i := 0; i < n; i++ {
		var parent *models.Reply
		if len(thread) > 0 && f.Intn(2) == 0 {
			parent = thread[f.Intn(len(thread))]
		}
		r, err := f.Reply(ctx, kind, targetID, users[f.Intn(len(users))], parent)
		if err != nil {
			return len(thread), fmt.Errorf("create %s reply: %w", kind, err)
		}
		thread = append(thread, r)
	}
	return len(thread), nil
}

// pick returns k distinct indexes below n.
func pick(f *Factory, n, k int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k && i < n; i++ {
		j := i + f.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	if k > n {
		k = n
	}
	return idx[:k]
}

// ClearAll deletes every row the seeder can create, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})

	for _, kind := range models.ContentKinds {
		for _, table := range []string{kind.ReplyTable(), kind.ImageTable()} {
			if err := db.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
	}
	for _, model := range []interface{}{
		&models.Notification{}, &models.Recommend{}, &models.BestBoard{}, &models.Board{},
	} {
		if err := db.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	for _, kind := range []models.ContentKind{models.KindFeedback, models.KindNotice} {
		if err := db.Exec("DELETE FROM " + kind.TargetTable()).Error; err != nil {
			return fmt.Errorf("clear %s: %w", kind.TargetTable(), err)
		}
	}
	for _, model := range []interface{}{&models.Score{}, &models.Analysis{}, &models.User{}} {
		if err := db.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	log.Println("cleared existing data")
	return nil
}
