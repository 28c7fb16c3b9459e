package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"carkey/internal/models"
	"carkey/internal/repository"
	"carkey/internal/storage"

	"github.com/stretchr/testify/require"
)

// userRepoStub is a stub for repository.UserRepository. Methods without a
// function field fall through to the embedded nil interface and panic.
type userRepoStub struct {
	repository.UserRepository
	getByIDFn        func(ctx context.Context, id uint) (*models.User, error)
	getCredentialsFn func(ctx context.Context, id uint) (*models.User, error)
	getByUsernameFn  func(ctx context.Context, username string) (*models.User, error)
	existsUsernameFn func(ctx context.Context, username string) (bool, error)
	existsEmailFn    func(ctx context.Context, email string) (bool, error)
	createFn         func(ctx context.Context, user *models.User) error
	updateFn         func(ctx context.Context, user *models.User) error
	setPasswordFn    func(ctx context.Context, id uint, hash string) error
	setStaffFn       func(ctx context.Context, id uint, staff bool) error
	touchFn          func(ctx context.Context, id uint, at time.Time) error
	deleteFn         func(ctx context.Context, id uint) ([]string, error)
	listFn           func(ctx context.Context, limit, offset int) ([]models.User, error)
	countFn          func(ctx context.Context) (int64, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetCredentials(ctx context.Context, id uint) (*models.User, error) {
	return s.getCredentialsFn(ctx, id)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) ExistsUsername(ctx context.Context, username string) (bool, error) {
	return s.existsUsernameFn(ctx, username)
}
func (s *userRepoStub) ExistsEmail(ctx context.Context, email string) (bool, error) {
	return s.existsEmailFn(ctx, email)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) SetPassword(ctx context.Context, id uint, hash string) error {
	return s.setPasswordFn(ctx, id, hash)
}
func (s *userRepoStub) SetStaff(ctx context.Context, id uint, staff bool) error {
	return s.setStaffFn(ctx, id, staff)
}
func (s *userRepoStub) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return s.touchFn(ctx, id, at)
}
func (s *userRepoStub) Delete(ctx context.Context, id uint) ([]string, error) {
	return s.deleteFn(ctx, id)
}
func (s *userRepoStub) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.listFn(ctx, limit, offset)
}
func (s *userRepoStub) Count(ctx context.Context) (int64, error) {
	return s.countFn(ctx)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "user"}, nil
		},
		getCredentialsFn: func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id}, nil
		},
		getByUsernameFn:  func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		existsUsernameFn: func(_ context.Context, _ string) (bool, error) { return false, nil },
		existsEmailFn:    func(_ context.Context, _ string) (bool, error) { return false, nil },
		createFn:         func(_ context.Context, _ *models.User) error { return nil },
		updateFn:         func(_ context.Context, _ *models.User) error { return nil },
		setPasswordFn:    func(_ context.Context, _ uint, _ string) error { return nil },
		setStaffFn:       func(_ context.Context, _ uint, _ bool) error { return nil },
		touchFn:          func(_ context.Context, _ uint, _ time.Time) error { return nil },
		deleteFn:         func(_ context.Context, _ uint) ([]string, error) { return nil, nil },
		listFn:           func(_ context.Context, _, _ int) ([]models.User, error) { return nil, nil },
		countFn:          func(_ context.Context) (int64, error) { return 0, nil },
	}
}

// boardRepoStub is a stub for repository.BoardRepository.
type boardRepoStub struct {
	repository.BoardRepository
	getByIDFn  func(ctx context.Context, id, viewerID uint) (*models.Board, error)
	listFn     func(ctx context.Context, q repository.ListQuery) ([]*models.Board, int64, error)
	createFn   func(ctx context.Context, board *models.Board) error
	updateFn   func(ctx context.Context, board *models.Board) error
	deleteFn   func(ctx context.Context, id uint) ([]string, error)
	addFn      func(ctx context.Context, boardID, userID uint) (bool, error)
	removeFn   func(ctx context.Context, boardID, userID uint) (bool, error)
	recountFn  func(ctx context.Context, boardID uint) (int, error)
	markBestFn func(ctx context.Context, boardID uint) error
	unmarkFn   func(ctx context.Context, boardID uint) error
}

func (s *boardRepoStub) GetByID(ctx context.Context, id, viewerID uint) (*models.Board, error) {
	return s.getByIDFn(ctx, id, viewerID)
}
func (s *boardRepoStub) List(ctx context.Context, q repository.ListQuery) ([]*models.Board, int64, error) {
	return s.listFn(ctx, q)
}
func (s *boardRepoStub) Create(ctx context.Context, board *models.Board) error {
	return s.createFn(ctx, board)
}
func (s *boardRepoStub) Update(ctx context.Context, board *models.Board) error {
	return s.updateFn(ctx, board)
}
func (s *boardRepoStub) Delete(ctx context.Context, id uint) ([]string, error) {
	return s.deleteFn(ctx, id)
}
func (s *boardRepoStub) AddRecommend(ctx context.Context, boardID, userID uint) (bool, error) {
	return s.addFn(ctx, boardID, userID)
}
func (s *boardRepoStub) RemoveRecommend(ctx context.Context, boardID, userID uint) (bool, error) {
	return s.removeFn(ctx, boardID, userID)
}
func (s *boardRepoStub) RecountRecommends(ctx context.Context, boardID uint) (int, error) {
	return s.recountFn(ctx, boardID)
}
func (s *boardRepoStub) MarkBest(ctx context.Context, boardID uint) error {
	return s.markBestFn(ctx, boardID)
}
func (s *boardRepoStub) UnmarkBest(ctx context.Context, boardID uint) error {
	return s.unmarkFn(ctx, boardID)
}

func noopBoardRepo() *boardRepoStub {
	return &boardRepoStub{
		getByIDFn: func(_ context.Context, id, _ uint) (*models.Board, error) {
			return &models.Board{ID: id, AuthorID: 1, Title: "title", Content: "content"}, nil
		},
		listFn: func(_ context.Context, _ repository.ListQuery) ([]*models.Board, int64, error) {
			return nil, 0, nil
		},
		createFn:   func(_ context.Context, b *models.Board) error { b.ID = 1; return nil },
		updateFn:   func(_ context.Context, _ *models.Board) error { return nil },
		deleteFn:   func(_ context.Context, _ uint) ([]string, error) { return nil, nil },
		addFn:      func(_ context.Context, _, _ uint) (bool, error) { return true, nil },
		removeFn:   func(_ context.Context, _, _ uint) (bool, error) { return true, nil },
		recountFn:  func(_ context.Context, _ uint) (int, error) { return 1, nil },
		markBestFn: func(_ context.Context, _ uint) error { return nil },
		unmarkFn:   func(_ context.Context, _ uint) error { return nil },
	}
}

// articleRepoStub is a stub for repository.ArticleRepository.
type articleRepoStub struct {
	repository.ArticleRepository
	kind      models.ContentKind
	getByIDFn func(ctx context.Context, id uint) (*models.Article, error)
	createFn  func(ctx context.Context, a *models.Article) error
	updateFn  func(ctx context.Context, a *models.Article) error
	deleteFn  func(ctx context.Context, id uint) ([]string, error)
}

func (s *articleRepoStub) Kind() models.ContentKind { return s.kind }
func (s *articleRepoStub) GetByID(ctx context.Context, id uint) (*models.Article, error) {
	return s.getByIDFn(ctx, id)
}
func (s *articleRepoStub) Create(ctx context.Context, a *models.Article) error {
	return s.createFn(ctx, a)
}
func (s *articleRepoStub) Update(ctx context.Context, a *models.Article) error {
	return s.updateFn(ctx, a)
}
func (s *articleRepoStub) Delete(ctx context.Context, id uint) ([]string, error) {
	return s.deleteFn(ctx, id)
}

func noopArticleRepo(kind models.ContentKind) *articleRepoStub {
	return &articleRepoStub{
		kind: kind,
		getByIDFn: func(_ context.Context, id uint) (*models.Article, error) {
			return &models.Article{ID: id, UserID: 1, Title: "t", Content: "c", Kind: kind}, nil
		},
		createFn: func(_ context.Context, a *models.Article) error { a.ID = 1; return nil },
		updateFn: func(_ context.Context, _ *models.Article) error { return nil },
		deleteFn: func(_ context.Context, _ uint) ([]string, error) { return nil, nil },
	}
}

// replyRepoStub is an in-memory repository.ReplyRepository.
type replyRepoStub struct {
	mu      sync.Mutex
	kind    models.ContentKind
	replies []*models.Reply
	nextID  uint
}

func newReplyRepoStub(kind models.ContentKind, seed ...*models.Reply) *replyRepoStub {
	s := &replyRepoStub{kind: kind}
	for _, r := range seed {
		s.add(r)
	}
	return s
}

func (s *replyRepoStub) add(r *models.Reply) {
	s.nextID++
	if r.ID == 0 {
		r.ID = s.nextID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Date(2024, 1, 1, 0, 0, int(r.ID), 0, time.UTC)
	}
	r.Kind = s.kind
	s.replies = append(s.replies, r)
}

func (s *replyRepoStub) copyOf(r *models.Reply) *models.Reply {
	c := *r
	c.Children = nil
	return &c
}

func (s *replyRepoStub) Kind() models.ContentKind { return s.kind }

func (s *replyRepoStub) GetByID(_ context.Context, id uint) (*models.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.replies {
		if r.ID == id {
			return s.copyOf(r), nil
		}
	}
	return nil, models.NewNotFoundError("Reply", id)
}

func (s *replyRepoStub) ListByTarget(_ context.Context, targetID uint) ([]*models.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reply
	for _, r := range s.replies {
		if r.TargetID == targetID {
			out = append(out, s.copyOf(r))
		}
	}
	return out, nil
}

func (s *replyRepoStub) ListByTargets(ctx context.Context, targetIDs []uint) (map[uint][]*models.Reply, error) {
	out := make(map[uint][]*models.Reply, len(targetIDs))
	for _, id := range targetIDs {
		replies, _ := s.ListByTarget(ctx, id)
		out[id] = replies
	}
	return out, nil
}

func (s *replyRepoStub) List(_ context.Context, limit, offset int) ([]*models.Reply, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reply
	for i := len(s.replies) - 1; i >= 0; i-- {
		out = append(out, s.copyOf(s.replies[i]))
	}
	total := int64(len(out))
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *replyRepoStub) Descendants(_ context.Context, rootIDs []uint) ([]*models.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inTree := make(map[uint]bool)
	for _, id := range rootIDs {
		inTree[id] = true
	}
	var out []*models.Reply
	for changed := true; changed; {
		changed = false
		for _, r := range s.replies {
			if r.ParentID != nil && inTree[*r.ParentID] && !inTree[r.ID] {
				inTree[r.ID] = true
				out = append(out, s.copyOf(r))
				changed = true
			}
		}
	}
	return out, nil
}

func (s *replyRepoStub) Create(_ context.Context, r *models.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(r)
	return nil
}

func (s *replyRepoStub) UpdateComment(_ context.Context, id uint, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.replies {
		if r.ID == id {
			r.Comment = comment
			return nil
		}
	}
	return models.NewNotFoundError("Reply", id)
}

func (s *replyRepoStub) Delete(ctx context.Context, id uint) error {
	desc, _ := s.Descendants(ctx, []uint{id})
	gone := map[uint]bool{id: true}
	for _, r := range desc {
		gone[r.ID] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.replies[:0]
	for _, r := range s.replies {
		if !gone[r.ID] {
			kept = append(kept, r)
		}
	}
	s.replies = kept
	return nil
}

// imageRepoStub is an in-memory repository.ImageRepository.
type imageRepoStub struct {
	mu     sync.Mutex
	kind   models.ContentKind
	images []*models.Image
	refErr error
}

func (s *imageRepoStub) Kind() models.ContentKind { return s.kind }

func (s *imageRepoStub) GetByID(_ context.Context, id uint) (*models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images {
		if img.ID == id {
			c := *img
			return &c, nil
		}
	}
	return nil, models.NewNotFoundError("Image", id)
}

func (s *imageRepoStub) List(_ context.Context, _, _ int) ([]*models.Image, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Image(nil), s.images...), int64(len(s.images)), nil
}

func (s *imageRepoStub) ListByTargets(_ context.Context, ids []uint) (map[uint][]models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint][]models.Image)
	for _, id := range ids {
		for _, img := range s.images {
			if img.TargetID == id {
				out[id] = append(out[id], *img)
			}
		}
	}
	return out, nil
}

func (s *imageRepoStub) CreateBatch(_ context.Context, images []*models.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range images {
		img.ID = uint(len(s.images) + 1)
		img.Kind = s.kind
		s.images = append(s.images, img)
	}
	return nil
}

func (s *imageRepoStub) ReferencedKeys(_ context.Context, keys []string) (map[string]bool, error) {
	if s.refErr != nil {
		return nil, s.refErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := make(map[string]bool)
	for _, key := range keys {
		for _, img := range s.images {
			if img.ObjectKey == key {
				found[key] = true
			}
		}
	}
	return found, nil
}

func (s *imageRepoStub) Delete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, img := range s.images {
		if img.ID == id {
			s.images = append(s.images[:i], s.images[i+1:]...)
			return nil
		}
	}
	return models.NewNotFoundError("Image", id)
}

// targetRepoStub maps (kind, id) to owners.
type targetRepoStub map[models.ContentKind]map[uint]uint

func (s targetRepoStub) Owner(_ context.Context, kind models.ContentKind, id uint) (uint, error) {
	owner, ok := s[kind][id]
	if !ok {
		return 0, models.NewNotFoundError(kind.Resource(), id)
	}
	return owner, nil
}

// notificationRepoStub records created notifications.
type notificationRepoStub struct {
	repository.NotificationRepository
	mu      sync.Mutex
	created []*models.Notification
	err     error
}

func (s *notificationRepoStub) Create(_ context.Context, n *models.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uint(len(s.created) + 1)
	s.created = append(s.created, n)
	return nil
}

type publishedEvent struct {
	userID    uint
	eventType string
	payload   interface{}
}

// publisherStub captures realtime events.
type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *publisherStub) PublishEvent(_ context.Context, userID uint, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, eventType: eventType, payload: payload})
	return p.err
}

// objectStoreStub is an in-memory storage.ObjectStore rooted at https://cdn.test/.
type objectStoreStub struct {
	mu         sync.Mutex
	backend    string
	objects    map[string][]byte
	deleted    []string
	putErr     error
	signedType string
}

func newObjectStoreStub(backend string) *objectStoreStub {
	return &objectStoreStub{backend: backend, objects: map[string][]byte{}}
}

func (s *objectStoreStub) Backend() string { return s.backend }

func (s *objectStoreStub) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return s.PublicURL(key), nil
}

func (s *objectStoreStub) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *objectStoreStub) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if s.backend != "s3" {
		return "", storage.ErrPresignUnsupported
	}
	s.mu.Lock()
	s.signedType = contentType
	s.mu.Unlock()
	return "https://cdn.test/" + key + "?X-Amz-Expires=" + ttl.String(), nil
}

func (s *objectStoreStub) PublicURL(key string) string { return "https://cdn.test/" + key }

func (s *objectStoreStub) KeyFromURL(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, "https://cdn.test/") {
		return "", false
	}
	return strings.TrimPrefix(rawURL, "https://cdn.test/"), true
}

func assertAppError(t *testing.T, err error, code string, msgAndArgs ...interface{}) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Message)
}
