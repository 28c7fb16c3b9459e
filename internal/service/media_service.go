package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"carkey/internal/featureflags"
	"carkey/internal/models"
	"carkey/internal/observability"
	"carkey/internal/repository"
	"carkey/internal/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const defaultPresignTTL = 5 * time.Minute

// MediaService hands out presigned upload URLs, attaches images to content
// and removes stored objects when their rows go away.
type MediaService struct {
	store          storage.ObjectStore
	images         map[models.ContentKind]repository.ImageRepository
	targets        repository.TargetRepository
	flags          *featureflags.Manager
	presignTTL     time.Duration
	maxUploadBytes int64
	newID          func() string
}

type MediaOptions struct {
	PresignTTL      time.Duration
	MaxUploadSizeMB int
	Flags           *featureflags.Manager
}

// UploadFile is one multipart image.
type UploadFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

type PresignResult struct {
	URL   string `json:"url"`
	S3URL string `json:"s3_url"`
}

func NewMediaService(
	store storage.ObjectStore,
	images []repository.ImageRepository,
	targets repository.TargetRepository,
	opts MediaOptions,
) *MediaService {
	byKind := make(map[models.ContentKind]repository.ImageRepository, len(images))
	for _, repo := range images {
		byKind[repo.Kind()] = repo
	}
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	sizeMB := opts.MaxUploadSizeMB
	if sizeMB <= 0 {
		sizeMB = DefaultImageMaxUploadSizeMB
	}
	return &MediaService{
		store:          store,
		images:         byKind,
		targets:        targets,
		flags:          opts.Flags,
		presignTTL:     ttl,
		maxUploadBytes: int64(sizeMB) * 1024 * 1024,
		newID:          uuid.NewString,
	}
}

// MaxUploadBytes is the per-file limit applied to multipart uploads.
func (s *MediaService) MaxUploadBytes() int64 { return s.maxUploadBytes }

func (s *MediaService) repo(kind models.ContentKind) (repository.ImageRepository, error) {
	repo, ok := s.images[kind]
	if !ok {
		return nil, models.NewInternalError(fmt.Errorf("no image repository for %s", kind))
	}
	return repo, nil
}

// canManageImages: notice attachments are staff-only, the rest belong to the target's author.
func canManageImages(actor Actor, kind models.ContentKind, ownerID uint) bool {
	if kind == models.KindNotice {
		return actor.IsStaff
	}
	return actor.IsStaff || (actor.Authenticated() && actor.ID == ownerID)
}

// uploadPrefix is where presigned uploads by userID land.
func uploadPrefix(userID uint) string {
	return fmt.Sprintf("user_uploads/%d/", userID)
}

// Presign returns a PUT URL under user_uploads/{uid}/ and the public URL the
// object will have once uploaded. A given fileType is bound into the signature.
func (s *MediaService) Presign(ctx context.Context, actor Actor, fileName, fileType string) (*PresignResult, error) {
	if !actor.Authenticated() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if !s.flags.Enabled(featureflags.PresignedUploads, actor.ID) {
		return nil, models.NewForbiddenError("Presigned uploads are disabled")
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return nil, models.NewValidationError("file_name is required")
	}
	var contentType string
	if fileType != "" {
		if !isAllowedImageMIME(fileType) {
			return nil, models.NewValidationError("file_type must be an image type")
		}
		contentType = mediaType(fileType)
	}

	key := uploadPrefix(actor.ID) + s.newID() + "_" + name
	url, err := s.store.PresignPut(ctx, key, contentType, s.presignTTL)
	if errors.Is(err, storage.ErrPresignUnsupported) {
		return nil, models.NewValidationError("Presigned uploads require the s3 storage backend")
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &PresignResult{URL: url, S3URL: s.store.PublicURL(key)}, nil
}

func (s *MediaService) authorizeTarget(ctx context.Context, actor Actor, kind models.ContentKind, targetID uint) error {
	if !actor.Authenticated() {
		return models.NewUnauthorizedError("Authentication required")
	}
	if targetID == 0 {
		return models.NewValidationError(fmt.Sprintf("%s_id is required", kind))
	}
	ownerID, err := s.targets.Owner(ctx, kind, targetID)
	if err != nil {
		return err
	}
	if !canManageImages(actor, kind, ownerID) {
		return models.NewForbiddenError("You do not have permission to perform this action.")
	}
	return nil
}

// AttachURLs records already-uploaded objects.
func (s *MediaService) AttachURLs(ctx context.Context, actor Actor, kind models.ContentKind, targetID uint, urls []string) ([]*models.Image, error) {
	return s.attach(ctx, actor, kind, targetID, urls, nil, "No images provided")
}

// AttachFiles runs each file through the image pipeline, stores the JPEG master
// and its WebP sibling, and records the master as an attachment.
func (s *MediaService) AttachFiles(ctx context.Context, actor Actor, kind models.ContentKind, targetID uint, files []UploadFile) ([]*models.Image, error) {
	return s.attach(ctx, actor, kind, targetID, nil, files, "No file uploaded")
}

// Attach records uploaded URLs and new files against one target in a single
// batch. When anything is rejected no row is written and stored files are removed.
func (s *MediaService) Attach(ctx context.Context, actor Actor, kind models.ContentKind, targetID uint, urls []string, files []UploadFile) ([]*models.Image, error) {
	return s.attach(ctx, actor, kind, targetID, urls, files, "No images provided")
}

func (s *MediaService) attach(
	ctx context.Context,
	actor Actor,
	kind models.ContentKind,
	targetID uint,
	urls []string,
	files []UploadFile,
	emptyMsg string,
) ([]*models.Image, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTarget(ctx, actor, kind, targetID); err != nil {
		return nil, err
	}
	if len(urls) == 0 && len(files) == 0 {
		return nil, models.NewValidationError(emptyMsg)
	}

	images := make([]*models.Image, 0, len(urls)+len(files))
	for _, raw := range urls {
		img, err := s.uploadedImage(actor, raw)
		if err != nil {
			return nil, err
		}
		img.TargetID = targetID
		images = append(images, img)
	}

	var stored []string
	for _, f := range files {
		img, keys, err := s.storeFile(ctx, kind, f)
		stored = append(stored, keys...)
		if err != nil {
			s.deleteKeys(ctx, stored)
			return nil, err
		}
		img.TargetID = targetID
		images = append(images, img)
	}
	if err := repo.CreateBatch(ctx, images); err != nil {
		s.deleteKeys(ctx, stored)
		return nil, err
	}
	if len(urls) > 0 {
		observability.UploadsTotal.WithLabelValues(s.store.Backend(), "presigned").Add(float64(len(urls)))
	}
	if len(files) > 0 {
		observability.UploadsTotal.WithLabelValues(s.store.Backend(), "multipart").Add(float64(len(files)))
	}
	return images, nil
}

// uploadedImage accepts only URLs of this store under the actor's own upload
// prefix, so nobody can attach, and later purge, someone else's object.
func (s *MediaService) uploadedImage(actor Actor, raw string) (*models.Image, error) {
	raw = strings.TrimSpace(raw)
	key, ok := s.store.KeyFromURL(raw)
	if !ok || !strings.HasPrefix(key, uploadPrefix(actor.ID)) {
		return nil, models.NewValidationError(fmt.Sprintf("Invalid image URL: %s", raw))
	}
	return &models.Image{URL: raw, ObjectKey: key}, nil
}

func (s *MediaService) storeFile(ctx context.Context, kind models.ContentKind, f UploadFile) (*models.Image, []string, error) {
	if len(f.Content) == 0 {
		return nil, nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(f.Content)) > s.maxUploadBytes {
		return nil, nil, models.NewValidationError(
			fmt.Sprintf("File too large (max %dMB)", s.maxUploadBytes/(1024*1024)))
	}
	var processed *processedImage
	err := observability.WithSpan(ctx, "media.process", func(context.Context) error {
		var perr error
		processed, perr = processImage(f.Content, f.ContentType)
		return perr
	}, attribute.String("content.kind", string(kind)), attribute.Int("upload.bytes", len(f.Content)))
	var imgErr imageError
	if errors.As(err, &imgErr) {
		return nil, nil, models.NewValidationError(imgErr.Error())
	}
	if err != nil {
		return nil, nil, models.NewInternalError(err)
	}

	base := fmt.Sprintf("%s/%s", kind.ImageTable(), s.newID())
	jpgKey, webpKey := base+".jpg", base+".webp"

	url, err := s.store.Put(ctx, jpgKey, bytes.NewReader(processed.JPEG), int64(len(processed.JPEG)), "image/jpeg")
	if err != nil {
		return nil, nil, models.NewInternalError(err)
	}
	if _, err := s.store.Put(ctx, webpKey, bytes.NewReader(processed.WebP), int64(len(processed.WebP)), "image/webp"); err != nil {
		return nil, []string{jpgKey}, models.NewInternalError(err)
	}
	return &models.Image{URL: url, ObjectKey: jpgKey}, []string{jpgKey, webpKey}, nil
}

func (s *MediaService) ListImages(ctx context.Context, kind models.ContentKind, limit, offset int) ([]*models.Image, int64, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, 0, err
	}
	return repo.List(ctx, limit, offset)
}

// DeleteImage removes the attachment row and then its stored objects.
func (s *MediaService) DeleteImage(ctx context.Context, actor Actor, kind models.ContentKind, id uint) error {
	repo, err := s.repo(kind)
	if err != nil {
		return err
	}
	img, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeTarget(ctx, actor, kind, img.TargetID); err != nil {
		return err
	}
	if err := repo.Delete(ctx, id); err != nil {
		return err
	}
	s.PurgeObjects(ctx, []string{img.ObjectKey})
	return nil
}

// PurgeObjects deletes stored objects and their WebP siblings once no image
// row of any kind refers to them. Failures are logged and the object is left
// in place; the rows that referenced it are already gone.
func (s *MediaService) PurgeObjects(ctx context.Context, keys []string) {
	keys = s.unreferenced(ctx, keys)
	var all []string
	for _, key := range keys {
		all = append(all, key)
		if sibling, ok := webpSibling(key); ok {
			all = append(all, sibling)
		}
	}
	s.deleteKeys(ctx, all)
}

func (s *MediaService) unreferenced(ctx context.Context, keys []string) []string {
	candidates := make([]string, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	inUse := make(map[string]bool)
	for _, kind := range models.ContentKinds {
		repo, ok := s.images[kind]
		if !ok {
			continue
		}
		found, err := repo.ReferencedKeys(ctx, candidates)
		if err != nil {
			logWarn(ctx, "skipping object purge, reference lookup failed", "kind", kind, "keys", candidates, "error", err)
			return nil
		}
		for key := range found {
			inUse[key] = true
		}
	}
	free := candidates[:0]
	for _, key := range candidates {
		if !inUse[key] {
			free = append(free, key)
		}
	}
	return free
}

func (s *MediaService) deleteKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			logWarn(ctx, "failed to delete stored object", "key", key, "backend", s.store.Backend(), "error", err)
		}
	}
}

// webpSibling names the WebP copy written next to a pipeline-produced JPEG.
func webpSibling(key string) (string, bool) {
	if strings.HasPrefix(key, "user_uploads/") || !strings.HasSuffix(key, ".jpg") {
		return "", false
	}
	return strings.TrimSuffix(key, ".jpg") + ".webp", true
}
