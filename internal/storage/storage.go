// Package storage stores uploaded media either on the local filesystem or in
// an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"carkey/internal/config"
)

// ErrPresignUnsupported is returned by backends that cannot hand out upload URLs.
var ErrPresignUnsupported = errors.New("presigned uploads are not supported by this storage backend")

// ErrInvalidKey is returned for object keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore is the storage abstraction behind image attachments.
type ObjectStore interface {
	Backend() string
	// Put stores the object and returns its public URL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// PresignPut returns a URL the client can PUT the object to until ttl passes.
	// A non-empty contentType is signed, so the upload must send that Content-Type.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PublicURL(key string) string
	// KeyFromURL reports the object key behind a public URL of this store.
	KeyFromURL(rawURL string) (string, bool)
}

// New builds the store selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return NewS3Store(ctx, S3Options{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKeyID,
			SecretKey:    cfg.S3SecretAccessKey,
			UseSSL:       cfg.S3UseSSL,
			BaseURL:      cfg.S3BaseURL(),
			CreateBucket: cfg.S3CreateBucket,
		})
	case config.StorageLocal, "":
		return NewLocalStore(cfg.UploadDir, cfg.MediaBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// cleanKey normalizes a slash-separated key and rejects traversal.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || cleaned != strings.TrimPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

func keyUnder(base, rawURL string) (string, bool) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if base == "" || !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	key, err := cleanKey(strings.TrimPrefix(rawURL, prefix))
	if err != nil {
		return "", false
	}
	return key, true
}
