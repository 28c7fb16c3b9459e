package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"carkey/internal/config"
)

type localStore struct {
	dir     string
	baseURL string
}

// NewLocalStore stores objects below dir and serves them from baseURL.
func NewLocalStore(dir, baseURL string) (ObjectStore, error) {
	if dir == "" {
		return nil, errors.New("storage: upload dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, err
	}
	return &localStore{dir: abs, baseURL: baseURL}, nil
}

func (s *localStore) Backend() string { return config.StorageLocal }

// Dir is the filesystem root that the HTTP layer serves under the base URL.
func (s *localStore) Dir() string { return s.dir }

func (s *localStore) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(cleaned)), nil
}

func (s *localStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", err
	}
	// #nosec G304: p is confined to s.dir by cleanKey
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *localStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *localStore) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

func (s *localStore) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

func (s *localStore) KeyFromURL(rawURL string) (string, bool) {
	return keyUnder(s.baseURL, rawURL)
}
