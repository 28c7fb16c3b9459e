package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carkey/internal/config"
	"carkey/internal/middleware"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3 or MinIO backed store.
type S3Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	BaseURL      string
	CreateBucket bool
}

type s3Store struct {
	cli     *minio.Client
	bucket  string
	baseURL string
}

// NewS3Store connects to the endpoint. The bucket is created when missing and
// CreateBucket is set; otherwise no request is made until first use.
func NewS3Store(ctx context.Context, opts S3Options) (ObjectStore, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	endpoint := opts.Endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		opts.UseSSL = u.Scheme == "https"
	}
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}

	if opts.CreateBucket {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		exists, err := cli.BucketExists(ctx, opts.Bucket)
		if err != nil {
			return nil, fmt.Errorf("storage: bucket check: %w", err)
		}
		if !exists {
			if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
				return nil, fmt.Errorf("storage: create bucket %s: %w", opts.Bucket, err)
			}
			middleware.Logger.Info("Created storage bucket", "bucket", opts.Bucket)
		}
	}

	return &s3Store{cli: cli, bucket: opts.Bucket, baseURL: strings.TrimSuffix(opts.BaseURL, "/")}, nil
}

func (s *s3Store) Backend() string { return config.StorageS3 }

func (s *s3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if _, err := s.cli.PutObject(ctx, s.bucket, cleaned, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", err
	}
	return s.PublicURL(cleaned), nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = s.cli.RemoveObject(ctx, s.bucket, cleaned, minio.RemoveObjectOptions{})
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return err
}

func (s *s3Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	hdr := make(http.Header)
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	u, err := s.cli.PresignHeader(ctx, http.MethodPut, s.bucket, cleaned, ttl, nil, hdr)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *s3Store) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

func (s *s3Store) KeyFromURL(rawURL string) (string, bool) {
	return keyUnder(s.baseURL, rawURL)
}
