// Package bootstrap opens the process-wide dependencies shared by the commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"carkey/internal/cache"
	"carkey/internal/config"
	"carkey/internal/database"
	"carkey/internal/middleware"
	"carkey/internal/models"
	"carkey/internal/observability"
	"carkey/internal/repository"
	"carkey/internal/storage"
	"carkey/internal/validation"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	defaultRootUsername = "carkey_root"
	defaultRootEmail    = "root@carkey.local"
)

// Runtime holds what InitRuntime opened. Redis is nil when unreachable.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Store storage.ObjectStore

	stopTracing func(context.Context) error
}

// InitRuntime starts tracing, connects the database (applying the schema),
// Redis and object storage, then ensures the development root account.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	stopTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "carkey-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing setup failed: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := cache.InitRedis(ctx, cfg.RedisURL); err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without it", "error", err)
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object storage setup failed: %w", err)
	}

	if err := EnsureDevRoot(ctx, cfg, db); err != nil {
		return nil, fmt.Errorf("failed to bootstrap development root account: %w", err)
	}

	return &Runtime{DB: db, Redis: cache.GetClient(), Store: store, stopTracing: stopTracing}, nil
}

// Close flushes pending spans. The server owns DB and Redis shutdown.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil || rt.stopTracing == nil {
		return nil
	}
	return rt.stopTracing(ctx)
}

// EnsureDevRoot creates or promotes a staff account in development when
// DEV_BOOTSTRAP_ROOT is set. An existing account keeps its password.
func EnsureDevRoot(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	username := strings.TrimSpace(cfg.DevRootUsername)
	if username == "" {
		username = defaultRootUsername
	}
	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = defaultRootEmail
	}
	if cfg.DevRootPassword == "" {
		return errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}
	if err := validation.ValidatePassword(cfg.DevRootPassword); err != nil {
		return fmt.Errorf("DEV_ROOT_PASSWORD: %w", err)
	}

	users := repository.NewUserRepository(db)
	existing, err := users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		if !existing.IsStaff {
			if err := users.SetStaff(ctx, existing.ID, true); err != nil {
				return err
			}
		}
		middleware.Logger.Info("development root account promoted", "user_id", existing.ID, "username", username)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}
	root := &models.User{Username: username, Email: email, Password: string(hash), IsStaff: true}
	if err := users.Create(ctx, root); err != nil {
		return err
	}
	middleware.Logger.Info("development root account created", "user_id", root.ID, "username", username)
	return nil
}
