// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Deployment modes select the board edit policy.
const (
	DeploymentOnPrem = "onprem"
	DeploymentAWS    = "aws"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	RefreshTokenTTLHours  int    `mapstructure:"REFRESH_TOKEN_TTL_HOURS"`
	Port                  string `mapstructure:"PORT"`
	Env                   string `mapstructure:"APP_ENV"`

	DBDriver                      string `mapstructure:"DB_DRIVER"`
	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBSQLitePath                  string `mapstructure:"DB_SQLITE_PATH"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBReadHost                    string `mapstructure:"DB_READ_HOST"`
	DBReadPort                    string `mapstructure:"DB_READ_PORT"`
	DBReadUser                    string `mapstructure:"DB_READ_USER"`
	DBReadPassword                string `mapstructure:"DB_READ_PASSWORD"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	DeploymentMode     string `mapstructure:"DEPLOYMENT_MODE"`
	PageSize           int    `mapstructure:"PAGE_SIZE"`
	BestBoardThreshold int    `mapstructure:"BEST_BOARD_THRESHOLD"`

	StorageBackend       string `mapstructure:"STORAGE_BACKEND"`
	UploadDir            string `mapstructure:"UPLOAD_DIR"`
	MediaBaseURL         string `mapstructure:"MEDIA_BASE_URL"`
	ImageMaxUploadSizeMB int    `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`
	S3Endpoint           string `mapstructure:"S3_ENDPOINT"`
	S3Region             string `mapstructure:"AWS_REGION"`
	S3Bucket             string `mapstructure:"AWS_S3_BUCKET"`
	S3AccessKeyID        string `mapstructure:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey    string `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	S3UseSSL             bool   `mapstructure:"S3_USE_SSL"`
	S3PublicBaseURL      string `mapstructure:"S3_PUBLIC_BASE_URL"`
	S3CreateBucket       bool   `mapstructure:"S3_CREATE_BUCKET"`
	PresignTTLSeconds    int    `mapstructure:"PRESIGN_TTL_SECONDS"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	DevBootstrapRoot bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootUsername  string `mapstructure:"DEV_ROOT_USERNAME"`
	DevRootEmail     string `mapstructure:"DEV_ROOT_EMAIL"`
	DevRootPassword  string `mapstructure:"DEV_ROOT_PASSWORD"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A .env file is optional; variables already set in the process win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARNING: could not parse .env: %v", err)
	}

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file may not exist.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 60)
	viper.SetDefault("REFRESH_TOKEN_TTL_HOURS", 168)

	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "carkey")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SQLITE_PATH", "carkey.db")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("DB_READ_HOST", "")
	viper.SetDefault("DB_READ_PORT", "5432")
	viper.SetDefault("DB_READ_USER", "user")
	viper.SetDefault("DB_READ_PASSWORD", "password")

	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FEATURE_FLAGS", "")

	viper.SetDefault("DEPLOYMENT_MODE", DeploymentOnPrem)
	viper.SetDefault("PAGE_SIZE", 10)
	viper.SetDefault("BEST_BOARD_THRESHOLD", 10)

	viper.SetDefault("STORAGE_BACKEND", StorageLocal)
	viper.SetDefault("UPLOAD_DIR", "./media")
	viper.SetDefault("MEDIA_BASE_URL", "/media")
	viper.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 10)
	viper.SetDefault("S3_ENDPOINT", "s3.amazonaws.com")
	viper.SetDefault("AWS_REGION", "ap-northeast-2")
	viper.SetDefault("AWS_S3_BUCKET", "")
	viper.SetDefault("AWS_ACCESS_KEY_ID", "")
	viper.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	viper.SetDefault("S3_USE_SSL", true)
	viper.SetDefault("S3_PUBLIC_BASE_URL", "")
	viper.SetDefault("S3_CREATE_BUCKET", false)
	viper.SetDefault("PRESIGN_TTL_SECONDS", 300)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("DEV_BOOTSTRAP_ROOT", true)
	viper.SetDefault("DEV_ROOT_USERNAME", "root")
	viper.SetDefault("DEV_ROOT_EMAIL", "root@carkey.local")
	viper.SetDefault("DEV_ROOT_PASSWORD", "")
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.DeploymentMode = strings.ToLower(strings.TrimSpace(c.DeploymentMode))
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.MediaBaseURL = strings.TrimRight(c.MediaBaseURL, "/")
	c.S3PublicBaseURL = strings.TrimRight(c.S3PublicBaseURL, "/")
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// AccessTokenTTL returns the lifetime of access tokens.
func (c *Config) AccessTokenTTL() time.Duration {
	if c.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the lifetime of refresh tokens.
func (c *Config) RefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.RefreshTokenTTLHours) * time.Hour
}

// PresignTTL returns how long presigned upload URLs stay valid.
func (c *Config) PresignTTL() time.Duration {
	if c.PresignTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.PresignTTLSeconds) * time.Second
}

// S3BaseURL is the public prefix of stored objects, used to build and to recognize object URLs.
func (c *Config) S3BaseURL() string {
	if c.S3PublicBaseURL != "" {
		return c.S3PublicBaseURL
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.S3Bucket, c.S3Region)
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.DBDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	switch c.DeploymentMode {
	case "", DeploymentOnPrem, DeploymentAWS:
	default:
		return fmt.Errorf("DEPLOYMENT_MODE must be onprem or aws, got %q", c.DeploymentMode)
	}
	switch c.StorageBackend {
	case "", StorageLocal:
	case StorageS3:
		if c.S3Bucket == "" || c.S3Endpoint == "" {
			return errors.New("AWS_S3_BUCKET and S3_ENDPOINT are required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", c.StorageBackend)
	}
	if c.ImageMaxUploadSizeMB < 0 {
		return errors.New("IMAGE_MAX_UPLOAD_SIZE_MB must not be negative")
	}
	if c.PageSize > 100 {
		return errors.New("PAGE_SIZE must not exceed 100")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver != "sqlite" {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				return errors.New("DB_SSLMODE must not be 'disable' in production")
			}
		}
		if c.StorageBackend == StorageS3 && (c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
			return errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
