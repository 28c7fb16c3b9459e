package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:            "development",
		JWTSecret:      "secure-secret-at-least-32-chars-long",
		DBPassword:     "secure-password",
		DBDriver:       "postgres",
		Port:           "8080",
		DeploymentMode: DeploymentOnPrem,
		StorageBackend: StorageLocal,
		PageSize:       10,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with disable SSL mode", "prod", "disable", true},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"bad driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"bad deployment mode", func(c *Config) { c.DeploymentMode = "gcp" }, "DEPLOYMENT_MODE"},
		{"bad storage backend", func(c *Config) { c.StorageBackend = "ftp" }, "STORAGE_BACKEND"},
		{"s3 without bucket", func(c *Config) {
			c.StorageBackend = StorageS3
			c.S3Endpoint = "s3.amazonaws.com"
		}, "AWS_S3_BUCKET"},
		{"page size too large", func(c *Config) { c.PageSize = 500 }, "PAGE_SIZE"},
		{"production default secret", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
			c.JWTSecret = defaultJWTSecret
		}, "changed from the default"},
		{"production short secret", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
			c.JWTSecret = "short"
		}, "at least 32"},
		{"production weak db password", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
			c.DBPassword = "password"
		}, "DB_PASSWORD"},
		{"production sqlite skips db checks", func(c *Config) {
			c.Env = "production"
			c.DBDriver = "sqlite"
			c.DBPassword = ""
		}, ""},
		{"production s3 without credentials", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
			c.StorageBackend = StorageS3
			c.S3Bucket = "carkey"
			c.S3Endpoint = "s3.amazonaws.com"
		}, "AWS_ACCESS_KEY_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	c := &Config{}
	assert.Equal(t, time.Hour, c.AccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL())
	assert.Equal(t, 5*time.Minute, c.PresignTTL())

	c.AccessTokenTTLMinutes = 15
	c.RefreshTokenTTLHours = 2
	c.PresignTTLSeconds = 60
	assert.Equal(t, 15*time.Minute, c.AccessTokenTTL())
	assert.Equal(t, 2*time.Hour, c.RefreshTokenTTL())
	assert.Equal(t, time.Minute, c.PresignTTL())
}

func TestConfig_S3BaseURL(t *testing.T) {
	c := &Config{S3Bucket: "carkey-media", S3Region: "ap-northeast-2"}
	assert.Equal(t, "https://carkey-media.s3.ap-northeast-2.amazonaws.com", c.S3BaseURL())

	c.S3PublicBaseURL = "http://localhost:9000/carkey-media"
	assert.Equal(t, "http://localhost:9000/carkey-media", c.S3BaseURL())
}

func TestLoadConfig_Normalization(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DEPLOYMENT_MODE", " AWS ")
	t.Setenv("MEDIA_BASE_URL", "/static/media/")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, DeploymentAWS, c.DeploymentMode)
	assert.Equal(t, "/static/media", c.MediaBaseURL)
	assert.Equal(t, 10, c.PageSize)
	assert.Equal(t, 300, c.PresignTTLSeconds)
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	defer viper.Reset()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BEST_BOARD_THRESHOLD=3\nPAGE_SIZE=20\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	t.Setenv("APP_ENV", "development")
	t.Setenv("PAGE_SIZE", "15")
	// godotenv never overrides variables that are already set; clear the one we read back.
	_ = os.Unsetenv("BEST_BOARD_THRESHOLD")
	defer os.Unsetenv("BEST_BOARD_THRESHOLD")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, c.BestBoardThreshold)
	assert.Equal(t, 15, c.PageSize)
}
