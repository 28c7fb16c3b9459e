package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"carkey/internal/config"
	"carkey/internal/models"
	"carkey/internal/storage"
	"carkey/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const strongPassword = "Sup3r$ecret!1"

type testEnv struct {
	t   *testing.T
	s   *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		RefreshTokenTTLHours:  24,
		Env:                   "test",
		DBDriver:              "sqlite",
		AllowedOrigins:        "*",
		DeploymentMode:        config.DeploymentOnPrem,
		PageSize:              2,
		BestBoardThreshold:    2,
		StorageBackend:        config.StorageLocal,
		UploadDir:             t.TempDir(),
		MediaBaseURL:          "/media",
		ImageMaxUploadSizeMB:  5,
		PresignTTLSeconds:     300,
	}
}

// newTestServer wires the full route table against in-memory SQLite,
// miniredis and a temp-dir object store.
func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}

	db := testutil.NewSQLiteDB(t)
	mr, rdb := testutil.NewRedis(t)

	store, err := storage.NewLocalStore(cfg.UploadDir, cfg.MediaBaseURL)
	require.NoError(t, err)

	s, err := NewServerWithDeps(cfg, db, rdb, store)
	require.NoError(t, err)

	app := s.NewApp()
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	t.Cleanup(func() { s.errorRecorder.Wait() })

	return &testEnv{t: t, s: s, app: app, db: db, mr: mr, rdb: rdb}
}

// do sends a JSON request and returns the status and raw body.
func (e *testEnv) do(method, path string, body interface{}, token string) (int, []byte) {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp.StatusCode, out
}

// doJSON is do plus decoding into a map.
func (e *testEnv) doJSON(method, path string, body interface{}, token string) (int, map[string]interface{}) {
	e.t.Helper()
	status, raw := e.do(method, path, body, token)
	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(e.t, json.Unmarshal(raw, &out), string(raw))
	}
	return status, out
}

// signup registers a user and returns an access and refresh token.
func (e *testEnv) signup(username string) (access, refresh string) {
	e.t.Helper()
	status, _ := e.doJSON(http.MethodPost, "/api/register", fiber.Map{
		"username": username,
		"email":    username + "@example.com",
		"password": strongPassword,
	}, "")
	require.Equal(e.t, http.StatusCreated, status)
	return e.login(username)
}

func (e *testEnv) login(username string) (access, refresh string) {
	e.t.Helper()
	status, body := e.doJSON(http.MethodPost, "/api/token", fiber.Map{
		"username": username,
		"password": strongPassword,
	}, "")
	require.Equal(e.t, http.StatusOK, status, body)
	return body["access"].(string), body["refresh"].(string)
}

func (e *testEnv) promote(username string) {
	e.t.Helper()
	require.NoError(e.t, e.db.Model(&models.User{}).
		Where("username = ?", username).
		Update("is_staff", true).Error)
}

func (e *testEnv) createBoard(token, title string) uint {
	e.t.Helper()
	status, body := e.doJSON(http.MethodPost, "/api/boards", fiber.Map{
		"title":   title,
		"content": title + " content",
	}, token)
	require.Equal(e.t, http.StatusCreated, status, body)
	return uint(body["id"].(float64))
}
