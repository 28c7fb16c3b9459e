package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := Logger
	Logger = NewLogger(buf, "test", "debug")
	t.Cleanup(func() { Logger = prev })
	return buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":     slog.LevelDebug,
		" warning ": slog.LevelWarn,
		"warn":      slog.LevelWarn,
		"error":     slog.LevelError,
		"":          slog.LevelInfo,
		"chatty":    slog.LevelInfo,
	}
	for raw, want := range tests {
		assert.Equal(t, want, parseLevel(raw), raw)
	}
}

func TestIsQuietPath(t *testing.T) {
	assert.True(t, isQuietPath("/health"))
	assert.True(t, isQuietPath("/health/ready"))
	assert.True(t, isQuietPath("/metrics"))
	assert.False(t, isQuietPath("/healthy"))
	assert.False(t, isQuietPath("/api/boards"))
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(buf, "Production", "info")

	ctx := context.WithValue(context.Background(), RequestIDKey, "abc")
	l.With("component", "test").InfoContext(ctx, "hello")
	l.DebugContext(ctx, "hidden")

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"request_id":"abc"`)
	assert.Contains(t, out, `"component":"test"`)
	assert.NotContains(t, out, "hidden")
}

func TestStructuredLogger_IncludesRequestAndUser(t *testing.T) {
	buf := captureLogger(t)

	app := fiber.New()
	app.Use(requestid.New(requestid.Config{Generator: func() string { return "req-123" }}))
	app.Use(ContextMiddleware())
	app.Use(StructuredLogger())
	app.Get("/api/boards", func(c *fiber.Ctx) error {
		c.Locals("userID", uint(9))
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/health/live", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	_, err := app.Test(httptest.NewRequest("GET", "/api/boards", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "request processed")
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "request_id=req-123")
	assert.Contains(t, out, "user_id=9")
	assert.Contains(t, out, "path=/api/boards")
	assert.NotContains(t, out, "/health/live")
}

func TestStructuredLogger_LevelFollowsStatus(t *testing.T) {
	buf := captureLogger(t)

	app := fiber.New()
	app.Use(StructuredLogger())
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/broken", func(c *fiber.Ctx) error { return assert.AnError })

	_, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=404")

	buf.Reset()
	_, err = app.Test(httptest.NewRequest("GET", "/broken", nil))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "request failed")
	assert.Contains(t, buf.String(), "status=500")
}
