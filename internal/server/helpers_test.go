package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"carkey/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"boardId", "board ID"},
		{"feedbackReplyId", "feedback reply ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", models.NewNotFoundError("Board", 1), fiber.StatusNotFound},
		{"validation", models.NewValidationError("bad"), fiber.StatusBadRequest},
		{"unauthorized", models.NewUnauthorizedError("who"), fiber.StatusUnauthorized},
		{"forbidden", models.NewForbiddenError("no"), fiber.StatusForbidden},
		{"wrapped", fmt.Errorf("outer: %w", models.NewForbiddenError("no")), fiber.StatusForbidden},
		{"deadline", context.DeadlineExceeded, fiber.StatusGatewayTimeout},
		{"plain", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapServiceError(tt.err))
		})
	}
}

func TestPageRequest(t *testing.T) {
	p := pageRequest{Number: 3, Size: 10}
	assert.Equal(t, 10, p.Limit())
	assert.Equal(t, 20, p.Offset())
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestServer(t)

	status, body := env.doJSON(http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "up", body["status"])

	status, body = env.doJSON(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "local", checks["storage"])

	env.mr.Close()
	status, body = env.doJSON(http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestErrorHandler_RecordsServerErrors(t *testing.T) {
	env := newTestServer(t)
	env.app.Get("/boom", func(c *fiber.Ctx) error {
		panic("kaput")
	})
	env.app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})

	status, body := env.doJSON(http.MethodGet, "/boom", nil, "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, models.CodeInternal, body["code"])

	status, body = env.doJSON(http.MethodGet, "/teapot", nil, "")
	assert.Equal(t, http.StatusTeapot, status)
	assert.Equal(t, "short and stout", body["error"])

	env.s.errorRecorder.Wait()
	var logs []models.ErrorLog
	require.NoError(t, env.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "HTTP_500", logs[0].Code)
	assert.Contains(t, logs[0].Message, "GET /boom")
}
