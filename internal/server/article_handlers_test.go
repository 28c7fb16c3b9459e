package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotices_AnonymousReadStaffWrite(t *testing.T) {
	env := newTestServer(t)
	user, _ := env.signup("alice")
	env.signup("admin")
	env.promote("admin")
	staff, _ := env.login("admin")

	notice := fiber.Map{"title": "Holiday hours", "content": "Closed on the 25th"}

	status, _ := env.doJSON(http.MethodPost, "/api/notices", notice, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.doJSON(http.MethodPost, "/api/notices", notice, user)
	assert.Equal(t, http.StatusForbidden, status)

	status, created := env.doJSON(http.MethodPost, "/api/notices", notice, staff)
	require.Equal(t, http.StatusCreated, status, created)
	id := uint(created["id"].(float64))

	status, list := env.doJSON(http.MethodGet, "/api/notices", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), list["count"])

	status, got := env.doJSON(http.MethodGet, fmt.Sprintf("/api/notices/%d", id), nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Holiday hours", got["title"])

	status, _ = env.doJSON(http.MethodPatch, fmt.Sprintf("/api/notices/%d", id), fiber.Map{"title": "x"}, user)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestFeedbacks_RequireAuth(t *testing.T) {
	env := newTestServer(t)
	status, _ := env.doJSON(http.MethodGet, "/api/feedbacks", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	alice, _ := env.signup("alice")
	bob, _ := env.signup("bob")
	status, created := env.doJSON(http.MethodPost, "/api/feedbacks", fiber.Map{
		"title":   "Estimate seems off",
		"content": "The analysis missed the rear panel",
	}, alice)
	require.Equal(t, http.StatusCreated, status, created)
	path := fmt.Sprintf("/api/feedbacks/%d", uint(created["id"].(float64)))

	status, _ = env.do(http.MethodDelete, path, nil, bob)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(http.MethodDelete, path, nil, alice)
	assert.Equal(t, http.StatusNoContent, status)
}
