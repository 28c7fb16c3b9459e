package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// notify has each commenter reply on the board so its author collects one
// notification per reply. It returns the notification IDs, newest first.
func (e *testEnv) notify(author string, boardID uint, commenters ...string) []uint {
	e.t.Helper()
	for _, token := range commenters {
		status, body := e.doJSON(http.MethodPost, "/api/replies", fiber.Map{
			"board":   boardID,
			"comment": "How much did it cost?",
		}, token)
		require.Equal(e.t, http.StatusCreated, status, body)
	}
	status, list := e.doJSON(http.MethodGet, "/api/notifications", nil, author)
	require.Equal(e.t, http.StatusOK, status)
	results := list["results"].([]interface{})
	ids := make([]uint, 0, len(results))
	for _, r := range results {
		ids = append(ids, uint(r.(map[string]interface{})["id"].(float64)))
	}
	return ids
}

func TestNotifications_RequireAuth(t *testing.T) {
	env := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/notifications"},
		{http.MethodGet, "/api/notifications/unread_count"},
		{http.MethodPost, "/api/notifications/mark_all_read"},
		{http.MethodPost, "/api/notifications/1/mark_read"},
		{http.MethodGet, "/api/notifications/1"},
		{http.MethodDelete, "/api/notifications/1"},
	} {
		status, _ := env.do(tc.method, tc.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, status, tc.method+" "+tc.path)
	}
}

func TestNotifications_ReadState(t *testing.T) {
	env := newTestServer(t)
	alice, _ := env.signup("alice")
	bob, _ := env.signup("bob")
	carol, _ := env.signup("carol")
	boardID := env.createBoard(alice, "Cracked bumper")
	ids := env.notify(alice, boardID, bob, carol)
	require.Len(t, ids, 2)

	status, body := env.doJSON(http.MethodGet, "/api/notifications/unread_count", nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, fiber.Map{"count": float64(2)}, fiber.Map(body))

	status, body = env.doJSON(http.MethodPost, fmt.Sprintf("/api/notifications/%d/mark_read", ids[0]), nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, fiber.Map{"status": "read"}, fiber.Map(body))

	status, body = env.doJSON(http.MethodGet, fmt.Sprintf("/api/notifications/%d", ids[0]), nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_read"])
	assert.Equal(t, float64(boardID), body["board"])
	assert.Equal(t, "Cracked bumper", body["board_title"])

	status, body = env.doJSON(http.MethodGet, "/api/notifications/unread_count", nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = env.doJSON(http.MethodPost, "/api/notifications/mark_all_read", nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, fiber.Map{"updated": float64(1)}, fiber.Map(body), "only unread rows count")

	status, body = env.doJSON(http.MethodPost, "/api/notifications/mark_all_read", nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["updated"])

	status, body = env.doJSON(http.MethodGet, "/api/notifications/unread_count", nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])
}

func TestNotifications_OtherUsersSeeNotFound(t *testing.T) {
	env := newTestServer(t)
	alice, _ := env.signup("alice")
	bob, _ := env.signup("bob")
	boardID := env.createBoard(alice, "Cracked bumper")
	ids := env.notify(alice, boardID, bob)
	require.Len(t, ids, 1)
	id := ids[0]

	status, _ := env.doJSON(http.MethodPost, fmt.Sprintf("/api/notifications/%d/mark_read", id), nil, bob)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = env.doJSON(http.MethodGet, fmt.Sprintf("/api/notifications/%d", id), nil, bob)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = env.doJSON(http.MethodDelete, fmt.Sprintf("/api/notifications/%d", id), nil, bob)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := env.doJSON(http.MethodPost, "/api/notifications/mark_all_read", nil, bob)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["updated"])

	status, body = env.doJSON(http.MethodGet, "/api/notifications/unread_count", nil, alice)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"], "bob's attempts leave alice's notification unread")

	status, _ = env.do(http.MethodDelete, fmt.Sprintf("/api/notifications/%d", id), nil, alice)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = env.doJSON(http.MethodGet, fmt.Sprintf("/api/notifications/%d", id), nil, alice)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNotifications_BadID(t *testing.T) {
	env := newTestServer(t)
	alice, _ := env.signup("alice")

	status, body := env.doJSON(http.MethodPost, "/api/notifications/abc/mark_read", nil, alice)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid ID", body["error"])

	status, _ = env.doJSON(http.MethodGet, "/api/notifications/0", nil, alice)
	assert.Equal(t, http.StatusBadRequest, status)
}
