package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow_RegisterTokenMe(t *testing.T) {
	env := newTestServer(t)
	access, refresh := env.signup("alice")
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	status, me := env.doJSON(http.MethodGet, "/api/me", nil, access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, false, me["is_staff"])
	_, hasPassword := me["password"]
	assert.False(t, hasPassword)

	t.Run("refresh token is not an access token", func(t *testing.T) {
		status, body := env.doJSON(http.MethodGet, "/api/me", nil, refresh)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Given token not valid for any token type", body["error"])
	})

	t.Run("missing credentials", func(t *testing.T) {
		status, body := env.doJSON(http.MethodGet, "/api/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Authentication credentials were not provided.", body["error"])
	})

	t.Run("refresh issues a new access token", func(t *testing.T) {
		status, body := env.doJSON(http.MethodPost, "/api/token/refresh", fiber.Map{"refresh": refresh}, "")
		require.Equal(t, http.StatusOK, status)
		next, _ := body["access"].(string)
		require.NotEmpty(t, next)

		status, _ = env.doJSON(http.MethodGet, "/api/me", nil, next)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("refresh rejects an access token", func(t *testing.T) {
		status, _ := env.doJSON(http.MethodPost, "/api/token/refresh", fiber.Map{"refresh": access}, "")
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestAuthFlow_WrongPassword(t *testing.T) {
	env := newTestServer(t)
	env.signup("alice")

	status, _ := env.doJSON(http.MethodPost, "/api/token", fiber.Map{
		"username": "alice",
		"password": "not-the-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestServer(t)
	env.signup("alice")

	tests := []struct {
		name string
		body fiber.Map
		want int
	}{
		{"weak password", fiber.Map{"username": "bob", "email": "bob@example.com", "password": "short"}, http.StatusBadRequest},
		{"duplicate username", fiber.Map{"username": "alice", "email": "other@example.com", "password": strongPassword}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.doJSON(http.MethodPost, "/api/register", tt.body, "")
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestLogout_RevokesAccessAndRefresh(t *testing.T) {
	env := newTestServer(t)
	access, refresh := env.signup("alice")

	status, body := env.doJSON(http.MethodPost, "/api/auth/logout", fiber.Map{"refresh": refresh}, access)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Successfully logged out.", body["detail"])

	status, _ = env.doJSON(http.MethodGet, "/api/me", nil, access)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.doJSON(http.MethodPost, "/api/token/refresh", fiber.Map{"refresh": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCheckUsernameAndEmail(t *testing.T) {
	env := newTestServer(t)
	env.signup("alice")

	status, body := env.doJSON(http.MethodGet, "/api/user/check-username?username=alice", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["exists"])

	status, body = env.doJSON(http.MethodGet, "/api/user/check-email?email=nobody@example.com", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["exists"])
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	env := newTestServer(t)
	access, _ := env.signup("alice")

	status, me := env.doJSON(http.MethodGet, "/api/me", nil, access)
	require.Equal(t, http.StatusOK, status)
	id := uint(me["id"].(float64))

	status, _ = env.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", id), nil, access)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = env.doJSON(http.MethodGet, "/api/me", nil, access)
	assert.Equal(t, http.StatusUnauthorized, status)
}
