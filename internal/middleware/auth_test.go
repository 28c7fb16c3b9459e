package middleware

import (
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, 24*time.Hour)

	access, refresh, err := m.IssuePair(42, "kim")
	require.NoError(t, err)

	claims, err := m.Parse(access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "kim", claims.Username)
	assert.Equal(t, TokenAccess, claims.Type)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)

	rclaims, err := m.Parse(refresh, TokenRefresh)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), rclaims.ExpiresAt, 5*time.Second)
	assert.NotEqual(t, claims.JTI, rclaims.JTI)
}

func TestTokenManager_RejectsWrongType(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, time.Hour)
	refresh, err := m.Issue(1, "kim", TokenRefresh)
	require.NoError(t, err)

	_, err = m.Parse(refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = m.Parse(refresh, "")
	assert.NoError(t, err)
}

func TestTokenManager_RejectsInvalid(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, time.Hour)

	sign := func(secret string, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": strconv.Itoa(7),
			"iss": tokenIssuer,
			"aud": tokenAudience,
			"exp": time.Now().Add(time.Hour).Unix(),
			"typ": TokenAccess,
		}
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong secret", sign("other-secret", valid()), ErrInvalidToken},
		{"expired", sign(testSecret, func() jwt.MapClaims { c := valid(); c["exp"] = time.Now().Add(-time.Minute).Unix(); return c }()), ErrInvalidToken},
		{"wrong issuer", sign(testSecret, func() jwt.MapClaims { c := valid(); c["iss"] = "someone-else"; return c }()), ErrInvalidToken},
		{"wrong audience", sign(testSecret, func() jwt.MapClaims { c := valid(); c["aud"] = "other"; return c }()), ErrInvalidToken},
		{"non numeric subject", sign(testSecret, func() jwt.MapClaims { c := valid(); c["sub"] = "abc"; return c }()), ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Parse(tt.token, TokenAccess)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	ok, err := m.Parse(sign(testSecret, valid()), TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(7), ok.UserID)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"missing", "", "", ErrMissingToken},
		{"basic auth", "Basic dXNlcjpwYXNz", "", ErrInvalidToken},
		{"bearer only", "Bearer ", "", ErrInvalidToken},
		{"ok", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"case insensitive scheme", "bearer abc", "abc", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			var got string
			var gotErr error
			app.Get("/", func(c *fiber.Ctx) error {
				got, gotErr = BearerToken(c)
				return c.SendStatus(fiber.StatusNoContent)
			})
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, gotErr, tt.wantErr)
			} else {
				assert.NoError(t, gotErr)
			}
		})
	}
}
