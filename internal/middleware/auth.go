// Package middleware provides the HTTP cross-cutting pieces: token handling,
// structured logging, rate limiting, metrics and tracing.
package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "typ" claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

const (
	tokenIssuer   = "carkey-api"
	tokenAudience = "carkey-client"
)

var (
	ErrMissingToken   = errors.New("authorization token required")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// TokenClaims is the verified content of a token.
type TokenClaims struct {
	UserID    uint
	Username  string
	Type      string
	JTI       string
	ExpiresAt time.Time
}

// TokenManager issues and verifies HS256 access and refresh tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenManager returns a TokenManager signing with secret.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a token of the given type for userID.
func (m *TokenManager) Issue(userID uint, username, typ string) (string, error) {
	ttl := m.accessTTL
	if typ == TokenRefresh {
		ttl = m.refreshTTL
	}
	now := m.now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(userID), 10),
		"username": username,
		"typ":      typ,
		"iss":      tokenIssuer,
		"aud":      tokenAudience,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      generateJTI(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// IssuePair returns a fresh access and refresh token.
func (m *TokenManager) IssuePair(userID uint, username string) (access, refresh string, err error) {
	if access, err = m.Issue(userID, username, TokenAccess); err != nil {
		return "", "", err
	}
	if refresh, err = m.Issue(userID, username, TokenRefresh); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Parse verifies signature, issuer, audience and expiry, and checks the type
// when wantType is non-empty.
func (m *TokenManager) Parse(raw, wantType string) (*TokenClaims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || id == 0 {
		return nil, ErrInvalidToken
	}
	typ, _ := claims["typ"].(string)
	if wantType != "" && typ != wantType {
		return nil, ErrWrongTokenType
	}

	out := &TokenClaims{UserID: uint(id), Type: typ}
	out.Username, _ = claims["username"].(string)
	out.JTI, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}

func generateJTI(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.Unix(), uuid.New().String()[:8])
}
