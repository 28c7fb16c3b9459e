package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"carkey/internal/featureflags"
	"carkey/internal/middleware"
	"carkey/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	blacklistPrefix = "blacklist:"
	wsTicketPrefix  = "ws_ticket:"
)

func blacklistKey(jti string) string { return blacklistPrefix + jti }

func wsTicketKey(ticket string) string { return wsTicketPrefix + ticket }

// isRevoked reports whether the token's jti was blacklisted at logout.
// Without Redis nothing can be revoked.
func (s *Server) isRevoked(ctx context.Context, jti string) bool {
	if s.redis == nil || jti == "" {
		return false
	}
	n, err := s.redis.Exists(ctx, blacklistKey(jti)).Result()
	return err == nil && n > 0
}

// authenticate resolves the bearer access token into the stored user.
func (s *Server) authenticate(c *fiber.Ctx) (*models.User, *middleware.TokenClaims, error) {
	raw, err := middleware.BearerToken(c)
	if err != nil {
		return nil, nil, err
	}
	claims, err := s.tokens.Parse(raw, middleware.TokenAccess)
	if err != nil {
		return nil, nil, err
	}
	if s.isRevoked(c.Context(), claims.JTI) {
		return nil, nil, middleware.ErrInvalidToken
	}
	user, err := s.userService.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		// Tokens of deleted accounts stop working immediately.
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, nil, middleware.ErrInvalidToken
		}
		return nil, nil, err
	}
	return user, claims, nil
}

func setUser(c *fiber.Ctx, user *models.User, claims *middleware.TokenClaims) {
	c.Locals("userID", user.ID)
	c.Locals("isStaff", user.IsStaff)
	if claims != nil {
		c.Locals("tokenClaims", claims)
	}
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, user.ID)
	c.SetUserContext(ctx)
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, err := s.authenticate(c)
		if err != nil {
			switch {
			case errors.Is(err, middleware.ErrMissingToken):
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Authentication credentials were not provided."))
			case errors.Is(err, middleware.ErrInvalidToken), errors.Is(err, middleware.ErrWrongTokenType):
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Given token not valid for any token type"))
			default:
				return s.fail(c, err)
			}
		}
		setUser(c, user, claims)
		return c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is presented and lets
// anonymous requests through.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user, claims, err := s.authenticate(c); err == nil {
			setUser(c, user, claims)
		}
		return c.Next()
	}
}

// AdminRequired returns middleware that rejects non-staff users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if staff, _ := c.Locals("isStaff").(bool); !staff {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// WSTicketRequired authenticates a socket upgrade with a single-use ticket
// issued by IssueWSTicket. Browsers cannot set headers on WebSocket requests.
func (s *Server) WSTicketRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ticket := c.Query("ticket")
		if ticket == "" || s.redis == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("WebSocket ticket required"))
		}

		raw, err := s.redis.GetDel(c.Context(), wsTicketKey(ticket)).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				middleware.Logger.WarnContext(c.UserContext(), "ws ticket lookup failed", "error", err)
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
		}

		user, err := s.userService.GetUserByID(c.Context(), uint(id))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError(fmt.Sprintf("Unknown user %d", id)))
		}
		if !s.featureFlags.Enabled(featureflags.RealtimeNotifications, user.ID) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Realtime notifications are disabled"))
		}
		setUser(c, user, nil)
		return c.Next()
	}
}
