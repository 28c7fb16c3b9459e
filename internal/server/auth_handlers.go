package server

import (
	"strconv"
	"strings"
	"time"

	"carkey/internal/middleware"
	"carkey/internal/models"
	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const wsTicketTTL = 30 * time.Second

// Register handles POST /api/register
// @Summary Register
// @Description Create a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string} true "Registration request"
// @Success 201 {object} object{id=int,username=string,email=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Register(c.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// ObtainToken handles POST /api/token
// @Summary Obtain a token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,password=string} true "Credentials"
// @Success 200 {object} object{access=string,refresh=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /token [post]
func (s *Server) ObtainToken(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Authenticate(c.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return s.fail(c, err)
	}

	access, refresh, err := s.tokens.IssuePair(user.ID, user.Username)
	if err != nil {
		return s.fail(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"access": access, "refresh": refresh})
}

// RefreshToken handles POST /api/token/refresh
// @Summary Exchange a refresh token for a new access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{refresh=string} true "Refresh token"
// @Success 200 {object} object{access=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /token/refresh [post]
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.Refresh == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("refresh is required"))
	}

	invalid := models.NewUnauthorizedError("Token is invalid or expired")
	claims, err := s.tokens.Parse(req.Refresh, middleware.TokenRefresh)
	if err != nil || s.isRevoked(c.Context(), claims.JTI) {
		return models.RespondWithError(c, fiber.StatusUnauthorized, invalid)
	}
	user, err := s.userService.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, invalid)
	}

	access, err := s.tokens.Issue(user.ID, user.Username, middleware.TokenAccess)
	if err != nil {
		return s.fail(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"access": access})
}

// Logout handles POST /api/auth/logout. The presented access token, and the
// refresh token when one is sent, stay blacklisted until they expire.
func (s *Server) Logout(c *fiber.Ctx) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	// The body is optional.
	_ = c.BodyParser(&req)

	revoked := make([]*middleware.TokenClaims, 0, 2)
	if claims, ok := c.Locals("tokenClaims").(*middleware.TokenClaims); ok {
		revoked = append(revoked, claims)
	}
	if req.Refresh != "" {
		if claims, err := s.tokens.Parse(req.Refresh, middleware.TokenRefresh); err == nil && claims.UserID == actor(c).ID {
			revoked = append(revoked, claims)
		}
	}

	if s.redis == nil {
		middleware.Logger.WarnContext(c.UserContext(), "logout without redis, tokens stay valid until expiry")
	} else {
		for _, claims := range revoked {
			ttl := time.Until(claims.ExpiresAt)
			if claims.JTI == "" || ttl <= 0 {
				continue
			}
			if err := s.redis.Set(c.Context(), blacklistKey(claims.JTI), "1", ttl).Err(); err != nil {
				return s.fail(c, models.NewInternalError(err))
			}
		}
	}

	return c.JSON(fiber.Map{"detail": "Successfully logged out."})
}

// Me handles GET /api/me
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.Context(), actor(c).ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(user)
}

// CheckUsername handles GET /api/user/check-username?username=
func (s *Server) CheckUsername(c *fiber.Ctx) error {
	exists, err := s.userService.UsernameExists(c.Context(), c.Query("username"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"exists": exists})
}

// CheckEmail handles GET /api/user/check-email?email=
func (s *Server) CheckEmail(c *fiber.Ctx) error {
	exists, err := s.userService.EmailExists(c.Context(), c.Query("email"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"exists": exists})
}

// IssueWSTicket handles POST /api/ws/ticket. The ticket is single-use and
// expires after 30 seconds.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRealtimeUnavailable))
	}

	ticket := uuid.NewString()
	userID := actor(c).ID
	if err := s.redis.Set(c.Context(), wsTicketKey(ticket), strconv.FormatUint(uint64(userID), 10), wsTicketTTL).Err(); err != nil {
		return s.fail(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}
