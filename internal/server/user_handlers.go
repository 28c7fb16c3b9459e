package server

import (
	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
)

// maxUnpagedUsers caps GET /api/users/list.
const maxUnpagedUsers = 1000

// ListUsers handles GET /api/users. Staff page through everyone, other
// users only see themselves.
func (s *Server) ListUsers(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return nil
	}
	users, total, err := s.userService.ListUsers(c.Context(), actor(c), page.Limit(), page.Offset())
	if err != nil {
		return s.fail(c, err)
	}
	return respondPage(c, page, users, total)
}

// ListAllUsers handles GET /api/users/list (staff only)
func (s *Server) ListAllUsers(c *fiber.Ctx) error {
	users, _, err := s.userService.ListUsers(c.Context(), actor(c), maxUnpagedUsers, 0)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(users)
}

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetUser(c.Context(), actor(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(user)
}

// UpdateUser handles PUT and PATCH /api/users/:id
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
		IsStaff  *bool   `json:"is_staff"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.UpdateUser(c.Context(), actor(c), id, service.UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		IsStaff:  req.IsStaff,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(user)
}

// DeleteUser handles DELETE /api/users/:id
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.userService.DeleteUser(c.Context(), actor(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SetPassword handles POST /api/users/:id/set_password
func (s *Server) SetPassword(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	if err := s.userService.SetPassword(c.Context(), actor(c), id, req.OldPassword, req.NewPassword); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"detail": "Password updated successfully"})
}
