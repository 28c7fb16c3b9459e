package server

import "github.com/gofiber/fiber/v2"

// ListNotifications handles GET /api/notifications
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return nil
	}
	items, total, err := s.notificationService.List(c.Context(), actor(c), page.Limit(), page.Offset())
	if err != nil {
		return s.fail(c, err)
	}
	return respondPage(c, page, items, total)
}

// GetNotification handles GET /api/notifications/:id
func (s *Server) GetNotification(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	n, err := s.notificationService.Get(c.Context(), actor(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(n)
}

// MarkNotificationRead handles POST /api/notifications/:id/mark_read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.notificationService.MarkRead(c.Context(), actor(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "read"})
}

// MarkAllNotificationsRead handles POST /api/notifications/mark_all_read
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	updated, err := s.notificationService.MarkAllRead(c.Context(), actor(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// UnreadNotificationCount handles GET /api/notifications/unread_count
func (s *Server) UnreadNotificationCount(c *fiber.Ctx) error {
	count, err := s.notificationService.UnreadCount(c.Context(), actor(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// DeleteNotification handles DELETE /api/notifications/:id
func (s *Server) DeleteNotification(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.notificationService.Delete(c.Context(), actor(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
