package server

import (
	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
)

// recordRoutes mounts staff-only CRUD for one record table. Methods cannot
// carry type parameters, hence the plain function.
func recordRoutes[T any](r fiber.Router, s *Server, svc *service.RecordService[T]) {
	r.Get("/", func(c *fiber.Ctx) error {
		page, err := s.parsePage(c)
		if err != nil {
			return nil
		}
		rows, total, err := svc.List(c.Context(), actor(c), page.Limit(), page.Offset())
		if err != nil {
			return s.fail(c, err)
		}
		return respondPage(c, page, rows, total)
	})

	r.Post("/", func(c *fiber.Ctx) error {
		rec := new(T)
		if err := parseBody(c, rec); err != nil {
			return nil
		}
		created, err := svc.Create(c.Context(), actor(c), rec)
		if err != nil {
			return s.fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		rec, err := svc.Get(c.Context(), actor(c), id)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(rec)
	})

	update := func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		var body map[string]interface{}
		if err := parseBody(c, &body); err != nil {
			return nil
		}
		rec, err := svc.Update(c.Context(), actor(c), id, body)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(rec)
	}
	r.Put("/:id", update)
	r.Patch("/:id", update)

	r.Delete("/:id", func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		if err := svc.Delete(c.Context(), actor(c), id); err != nil {
			return s.fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := actor(c).ID
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(userID),
	})
}
