package server

import (
	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
)

// articleRoutes mounts CRUD for feedbacks or notices. Read and write rules
// live in the service, so the same handlers serve both.
func (s *Server) articleRoutes(r fiber.Router, svc *service.ArticleService) {
	h := articleHandlers{s: s, svc: svc}
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/upload", s.UploadImages(svc.Kind()))
	r.Get("/:id", h.get)
	r.Put("/:id", h.update)
	r.Patch("/:id", h.update)
	r.Delete("/:id", h.delete)
}

type articleHandlers struct {
	s   *Server
	svc *service.ArticleService
}

type articleRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (h articleHandlers) list(c *fiber.Ctx) error {
	page, err := h.s.parsePage(c)
	if err != nil {
		return nil
	}
	items, total, err := h.svc.List(c.Context(), actor(c), listQuery(c, page, actor(c).ID))
	if err != nil {
		return h.s.fail(c, err)
	}
	return respondPage(c, page, items, total)
}

func (h articleHandlers) get(c *fiber.Ctx) error {
	id, err := h.s.parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := h.svc.Get(c.Context(), actor(c), id)
	if err != nil {
		return h.s.fail(c, err)
	}
	return c.JSON(item)
}

func (h articleHandlers) create(c *fiber.Ctx) error {
	var req articleRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	item, err := h.svc.Create(c.Context(), actor(c), service.ArticleInput{Title: req.Title, Content: req.Content})
	if err != nil {
		return h.s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h articleHandlers) update(c *fiber.Ctx) error {
	id, err := h.s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req articleRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	item, err := h.svc.Update(c.Context(), actor(c), id, service.ArticleInput{Title: req.Title, Content: req.Content})
	if err != nil {
		return h.s.fail(c, err)
	}
	return c.JSON(item)
}

func (h articleHandlers) delete(c *fiber.Ctx) error {
	id, err := h.s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := h.svc.Delete(c.Context(), actor(c), id); err != nil {
		return h.s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
