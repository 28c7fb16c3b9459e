package server

import (
	"time"

	"carkey/internal/middleware"
	"carkey/internal/models"
	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
)

// replyRoutes mounts one of the three reply endpoints. The target is named
// after the kind: ?board=, ?feedback= or ?notice=.
func (s *Server) replyRoutes(r fiber.Router, svc *service.ReplyService) {
	h := replyHandlers{s: s, svc: svc}
	r.Get("/", h.list)
	r.Post("/", middleware.RateLimit(s.redis, middleware.Rule{Name: "create_reply", Limit: 20, Window: time.Minute}), h.create)
	r.Get("/:id", h.get)
	r.Put("/:id", h.update)
	r.Patch("/:id", h.update)
	r.Delete("/:id", h.delete)
}

type replyHandlers struct {
	s   *Server
	svc *service.ReplyService
}

type createReplyRequest struct {
	Board    *uint  `json:"board"`
	Feedback *uint  `json:"feedback"`
	Notice   *uint  `json:"notice"`
	Parent   *uint  `json:"parent"`
	Comment  string `json:"comment"`
}

func (r createReplyRequest) target(kind models.ContentKind) uint {
	var id *uint
	switch kind {
	case models.KindBoard:
		id = r.Board
	case models.KindFeedback:
		id = r.Feedback
	case models.KindNotice:
		id = r.Notice
	}
	if id == nil {
		return 0
	}
	return *id
}

// list returns the root tree of one target, or every reply paginated.
func (h replyHandlers) list(c *fiber.Ctx) error {
	targetID, filtered, err := queryID(c, string(h.svc.Kind()))
	if err != nil {
		return nil
	}
	if filtered {
		tree, err := h.svc.ListByTarget(c.Context(), targetID)
		if err != nil {
			return h.s.fail(c, err)
		}
		return c.JSON(tree)
	}

	page, err := h.s.parsePage(c)
	if err != nil {
		return nil
	}
	replies, total, err := h.svc.List(c.Context(), page.Limit(), page.Offset())
	if err != nil {
		return h.s.fail(c, err)
	}
	return respondPage(c, page, replies, total)
}

func (h replyHandlers) create(c *fiber.Ctx) error {
	var req createReplyRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	reply, err := h.svc.Create(c.Context(), actor(c), service.CreateReplyInput{
		TargetID: req.target(h.svc.Kind()),
		ParentID: req.Parent,
		Comment:  req.Comment,
	})
	if err != nil {
		return h.s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply)
}

func (h replyHandlers) get(c *fiber.Ctx) error {
	id, err := h.s.parseID(c, "id")
	if err != nil {
		return nil
	}
	reply, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return h.s.fail(c, err)
	}
	return c.JSON(reply)
}

func (h replyHandlers) update(c *fiber.Ctx) error {
	id, err := h.s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	reply, err := h.svc.Update(c.Context(), actor(c), id, req.Comment)
	if err != nil {
		return h.s.fail(c, err)
	}
	return c.JSON(reply)
}

func (h replyHandlers) delete(c *fiber.Ctx) error {
	id, err := h.s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := h.svc.Delete(c.Context(), actor(c), id); err != nil {
		return h.s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
