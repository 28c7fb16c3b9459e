package server

import (
	"encoding/json"

	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
)

// optionalString tells an explicit null apart from an absent field.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type boardRequest struct {
	Title   *string        `json:"title"`
	Content *string        `json:"content"`
	Cost    optionalString `json:"cost"`
}

func (r boardRequest) input() service.BoardInput {
	return service.BoardInput{
		Title:   r.Title,
		Content: r.Content,
		Cost:    r.Cost.Value,
		CostSet: r.Cost.Set,
	}
}

// ListBoards handles GET /api/boards
// @Summary List boards
// @Tags boards
// @Produce json
// @Param page query int false "Page number"
// @Param search query string false "Matches title, content and author username"
// @Param ordering query string false "id, post_date, recommend_count; prefix - for descending"
// @Success 200 {object} object{count=int,next=string,previous=string,results=[]models.Board}
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /boards [get]
func (s *Server) ListBoards(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return nil
	}
	boards, total, err := s.boardService.List(c.Context(), listQuery(c, page, actor(c).ID))
	if err != nil {
		return s.fail(c, err)
	}
	return respondPage(c, page, boards, total)
}

// CreateBoard handles POST /api/boards
// @Summary Create a board
// @Tags boards
// @Accept json
// @Produce json
// @Param request body object{title=string,content=string,cost=string} true "Board"
// @Success 201 {object} models.Board
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /boards [post]
func (s *Server) CreateBoard(c *fiber.Ctx) error {
	var req boardRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	board, err := s.boardService.Create(c.Context(), actor(c), req.input())
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(board)
}

// GetBoard handles GET /api/boards/:id
func (s *Server) GetBoard(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	board, err := s.boardService.Get(c.Context(), id, actor(c).ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(board)
}

// UpdateBoard handles PUT and PATCH /api/boards/:id. Omitted fields keep
// their value; "cost": null clears the cost.
func (s *Server) UpdateBoard(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req boardRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	board, err := s.boardService.Update(c.Context(), actor(c), id, req.input())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(board)
}

// DeleteBoard handles DELETE /api/boards/:id
func (s *Server) DeleteBoard(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.boardService.Delete(c.Context(), actor(c), id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikeBoard handles POST /api/boards/:id/like
// @Summary Recommend a board
// @Tags boards
// @Produce json
// @Param id path int true "Board ID"
// @Success 200 {object} object{detail=string,recommend_count=int}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /boards/{id}/like [post]
func (s *Server) LikeBoard(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	count, err := s.boardService.Like(c.Context(), actor(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"detail": "Liked", "recommend_count": count})
}

// UnlikeBoard handles DELETE /api/boards/:id/like
func (s *Server) UnlikeBoard(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	count, err := s.boardService.Unlike(c.Context(), actor(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"detail": "Unliked", "recommend_count": count})
}

// ListBestBoards handles GET /api/bestboards
func (s *Server) ListBestBoards(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return nil
	}
	boards, total, err := s.boardService.ListBest(c.Context(), listQuery(c, page, actor(c).ID))
	if err != nil {
		return s.fail(c, err)
	}
	return respondPage(c, page, boards, total)
}

// GetBestBoard handles GET /api/bestboards/:id
func (s *Server) GetBestBoard(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	board, err := s.boardService.GetBest(c.Context(), id, actor(c).ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(board)
}
