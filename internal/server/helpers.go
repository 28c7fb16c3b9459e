// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"carkey/internal/models"
	"carkey/internal/repository"
	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

var errInvalidPage = &models.AppError{Code: models.CodeNotFound, Message: "Invalid page."}

const defaultPageSize = 10

// Page is the page-number pagination envelope shared by every list endpoint.
type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// pageRequest is a validated ?page= value together with the configured page size.
type pageRequest struct {
	Number int
	Size   int
}

func (p pageRequest) Limit() int  { return p.Size }
func (p pageRequest) Offset() int { return (p.Number - 1) * p.Size }

// parsePage reads ?page=. Anything that is not a positive integer writes a
// 404 and returns errResponseWritten.
func (s *Server) parsePage(c *fiber.Ctx) (pageRequest, error) {
	size := defaultPageSize
	if s.config != nil && s.config.PageSize > 0 {
		size = s.config.PageSize
	}
	req := pageRequest{Number: 1, Size: size}

	raw := strings.TrimSpace(c.Query("page"))
	if raw == "" {
		return req, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		_ = models.RespondWithError(c, fiber.StatusNotFound, errInvalidPage)
		return req, errResponseWritten
	}
	req.Number = n
	return req, nil
}

// respondPage writes the envelope, or 404 when the requested page lies past the last one.
func respondPage[T any](c *fiber.Ctx, req pageRequest, items []T, total int64) error {
	if req.Number > 1 && int64(req.Offset()) >= total {
		return models.RespondWithError(c, fiber.StatusNotFound, errInvalidPage)
	}
	if items == nil {
		items = []T{}
	}
	page := Page[T]{Count: total, Results: items}
	if int64(req.Offset()+len(items)) < total {
		next := pageURL(c, req.Number+1)
		page.Next = &next
	}
	if req.Number > 1 {
		prev := pageURL(c, req.Number-1)
		page.Previous = &prev
	}
	return c.JSON(page)
}

// pageURL rebuilds the absolute request URL pointing at page n. Page 1 drops
// the parameter entirely.
func pageURL(c *fiber.Ctx, n int) string {
	u, err := url.Parse(c.BaseURL() + c.OriginalURL())
	if err != nil {
		return ""
	}
	q := u.Query()
	if n <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(n))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// listQuery collects the search, ordering and paging parameters of a list request.
func listQuery(c *fiber.Ctx, page pageRequest, viewerID uint) repository.ListQuery {
	return repository.ListQuery{
		Search:   strings.TrimSpace(c.Query("search")),
		Ordering: c.Query("ordering"),
		Limit:    page.Limit(),
		Offset:   page.Offset(),
		ViewerID: viewerID,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "boardId" -> "board ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

// queryID reads an optional positive integer query parameter. ok is false when
// the parameter is absent; a malformed value writes a 400.
func queryID(c *fiber.Ctx, name string) (id uint, ok bool, err error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false, nil
	}
	n, convErr := strconv.ParseUint(raw, 10, 32)
	if convErr != nil || n == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+name))
		return 0, false, errResponseWritten
	}
	return uint(n), true, nil
}

// parseBody decodes the request body, writing 400 on malformed input.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// mapServiceError translates an AppError code into the HTTP status to send.
func mapServiceError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return fiber.StatusGatewayTimeout
	}
	return models.HTTPStatus(err)
}

// fail writes err with its mapped status. Server-side failures are also
// recorded in error_logs.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := mapServiceError(err)
	if status >= fiber.StatusInternalServerError {
		s.recordError(c, status, err)
	}
	return models.RespondWithError(c, status, err)
}

// actor returns the caller as seen by the service layer. Anonymous callers
// get the zero Actor.
func actor(c *fiber.Ctx) service.Actor {
	id, _ := c.Locals("userID").(uint)
	staff, _ := c.Locals("isStaff").(bool)
	return service.Actor{ID: id, IsStaff: staff}
}
