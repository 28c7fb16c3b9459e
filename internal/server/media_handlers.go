package server

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"carkey/internal/models"
	"carkey/internal/service"

	"github.com/gofiber/fiber/v2"
)

// PresignUpload handles POST /api/s3-presigned-upload
// @Summary Presign a direct upload
// @Description Returns a PUT URL for the object store and the public URL the object will have.
// @Tags media
// @Accept json
// @Produce json
// @Param request body object{file_name=string,file_type=string} true "Upload target"
// @Success 200 {object} service.PresignResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /s3-presigned-upload [post]
func (s *Server) PresignUpload(c *fiber.Ctx) error {
	var req struct {
		FileName string `json:"file_name"`
		FileType string `json:"file_type"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	res, err := s.mediaService.Presign(c.UserContext(), actor(c), req.FileName, req.FileType)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

type attachRequest struct {
	BoardID    *uint    `json:"board_id"`
	FeedbackID *uint    `json:"feedback_id"`
	NoticeID   *uint    `json:"notice_id"`
	S3URLs     []string `json:"s3_urls"`
}

func (r attachRequest) target(kind models.ContentKind) uint {
	var id *uint
	switch kind {
	case models.KindBoard:
		id = r.BoardID
	case models.KindFeedback:
		id = r.FeedbackID
	case models.KindNotice:
		id = r.NoticeID
	}
	if id == nil {
		return 0
	}
	return *id
}

// UploadImages handles POST /api/{boards|feedbacks|notices}/upload. JSON
// bodies attach already-uploaded s3_urls; multipart bodies carry the files
// themselves under "images".
func (s *Server) UploadImages(kind models.ContentKind) fiber.Handler {
	idField := string(kind) + "_id"
	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			var req attachRequest
			if err := parseBody(c, &req); err != nil {
				return nil
			}
			if len(req.S3URLs) == 0 {
				return models.RespondWithError(c, fiber.StatusBadRequest,
					models.NewValidationError("No images provided"))
			}
			images, err := s.mediaService.AttachURLs(c.UserContext(), actor(c), kind, req.target(kind), req.S3URLs)
			if err != nil {
				return s.fail(c, err)
			}
			return c.JSON(images)
		}

		form, err := c.MultipartForm()
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid multipart form"))
		}
		var targetID uint
		if raw := firstValue(form, idField); raw != "" {
			n, convErr := strconv.ParseUint(raw, 10, 32)
			if convErr != nil {
				return models.RespondWithError(c, fiber.StatusBadRequest,
					models.NewValidationError("Invalid "+idField))
			}
			targetID = uint(n)
		}

		urls := formValues(form, "s3_urls")
		files, err := s.readUploads(append(form.File["images"], form.File["images[]"]...))
		if err != nil {
			return s.fail(c, err)
		}
		if len(urls) == 0 && len(files) == 0 {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("No images provided"))
		}
		images, err := s.mediaService.Attach(c.UserContext(), actor(c), kind, targetID, urls, files)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(images)
	}
}

// readUploads loads multipart files, refusing any over the per-file limit
// before reading it.
func (s *Server) readUploads(headers []*multipart.FileHeader) ([]service.UploadFile, error) {
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > s.mediaService.MaxUploadBytes() {
			return nil, models.NewValidationError("Image exceeds the maximum upload size")
		}
		src, err := fh.Open()
		if err != nil {
			return nil, models.NewValidationError("Unable to read uploaded file")
		}
		content, err := io.ReadAll(src)
		_ = src.Close()
		if err != nil {
			return nil, models.NewValidationError("Unable to read uploaded file")
		}
		files = append(files, service.UploadFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Content:     content,
		})
	}
	return files, nil
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func formValues(form *multipart.Form, key string) []string {
	var out []string
	for _, k := range []string{key, key + "[]"} {
		for _, v := range form.Value[k] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// ListImages handles GET /api/{kind}-images
func (s *Server) ListImages(kind models.ContentKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := s.parsePage(c)
		if err != nil {
			return nil
		}
		images, total, err := s.mediaService.ListImages(c.UserContext(), kind, page.Limit(), page.Offset())
		if err != nil {
			return s.fail(c, err)
		}
		return respondPage(c, page, images, total)
	}
}

// DeleteImage handles DELETE /api/{kind}-images/:id. The stored object goes
// with the row.
func (s *Server) DeleteImage(kind models.ContentKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		if err := s.mediaService.DeleteImage(c.UserContext(), actor(c), kind, id); err != nil {
			return s.fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
