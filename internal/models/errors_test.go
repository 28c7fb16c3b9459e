package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewInternalError(cause)
	assert.Equal(t, "Internal server error: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Board with ID 5 not found", NewNotFoundError("Board", 5).Error())
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("ctx: %w", NewForbiddenError("nope"))
	assert.Equal(t, CodeForbidden, ErrorCode(wrapped))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, "", ErrorCode(nil))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, HTTPStatus(NewNotFoundError("Board", 1)))
	assert.Equal(t, fiber.StatusConflict, HTTPStatus(fmt.Errorf("wrapped: %w", NewConflictError("taken"))))
	assert.Equal(t, fiber.StatusUnauthorized, HTTPStatus(NewUnauthorizedError("login")))
	assert.Equal(t, fiber.StatusInternalServerError, HTTPStatus(errors.New("plain")))
	assert.Equal(t, fiber.StatusInternalServerError, HTTPStatus(&AppError{Code: "TEAPOT"}))
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantBody ErrorResponse
	}{
		{"app error", NewValidationError("title is required"), ErrorResponse{Error: "title is required", Code: CodeValidation}},
		{"internal hides cause", NewInternalError(errors.New("db down")), ErrorResponse{Error: "Internal server error", Code: CodeInternal}},
		{"plain error", errors.New("raw"), ErrorResponse{Error: "raw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return RespondWithError(c, fiber.StatusBadRequest, tt.err)
			})
			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			raw, _ := io.ReadAll(resp.Body)
			var got ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestContentKindTables(t *testing.T) {
	assert.Equal(t, "replies", KindBoard.ReplyTable())
	assert.Equal(t, "feedback_replies", KindFeedback.ReplyTable())
	assert.Equal(t, "notice_images", KindNotice.ImageTable())
	assert.Equal(t, "author_id", KindBoard.OwnerColumn())
	assert.Equal(t, "user_id", KindNotice.OwnerColumn())
	assert.Equal(t, NotifFeedbackReply, KindFeedback.NotificationType())

	_, err := ParseContentKind("video")
	assert.Error(t, err)
	k, err := ParseContentKind("notice")
	require.NoError(t, err)
	assert.Equal(t, KindNotice, k)
}

func TestNotificationLink(t *testing.T) {
	var n Notification
	n.Link(KindNotice, 3, 9)
	require.NotNil(t, n.NoticeID)
	assert.Equal(t, uint(3), *n.NoticeID)
	assert.Equal(t, uint(9), *n.NoticeReplyID)
	assert.Nil(t, n.BoardID)
}
