package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLen   = 200
	MaxCommentLen = 5000
	MaxCostLen    = 100
)

var ErrEmptyComment = errors.New("Comment cannot be empty")

// NormalizeComment trims comment and rejects blank or oversized input.
func NormalizeComment(comment string) (string, error) {
	trimmed := strings.TrimSpace(comment)
	if trimmed == "" {
		return "", ErrEmptyComment
	}
	if utf8.RuneCountInString(trimmed) > MaxCommentLen {
		return "", fmt.Errorf("comment must not exceed %d characters", MaxCommentLen)
	}
	return trimmed, nil
}

// ValidateTitle requires a non-blank title of at most MaxTitleLen characters.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return fmt.Errorf("title must not exceed %d characters", MaxTitleLen)
	}
	return nil
}

// ValidateContent requires a non-blank body.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content is required")
	}
	return nil
}

// ValidateCost accepts an absent cost or one of at most MaxCostLen characters.
func ValidateCost(cost *string) error {
	if cost != nil && utf8.RuneCountInString(*cost) > MaxCostLen {
		return fmt.Errorf("cost must not exceed %d characters", MaxCostLen)
	}
	return nil
}
