package models

import "fmt"

// ContentKind names one of the three content families that own replies and images.
type ContentKind string

const (
	KindBoard    ContentKind = "board"
	KindFeedback ContentKind = "feedback"
	KindNotice   ContentKind = "notice"
)

// ContentKinds lists every kind in a stable order.
var ContentKinds = []ContentKind{KindBoard, KindFeedback, KindNotice}

// ParseContentKind validates a raw kind string.
func ParseContentKind(raw string) (ContentKind, error) {
	switch ContentKind(raw) {
	case KindBoard, KindFeedback, KindNotice:
		return ContentKind(raw), nil
	}
	return "", fmt.Errorf("unknown content kind %q", raw)
}

// TargetTable is the table holding the content itself.
func (k ContentKind) TargetTable() string {
	switch k {
	case KindFeedback:
		return "feedbacks"
	case KindNotice:
		return "notices"
	default:
		return "boards"
	}
}

// OwnerColumn is the column on TargetTable that references the author.
func (k ContentKind) OwnerColumn() string {
	if k == KindBoard {
		return "author_id"
	}
	return "user_id"
}

// ReplyTable is the table holding replies for this kind.
func (k ContentKind) ReplyTable() string {
	switch k {
	case KindFeedback:
		return "feedback_replies"
	case KindNotice:
		return "notice_replies"
	default:
		return "replies"
	}
}

// ImageTable is the table holding image attachments for this kind.
func (k ContentKind) ImageTable() string {
	return string(k) + "_images"
}

// NotificationType is the notif_type recorded when someone replies to this kind.
func (k ContentKind) NotificationType() string {
	switch k {
	case KindFeedback:
		return NotifFeedbackReply
	case KindNotice:
		return NotifNoticeReply
	default:
		return NotifComment
	}
}

// Label is the Korean noun used in notification messages.
func (k ContentKind) Label() string {
	switch k {
	case KindFeedback:
		return "피드백"
	case KindNotice:
		return "공지"
	default:
		return "게시글"
	}
}

// Resource is the human name used in error messages.
func (k ContentKind) Resource() string {
	switch k {
	case KindFeedback:
		return "Feedback"
	case KindNotice:
		return "Notice"
	default:
		return "Board"
	}
}
