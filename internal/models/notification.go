package models

import "time"

// Notification types.
const (
	NotifComment       = "comment"
	NotifFeedbackReply = "feedback_reply"
	NotifNoticeReply   = "notice_reply"
)

// Notification is an inbox entry created when someone replies to a user's content.
type Notification struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ToUserID        uint      `gorm:"not null;index" json:"-"`
	BoardID         *uint     `gorm:"index" json:"board"`
	ReplyID         *uint     `gorm:"index" json:"reply"`
	FeedbackID      *uint     `gorm:"index" json:"feedback"`
	FeedbackReplyID *uint     `gorm:"index" json:"feedback_reply"`
	NoticeID        *uint     `gorm:"index" json:"notice"`
	NoticeReplyID   *uint     `gorm:"index" json:"notice_reply"`
	NotifType       string    `gorm:"size:20;not null" json:"notif_type"`
	Message         string    `gorm:"size:255;not null" json:"message"`
	IsRead          bool      `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`

	BoardTitle   *string `gorm:"->;-:migration" json:"board_title"`
	ReplyComment *string `gorm:"->;-:migration" json:"reply_comment"`
}

// Link sets the target and reply references matching kind.
func (n *Notification) Link(kind ContentKind, targetID, replyID uint) {
	t, r := targetID, replyID
	switch kind {
	case KindFeedback:
		n.FeedbackID, n.FeedbackReplyID = &t, &r
	case KindNotice:
		n.NoticeID, n.NoticeReplyID = &t, &r
	default:
		n.BoardID, n.ReplyID = &t, &r
	}
}
