package models

import "time"

// Image is an attachment on a board, feedback entry or notice.
type Image struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TargetID   uint      `gorm:"not null" json:"-"`
	URL        string    `gorm:"column:image;size:500;not null" json:"image"`
	ObjectKey  string    `gorm:"size:500" json:"-"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	Kind ContentKind `gorm:"-" json:"-"`
}
