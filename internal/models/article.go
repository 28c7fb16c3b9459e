package models

import "time"

// Article is the shared shape of feedback entries and notices. The two live in
// separate tables; Kind records which one a loaded row came from.
type Article struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null" json:"user"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`

	UserUsername string `gorm:"->;-:migration" json:"user_username"`

	Kind    ContentKind `gorm:"-" json:"-"`
	Images  []Image     `gorm:"-" json:"images"`
	Replies []*Reply    `gorm:"-" json:"replies"`
}
