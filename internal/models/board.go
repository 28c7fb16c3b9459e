package models

import "time"

// Board is a user-authored post.
type Board struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AuthorID       uint      `gorm:"not null;index" json:"author"`
	Title          string    `gorm:"size:200;not null" json:"title"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Cost           *string   `gorm:"size:100" json:"cost"`
	RecommendCount int       `gorm:"not null;default:0" json:"recommend_count"`
	PostDate       time.Time `gorm:"autoCreateTime;index" json:"post_date"`

	// AuthorUsername is joined in from users at query time.
	AuthorUsername string `gorm:"->;-:migration" json:"author_username"`
	// RecommendedByMe is computed per viewer.
	RecommendedByMe bool `gorm:"->;-:migration" json:"recommended_by_me"`

	Images  []Image  `gorm:"-" json:"images"`
	Replies []*Reply `gorm:"-" json:"replies"`
}

// Recommend is a like. At most one row exists per (board, user).
type Recommend struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BoardID   uint      `gorm:"not null;uniqueIndex:idx_recommends_board_user" json:"board"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_recommends_board_user;index" json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// BestBoard records a board that crossed the recommendation threshold.
type BestBoard struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BoardID    uint      `gorm:"not null;uniqueIndex" json:"board"`
	UpdateDate time.Time `gorm:"autoUpdateTime" json:"update_date"`
}
