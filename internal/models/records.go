package models

import "time"

// Score is an admin-managed numeric score for a user.
type Score struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user"`
	Value     int       `gorm:"not null" json:"value"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// ErrorLog captures server errors for later inspection.
type ErrorLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:50;not null" json:"code"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

// Analysis is a vehicle damage analysis result with its rendered images.
type Analysis struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user"`
	TotalPrice      int64     `gorm:"not null;default:0" json:"total_price"`
	OriginalImg     string    `gorm:"size:500" json:"original_img"`
	ScratchImg      string    `gorm:"size:500" json:"scratch_img"`
	CrushedImg      string    `gorm:"size:500" json:"crushed_img"`
	NaturalImg      string    `gorm:"size:500" json:"natural_img"`
	AnalyzeDate     time.Time `gorm:"type:date" json:"analyze_date"`
	AnalyzeDatetime time.Time `gorm:"autoCreateTime" json:"analyze_datetime"`
}

// TableName keeps the plural form used by the SQL migrations.
func (Analysis) TableName() string { return "analyses" }
