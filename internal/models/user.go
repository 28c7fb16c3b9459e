// Package models contains the persistent domain structs and the shared error types.
package models

import "time"

// User is an account on the board. Staff users moderate content and manage notices.
type User struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Username   string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email      string     `gorm:"size:254;index" json:"email"`
	Password   string     `gorm:"not null" json:"-"`
	IsStaff    bool       `gorm:"not null;default:false" json:"is_staff"`
	DateJoined time.Time  `gorm:"autoCreateTime" json:"date_joined"`
	LastLogin  *time.Time `json:"last_login"`
}

// UserSimple is the compact representation used in lists.
type UserSimple struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
}

// Simple returns the list representation of u.
func (u *User) Simple() UserSimple {
	return UserSimple{ID: u.ID, Username: u.Username, IsStaff: u.IsStaff}
}
