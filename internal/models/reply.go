package models

import (
	"encoding/json"
	"time"
)

// Reply is a comment on a board, feedback entry or notice. Replies nest through
// ParentID, and a parent always belongs to the same target.
type Reply struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TargetID  uint      `gorm:"not null" json:"-"`
	AuthorID  uint      `gorm:"not null" json:"author"`
	ParentID  *uint     `json:"parent"`
	Comment   string    `gorm:"type:text;not null" json:"comment"`
	CreatedAt time.Time `json:"created_at"`

	AuthorUsername string `gorm:"->;-:migration" json:"author_username"`

	Kind     ContentKind `gorm:"-" json:"-"`
	Children []*Reply    `gorm:"-" json:"children"`
}

// MarshalJSON exposes TargetID under the kind's own key ("board", "feedback" or "notice").
func (r Reply) MarshalJSON() ([]byte, error) {
	children := r.Children
	if children == nil {
		children = []*Reply{}
	}
	out := map[string]interface{}{
		"id":              r.ID,
		"author":          r.AuthorID,
		"author_username": r.AuthorUsername,
		"comment":         r.Comment,
		"parent":          r.ParentID,
		"created_at":      r.CreatedAt,
		"children":        children,
	}
	kind := r.Kind
	if kind == "" {
		kind = KindBoard
	}
	out[string(kind)] = r.TargetID
	return json.Marshal(out)
}

// BuildReplyTree links a flat, created_at ordered slice into root replies with
// nested children. Replies whose parent is missing from the slice are treated as roots.
func BuildReplyTree(flat []*Reply) []*Reply {
	byID := make(map[uint]*Reply, len(flat))
	for _, r := range flat {
		r.Children = []*Reply{}
		byID[r.ID] = r
	}
	roots := make([]*Reply, 0)
	for _, r := range flat {
		if r.ParentID != nil {
			if parent, ok := byID[*r.ParentID]; ok && parent != r {
				parent.Children = append(parent.Children, r)
				continue
			}
		}
		roots = append(roots, r)
	}
	return roots
}
