package models

import "time"

type Post struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Comments  []*Comment `json:"comments,omitempty"`
}

type CreatePostRequest struct {
	Title   string `json:"title" binding:"required,max=255"`
	Content string `json:"content" binding:"required"`
}

// UpdatePostRequest carries optional fields; nil means unchanged.
type UpdatePostRequest struct {
	Title   *string `json:"title" binding:"omitempty,min=1,max=255"`
	Content *string `json:"content" binding:"omitempty,min=1"`
}
