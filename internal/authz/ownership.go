// Package authz holds the ownership rules for posts and comments.
package authz

import "blogapi/internal/models"

// CanModifyPost reports whether userID may update or delete the post.
func CanModifyPost(userID int64, post *models.Post) bool {
	return post != nil && userID != 0 && post.UserID == userID
}

// CanDeleteComment allows the comment author and the owner of the parent post.
func CanDeleteComment(userID int64, comment *models.Comment, post *models.Post) bool {
	if comment == nil || userID == 0 {
		return false
	}
	if comment.UserID == userID {
		return true
	}
	return post != nil && post.ID == comment.PostID && post.UserID == userID
}
