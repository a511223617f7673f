package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"blogapi/internal/models"
	"blogapi/internal/services"
)

type CommentHandler struct {
	comments services.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments services.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

func (h *CommentHandler) Create(c *gin.Context) {
	postID, ok := getIDParam(c, "id")
	if !ok {
		failure(c, http.StatusNotFound, "Post not found", nil)
		return
	}
	var req models.CreateCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), getCaller(c), postID, req.Content)
	if err != nil {
		respondError(c, h.logger, err, messages{
			services.ErrNotFound: "Post not found",
			errInternal:          "An error occurred while adding the comment",
		})
		return
	}
	success(c, http.StatusCreated, "Comment has been added successfully", comment)
}

func (h *CommentHandler) Delete(c *gin.Context) {
	postID, okPost := getIDParam(c, "id")
	commentID, okComment := getIDParam(c, "comment")
	if !okPost || !okComment {
		failure(c, http.StatusNotFound, "Post or comment not found", nil)
		return
	}

	if err := h.comments.Delete(c.Request.Context(), getCaller(c), postID, commentID); err != nil {
		respondError(c, h.logger, err, messages{
			services.ErrNotFound:  "Post or comment not found",
			services.ErrForbidden: "You are not authorized to delete this comment",
			errInternal:           "An error occurred while deleting the comment",
		})
		return
	}
	success(c, http.StatusOK, "Comment has been deleted successfully", nil)
}
