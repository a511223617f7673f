package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"blogapi/internal/models"
	"blogapi/internal/services"
)

type PostHandler struct {
	posts  services.PostService
	logger *slog.Logger
}

func NewPostHandler(posts services.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

func postMessages(internal string) messages {
	return messages{
		services.ErrNotFound: "Post not found",
		errInternal:          internal,
	}
}

func (h *PostHandler) List(c *gin.Context) {
	posts, err := h.posts.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, messages{errInternal: "An error occurred while fetching posts"})
		return
	}
	if len(posts) == 0 {
		failure(c, http.StatusNotFound, "No posts found", nil)
		return
	}
	success(c, http.StatusOK, "Posts retrieved successfully", posts)
}

func (h *PostHandler) Create(c *gin.Context) {
	var req models.CreatePostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.posts.Create(c.Request.Context(), getCaller(c), req.Title, req.Content)
	if err != nil {
		respondError(c, h.logger, err, messages{errInternal: "An error occurred while creating the post"})
		return
	}
	success(c, http.StatusCreated, "Post created successfully", post)
}

func (h *PostHandler) Get(c *gin.Context) {
	id, ok := getIDParam(c, "id")
	if !ok {
		failure(c, http.StatusNotFound, "Post not found", nil)
		return
	}

	post, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, postMessages("An error occurred while retrieving the post"))
		return
	}
	success(c, http.StatusOK, "Post retrieved successfully", post)
}

func (h *PostHandler) Update(c *gin.Context) {
	id, ok := getIDParam(c, "id")
	if !ok {
		failure(c, http.StatusNotFound, "Post not found", nil)
		return
	}
	var req models.UpdatePostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.posts.Update(c.Request.Context(), getCaller(c), id, req.Title, req.Content)
	if err != nil {
		respondError(c, h.logger, err, postMessages("An error occurred while updating the post"))
		return
	}
	success(c, http.StatusOK, "Post updated successfully", post)
}

func (h *PostHandler) Delete(c *gin.Context) {
	id, ok := getIDParam(c, "id")
	if !ok {
		failure(c, http.StatusNotFound, "Post not found", nil)
		return
	}

	if err := h.posts.Delete(c.Request.Context(), getCaller(c), id); err != nil {
		respondError(c, h.logger, err, postMessages("An error occurred while deleting the post"))
		return
	}
	c.Status(http.StatusNoContent)
}
