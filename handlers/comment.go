package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"moments/models"
	"moments/services"
)

type CommentRequest struct {
	Name    string `json:"name" binding:"max=100"`
	Comment string `json:"comment" binding:"required,notblank,max=2000"`
	UserID  string `json:"userId"`
}

type EditCommentRequest struct {
	Comment string `json:"comment" binding:"required,notblank,max=2000"`
	UserID  string `json:"userId"`
}

// DeleteCommentRequest.IsAdmin is accepted for compatibility and ignored.
type DeleteCommentRequest struct {
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
}

// AddComment handles POST /posts/:id/comments.
func (h *PostHandler) AddComment(c *gin.Context) {
	var req CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := caller(c, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = id.Name
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	userID := id.UserID
	comment, err := h.posts.AddComment(ctx, c.Param("id"), services.NewCommentInput{
		Name:    name,
		Comment: req.Comment,
		UserID:  &userID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.rec.CommentMutated("add")
	respond(c, http.StatusCreated, gin.H{"comment": comment})
}

// ListComments handles GET /posts/:id/comments.
func (h *PostHandler) ListComments(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	comments, err := h.posts.ListComments(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	respond(c, http.StatusOK, gin.H{"comments": comments})
}

// EditComment handles PUT /posts/:id/comments/:commentId.
func (h *PostHandler) EditComment(c *gin.Context) {
	var req EditCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := caller(c, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	comment, err := h.posts.EditComment(ctx, c.Param("id"), c.Param("commentId"), services.EditCommentInput{
		UserID:  id.UserID,
		Comment: req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.rec.CommentMutated("edit")
	respond(c, http.StatusOK, gin.H{"comment": comment})
}

// DeleteComment handles DELETE /posts/:id/comments/:commentId.
func (h *PostHandler) DeleteComment(c *gin.Context) {
	var req DeleteCommentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	id, err := caller(c, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.posts.DeleteComment(ctx, c.Param("id"), c.Param("commentId"), services.Actor{
		UserID:  id.UserID,
		IsAdmin: id.IsAdmin,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.rec.CommentMutated("delete")
	respond(c, http.StatusOK, gin.H{
		"deletedCommentId":  res.DeletedCommentID,
		"remainingComments": res.RemainingComments,
	})
}
