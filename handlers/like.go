package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LikeRequest is optional; the token decides who is liking.
type LikeRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ToggleLike handles POST /posts/:id/like.
func (h *PostHandler) ToggleLike(c *gin.Context) {
	var req LikeRequest
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

	res, err := h.posts.ToggleLike(ctx, c.Param("id"), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.rec.LikeToggled()
	respond(c, http.StatusOK, gin.H{
		"likes":       res.Likes,
		"liked":       res.Liked,
		"totalLikers": res.TotalLikers,
	})
}

// LikeStatus handles GET /posts/:id/like.
func (h *PostHandler) LikeStatus(c *gin.Context) {
	id, err := caller(c, "")
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.posts.LikeStatus(ctx, c.Param("id"), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"likes":       res.Likes,
		"liked":       res.Liked,
		"totalLikers": res.TotalLikers,
	})
}
