package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"moments/models"
	"moments/services"
)

type AdminHandler struct {
	admin *services.AdminService
}

func NewAdminHandler(admin *services.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) Stats(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := h.admin.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"stats": stats})
}

func (h *AdminHandler) Users(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := h.admin.Users(ctx, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respond(c, http.StatusOK, gin.H{"users": users})
}

// RecentComments handles GET /admin/comments?limit.
func (h *AdminHandler) RecentComments(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	comments, err := h.admin.RecentComments(ctx, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	if comments == nil {
		comments = []models.CommentActivity{}
	}
	respond(c, http.StatusOK, gin.H{"comments": comments})
}
