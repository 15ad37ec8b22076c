package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"moments/models"
	"moments/services"
)

// PostHandler serves posts, likes and comments.
type PostHandler struct {
	posts *services.PostService
	rec   Recorder
}

func NewPostHandler(posts *services.PostService, rec Recorder) *PostHandler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &PostHandler{posts: posts, rec: rec}
}

type PostRequest struct {
	Title    string     `json:"title" binding:"required,notblank,max=300"`
	Excerpt  string     `json:"excerpt" binding:"max=1000"`
	Content  string     `json:"content" binding:"required,notblank"`
	Author   string     `json:"author" binding:"max=100"`
	Category string     `json:"category" binding:"max=100"`
	Tags     []string   `json:"tags" binding:"max=20,dive,max=50"`
	Image    string     `json:"image" binding:"omitempty,url"`
	Date     *time.Time `json:"date"`
}

func (r PostRequest) input(defaultAuthor string) models.PostInput {
	author := strings.TrimSpace(r.Author)
	if author == "" {
		author = defaultAuthor
	}
	return models.PostInput{
		Title:    r.Title,
		Excerpt:  r.Excerpt,
		Content:  r.Content,
		Author:   author,
		Category: r.Category,
		Tags:     r.Tags,
		Image:    r.Image,
		Date:     r.Date,
	}
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

// ListPosts handles GET /posts?category&tag&page&limit.
func (h *PostHandler) ListPosts(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := h.posts.ListPosts(ctx, models.PostFilter{
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	posts := page.Posts
	if posts == nil {
		posts = []models.Post{}
	}
	respond(c, http.StatusOK, gin.H{
		"posts": posts,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

func (h *PostHandler) GetPost(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.posts.GetPost(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"post": post})
}

// Suggestions handles GET /posts/suggestions?limit.
func (h *PostHandler) Suggestions(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	posts, err := h.posts.Suggest(ctx, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	if posts == nil {
		posts = []models.Suggestion{}
	}
	respond(c, http.StatusOK, gin.H{"posts": posts})
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	id, err := caller(c, "")
	if err != nil {
		respondError(c, err)
		return
	}
	var req PostRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.posts.CreatePost(ctx, req.input(id.Name), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"post": post})
}

func (h *PostHandler) UpdatePost(c *gin.Context) {
	id, err := caller(c, "")
	if err != nil {
		respondError(c, err)
		return
	}
	var req PostRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.posts.UpdatePost(ctx, c.Param("id"), req.input(id.Name))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"post": post})
}

func (h *PostHandler) DeletePost(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	postID := c.Param("id")
	if err := h.posts.DeletePost(ctx, postID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deletedPostId": postID})
}
