package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"moments/auth"
	"moments/database"
	"moments/media"
	"moments/middleware"
	"moments/models"
	"moments/services"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

type counter struct {
	likes    int
	comments map[string]int
}

func (c *counter) LikeToggled() { c.likes++ }
func (c *counter) CommentMutated(op string) {
	if c.comments == nil {
		c.comments = map[string]int{}
	}
	c.comments[op]++
}

type fixture struct {
	router *gin.Engine
	store  *database.MemoryPostStore
	tokens *auth.TokenService
	rec    *counter
}

func newFixture(t *testing.T, uploader media.Uploader) *fixture {
	t.Helper()
	store := database.NewMemoryPostStore()
	tokens := auth.NewTokenService("handler-secret", time.Hour)
	rec := &counter{}
	posts := NewPostHandler(services.NewPostService(store, nil, zap.NewNop()), rec)
	upload := NewUploadHandler(uploader)

	r := gin.New()
	r.GET("/posts", posts.ListPosts)
	r.GET("/posts/:id", posts.GetPost)
	r.GET("/posts/:id/comments", posts.ListComments)

	user := r.Group("", middleware.JWTAuthMiddleware(tokens))
	user.POST("/posts/:id/like", posts.ToggleLike)
	user.GET("/posts/:id/like", posts.LikeStatus)
	user.POST("/posts/:id/comments", posts.AddComment)
	user.PUT("/posts/:id/comments/:commentId", posts.EditComment)
	user.DELETE("/posts/:id/comments/:commentId", posts.DeleteComment)

	admin := r.Group("", middleware.JWTAuthMiddleware(tokens), middleware.RequireAdmin())
	admin.POST("/posts", posts.CreatePost)
	admin.POST("/upload", upload.Upload)

	return &fixture{router: r, store: store, tokens: tokens, rec: rec}
}

func (f *fixture) token(t *testing.T, role string) (string, string) {
	t.Helper()
	u := models.User{ID: primitive.NewObjectID(), Name: "Ana", Role: role}
	tok, err := f.tokens.Issue(u)
	require.NoError(t, err)
	return tok, u.ID.Hex()
}

func (f *fixture) seed(t *testing.T, comments ...models.Comment) models.Post {
	t.Helper()
	p := models.NewPost(models.PostInput{Title: "Lagos at dusk", Content: "body", Author: "Ana"}, "", time.Now())
	if comments != nil {
		p.Comments = comments
	}
	require.NoError(t, f.store.Insert(context.Background(), p))
	return p
}

func (f *fixture) do(t *testing.T, method, target, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestStatusFor(t *testing.T) {
	tests := map[models.ErrorKind]int{
		models.KindInvalidArgument:   http.StatusBadRequest,
		models.KindUnauthorized:      http.StatusUnauthorized,
		models.KindForbidden:         http.StatusForbidden,
		models.KindEditWindowExpired: http.StatusForbidden,
		models.KindNotFound:          http.StatusNotFound,
		models.KindConflict:          http.StatusConflict,
		models.KindTooManyRequests:   http.StatusTooManyRequests,
		models.KindUnavailable:       http.StatusServiceUnavailable,
		models.KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}

func TestRespondErrorHidesUnknownErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		contains string
	}{
		{"app error", models.ErrPostNotFound, http.StatusNotFound, "POST_NOT_FOUND", "Post not found"},
		{"plain error", errors.New("mongo: connection refused at 10.0.0.3"), http.StatusInternalServerError, "INTERNAL", "Internal server error"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "TIMEOUT", "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.Contains(t, body["message"], tt.contains)
			assert.NotContains(t, w.Body.String(), "10.0.0.3")
		})
	}
}

func TestToggleLikeEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	post := f.seed(t)
	tok, _ := f.token(t, models.RoleUser)
	target := "/posts/" + post.ID.Hex() + "/like"

	status, body := f.do(t, http.MethodPost, target, tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["likes"])
	assert.Equal(t, true, body["liked"])

	status, body = f.do(t, http.MethodPost, target, tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["likes"])
	assert.Equal(t, false, body["liked"])

	status, body = f.do(t, http.MethodGet, target, tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["totalLikers"])
	assert.Equal(t, 2, f.rec.likes)
}

func TestToggleLikeRejects(t *testing.T) {
	f := newFixture(t, nil)
	post := f.seed(t)
	tok, _ := f.token(t, models.RoleUser)

	status, body := f.do(t, http.MethodPost, "/posts/"+post.ID.Hex()+"/like", tok, gin.H{"userId": "someone-else"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	status, body = f.do(t, http.MethodPost, "/posts/not-an-id/like", tok, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])

	status, body = f.do(t, http.MethodPost, "/posts/"+primitive.NewObjectID().Hex()+"/like", tok, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "POST_NOT_FOUND", body["code"])

	status, _ = f.do(t, http.MethodPost, "/posts/"+post.ID.Hex()+"/like", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Zero(t, f.rec.likes)
}

func TestCommentLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	post := f.seed(t)
	tok, uid := f.token(t, models.RoleUser)
	base := "/posts/" + post.ID.Hex() + "/comments"

	status, body := f.do(t, http.MethodPost, base, tok, gin.H{"comment": "  lovely light  ", "userId": uid})
	require.Equal(t, http.StatusCreated, status)
	created := body["comment"].(map[string]any)
	assert.Equal(t, "lovely light", created["comment"])
	assert.Equal(t, "Ana", created["name"])
	assert.Equal(t, uid, created["userId"])
	commentID := created["id"].(string)

	status, body = f.do(t, http.MethodPut, base+"/"+commentID, tok, gin.H{"comment": "lovelier light"})
	require.Equal(t, http.StatusOK, status)
	edited := body["comment"].(map[string]any)
	assert.Equal(t, "lovelier light", edited["comment"])
	assert.Equal(t, true, edited["edited"])
	assert.NotNil(t, edited["editedAt"])

	status, body = f.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["comments"], 1)

	status, body = f.do(t, http.MethodDelete, base+"/"+commentID, tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, commentID, body["deletedCommentId"])
	assert.Equal(t, float64(0), body["remainingComments"])

	assert.Equal(t, map[string]int{"add": 1, "edit": 1, "delete": 1}, f.rec.comments)
}

func TestAddCommentValidation(t *testing.T) {
	f := newFixture(t, nil)
	post := f.seed(t)
	tok, _ := f.token(t, models.RoleUser)

	status, body := f.do(t, http.MethodPost, "/posts/"+post.ID.Hex()+"/comments", tok, gin.H{"comment": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])
	assert.Equal(t, "Comment is required", body["message"])
}

func TestEditCommentPolicy(t *testing.T) {
	f := newFixture(t, nil)
	tok, uid := f.token(t, models.RoleUser)
	otherTok, _ := f.token(t, models.RoleUser)
	adminTok, _ := f.token(t, models.RoleAdmin)

	fresh, err := models.NewComment("Ana", "fresh", &uid, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	stale, err := models.NewComment("Ana", "stale", &uid, time.Now().Add(-20*time.Minute))
	require.NoError(t, err)
	post := f.seed(t, fresh, stale)
	base := "/posts/" + post.ID.Hex() + "/comments/"

	tests := []struct {
		name    string
		comment models.Comment
		token   string
		status  int
		code    string
	}{
		{"window expired", stale, tok, http.StatusForbidden, "EDIT_WINDOW_EXPIRED"},
		{"not the author", fresh, otherTok, http.StatusForbidden, "FORBIDDEN"},
		{"admin gets no override", fresh, adminTok, http.StatusForbidden, "FORBIDDEN"},
		{"unknown comment", models.Comment{ID: primitive.NewObjectID()}, tok, http.StatusNotFound, "COMMENT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPut, base+tt.comment.ID.Hex(), tt.token, gin.H{"comment": "changed"})
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestDeleteCommentAdminOverride(t *testing.T) {
	f := newFixture(t, nil)
	uid := primitive.NewObjectID().Hex()
	c, err := models.NewComment("Bo", "hi", &uid, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	post := f.seed(t, c)
	target := "/posts/" + post.ID.Hex() + "/comments/" + c.ID.Hex()

	userTok, _ := f.token(t, models.RoleUser)
	// a body flag cannot grant admin rights
	status, body := f.do(t, http.MethodDelete, target, userTok, gin.H{"isAdmin": true})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	adminTok, _ := f.token(t, models.RoleAdmin)
	status, body = f.do(t, http.MethodDelete, target, adminTok, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, c.ID.Hex(), body["deletedCommentId"])
}

func TestCreatePostDefaultsAuthor(t *testing.T) {
	f := newFixture(t, nil)
	adminTok, _ := f.token(t, models.RoleAdmin)

	status, body := f.do(t, http.MethodPost, "/posts", adminTok, gin.H{"title": "New", "content": "words", "tags": []string{"travel"}})
	require.Equal(t, http.StatusCreated, status)
	post := body["post"].(map[string]any)
	assert.Equal(t, "Ana", post["author"])
	assert.Equal(t, []any{}, post["comments"])

	status, body = f.do(t, http.MethodPost, "/posts", adminTok, gin.H{"content": "words"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Title is required", body["message"])

	userTok, _ := f.token(t, models.RoleUser)
	status, _ = f.do(t, http.MethodPost, "/posts", userTok, gin.H{"title": "New", "content": "words"})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestListPostsEnvelope(t *testing.T) {
	f := newFixture(t, nil)
	status, body := f.do(t, http.MethodGet, "/posts", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{}, body["posts"])
	assert.Equal(t, float64(services.DefaultPageSize), body["limit"])
}

type stubUploader struct {
	url    string
	err    error
	source any
}

func (s *stubUploader) Upload(_ context.Context, source interface{}, _ string) (string, error) {
	s.source = source
	return s.url, s.err
}

func TestUpload(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, nil)
		adminTok, _ := f.token(t, models.RoleAdmin)
		status, body := f.do(t, http.MethodPost, "/upload", adminTok, gin.H{"url": "https://example.com/a.jpg"})
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "UPLOAD_DISABLED", body["code"])
	})

	t.Run("remote url", func(t *testing.T) {
		up := &stubUploader{url: "https://res.cloudinary.com/demo/a.jpg"}
		f := newFixture(t, up)
		adminTok, _ := f.token(t, models.RoleAdmin)
		status, body := f.do(t, http.MethodPost, "/upload", adminTok, gin.H{"url": "https://example.com/a.jpg"})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, up.url, body["url"])
		assert.Equal(t, "https://example.com/a.jpg", up.source)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t, &stubUploader{err: errors.New("boom")})
		adminTok, _ := f.token(t, models.RoleAdmin)
		status, body := f.do(t, http.MethodPost, "/upload", adminTok, gin.H{"url": "https://example.com/a.jpg"})
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "UPLOAD_FAILED", body["code"])
	})

	t.Run("multipart", func(t *testing.T) {
		up := &stubUploader{url: "https://res.cloudinary.com/demo/b.png"}
		f := newFixture(t, up)
		adminTok, _ := f.token(t, models.RoleAdmin)

		for _, tc := range []struct {
			contentType string
			want        int
		}{
			{"image/png", http.StatusOK},
			{"text/plain", http.StatusBadRequest},
		} {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="image"; filename="b.png"`)
			h.Set("Content-Type", tc.contentType)
			part, err := mw.CreatePart(h)
			require.NoError(t, err)
			_, _ = part.Write([]byte("\x89PNG"))
			require.NoError(t, mw.Close())

			req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			req.Header.Set("Authorization", "Bearer "+adminTok)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, tc.contentType)
		}
	})
}
