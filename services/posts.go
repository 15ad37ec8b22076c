package services

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"moments/models"
)

const (
	DefaultSuggestions = 4
	MaxSuggestions     = 20
	DefaultPageSize    = 10
	MaxPageSize        = 50
)

// Live event types pushed to post subscribers.
const (
	EventPostLiked      = "post_liked"
	EventCommentAdded   = "comment_added"
	EventCommentEdited  = "comment_edited"
	EventCommentDeleted = "comment_deleted"
	EventPostUpdated    = "post_updated"
	EventPostDeleted    = "post_deleted"
)

// PostStore persists posts. Like and comment mutations must be atomic on
// the single post document.
type PostStore interface {
	Insert(ctx context.Context, p models.Post) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Post, error)
	List(ctx context.Context, f models.PostFilter) ([]models.Post, int64, error)
	UpdateContent(ctx context.Context, id primitive.ObjectID, in models.PostInput) (models.Post, error)
	Delete(ctx context.Context, id primitive.ObjectID) error

	ToggleLike(ctx context.Context, id primitive.ObjectID, userID string) (models.Likes, error)
	PrependComment(ctx context.Context, postID primitive.ObjectID, c models.Comment) error
	// UpdateComment re-asserts authorship and the edit window in the write
	// itself and returns a Conflict when they no longer hold.
	UpdateComment(ctx context.Context, postID, commentID primitive.ObjectID, authorID, text string, now time.Time) (models.Comment, error)
	RemoveComment(ctx context.Context, postID, commentID primitive.ObjectID) (int, error)

	Suggest(ctx context.Context, limit int) ([]models.Suggestion, error)
	Totals(ctx context.Context) (models.Stats, error)
	RecentComments(ctx context.Context, limit int) ([]models.CommentActivity, error)
}

// Publisher fans post events out to live subscribers. Publish must not block.
type Publisher interface {
	Publish(eventType, postID string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}

type LikeResult struct {
	Likes       int  `json:"likes"`
	Liked       bool `json:"liked"`
	TotalLikers int  `json:"totalLikers"`
}

type NewCommentInput struct {
	Name    string
	Comment string
	UserID  *string
}

type EditCommentInput struct {
	UserID  string
	Comment string
}

// Actor is who asks for a deletion.
type Actor struct {
	UserID  string
	IsAdmin bool
}

type DeleteResult struct {
	DeletedCommentID  string `json:"deletedCommentId"`
	RemainingComments int    `json:"remainingComments"`
}

type PostPage struct {
	Posts []models.Post `json:"posts"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// PostService owns the like and comment rules of the post aggregate.
type PostService struct {
	store  PostStore
	events Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewPostService(store PostStore, events Publisher, log *zap.Logger) *PostService {
	if events == nil {
		events = nopPublisher{}
	}
	return &PostService{store: store, events: events, log: log.Named("posts"), now: time.Now}
}

func parseID(raw, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, models.InvalidArgument("Invalid %s ID", what)
	}
	return id, nil
}

func likeResult(likes models.Likes, userID string) LikeResult {
	return LikeResult{
		Likes:       likes.Count,
		Liked:       likes.Has(userID),
		TotalLikers: len(likes.LikedBy),
	}
}

// ToggleLike adds userID to the likers when absent and removes it otherwise.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID string) (LikeResult, error) {
	id, err := parseID(postID, "post")
	if err != nil {
		return LikeResult{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return LikeResult{}, models.InvalidArgument("User ID is required")
	}

	likes, err := s.store.ToggleLike(ctx, id, userID)
	if err != nil {
		return LikeResult{}, err
	}
	result := likeResult(likes, userID)

	s.log.Debug("like toggled", zap.String("post_id", postID), zap.String("user_id", userID), zap.Bool("liked", result.Liked))
	s.events.Publish(EventPostLiked, id.Hex(), map[string]any{"likes": likes.Count})
	return result, nil
}

// LikeStatus reads the same shape as ToggleLike without mutating.
func (s *PostService) LikeStatus(ctx context.Context, postID, userID string) (LikeResult, error) {
	id, err := parseID(postID, "post")
	if err != nil {
		return LikeResult{}, err
	}
	post, err := s.store.FindByID(ctx, id)
	if err != nil {
		return LikeResult{}, err
	}
	likes := models.Likes{LikedBy: post.Likes.LikedBy.Unique()}
	likes.Count = len(likes.LikedBy)
	return likeResult(likes, strings.TrimSpace(userID)), nil
}

// AddComment prepends a new comment and returns it with its id.
func (s *PostService) AddComment(ctx context.Context, postID string, in NewCommentInput) (models.Comment, error) {
	id, err := parseID(postID, "post")
	if err != nil {
		return models.Comment{}, err
	}
	if in.UserID != nil && strings.TrimSpace(*in.UserID) == "" {
		in.UserID = nil
	}

	c, err := models.NewComment(in.Name, in.Comment, in.UserID, s.now())
	if err != nil {
		return models.Comment{}, err
	}
	if err := s.store.PrependComment(ctx, id, c); err != nil {
		return models.Comment{}, err
	}

	s.events.Publish(EventCommentAdded, id.Hex(), map[string]any{"comment": c})
	return c, nil
}

// ListComments returns the post's comments, newest first.
func (s *PostService) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	id, err := parseID(postID, "post")
	if err != nil {
		return nil, err
	}
	post, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Comments == nil {
		return []models.Comment{}, nil
	}
	return post.Comments, nil
}

// EditComment lets the author rewrite a comment inside the edit window.
func (s *PostService) EditComment(ctx context.Context, postID, commentID string, in EditCommentInput) (models.Comment, error) {
	pid, err := parseID(postID, "post")
	if err != nil {
		return models.Comment{}, err
	}
	cid, err := parseID(commentID, "comment")
	if err != nil {
		return models.Comment{}, err
	}
	text := strings.TrimSpace(in.Comment)
	if err := models.ValidateCommentText(text); err != nil {
		return models.Comment{}, err
	}

	post, err := s.store.FindByID(ctx, pid)
	if err != nil {
		return models.Comment{}, err
	}
	i := post.CommentIndex(cid)
	if i < 0 {
		return models.Comment{}, models.ErrCommentNotFound
	}

	now := s.now()
	if err := post.Comments[i].CheckEdit(in.UserID, now); err != nil {
		return models.Comment{}, err
	}

	edited, err := s.store.UpdateComment(ctx, pid, cid, in.UserID, text, now)
	if err != nil {
		return models.Comment{}, err
	}

	s.events.Publish(EventCommentEdited, pid.Hex(), map[string]any{"comment": edited})
	return edited, nil
}

// DeleteComment removes a comment for its author or an admin.
func (s *PostService) DeleteComment(ctx context.Context, postID, commentID string, actor Actor) (DeleteResult, error) {
	pid, err := parseID(postID, "post")
	if err != nil {
		return DeleteResult{}, err
	}
	cid, err := parseID(commentID, "comment")
	if err != nil {
		return DeleteResult{}, err
	}

	post, err := s.store.FindByID(ctx, pid)
	if err != nil {
		return DeleteResult{}, err
	}
	i := post.CommentIndex(cid)
	if i < 0 {
		return DeleteResult{}, models.ErrCommentNotFound
	}
	if err := post.Comments[i].CheckDelete(actor.UserID, actor.IsAdmin); err != nil {
		return DeleteResult{}, err
	}

	remaining, err := s.store.RemoveComment(ctx, pid, cid)
	if err != nil {
		return DeleteResult{}, err
	}

	if actor.IsAdmin && !post.Comments[i].AuthoredBy(actor.UserID) {
		s.log.Info("comment removed by admin",
			zap.String("post_id", pid.Hex()),
			zap.String("comment_id", cid.Hex()),
			zap.String("admin_id", actor.UserID),
		)
	}
	s.events.Publish(EventCommentDeleted, pid.Hex(), map[string]any{
		"commentId":         cid.Hex(),
		"remainingComments": remaining,
	})
	return DeleteResult{DeletedCommentID: cid.Hex(), RemainingComments: remaining}, nil
}

// Suggest returns the most engaging posts. limit <= 0 selects the default.
func (s *PostService) Suggest(ctx context.Context, limit int) ([]models.Suggestion, error) {
	switch {
	case limit <= 0:
		limit = DefaultSuggestions
	case limit > MaxSuggestions:
		limit = MaxSuggestions
	}
	return s.store.Suggest(ctx, limit)
}

func (s *PostService) CreatePost(ctx context.Context, in models.PostInput, createdBy string) (models.Post, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Post{}, err
	}
	post := models.NewPost(in, createdBy, s.now())
	if err := s.store.Insert(ctx, post); err != nil {
		return models.Post{}, err
	}
	s.log.Info("post created", zap.String("post_id", post.ID.Hex()), zap.String("created_by", createdBy))
	return post, nil
}

func (s *PostService) UpdatePost(ctx context.Context, postID string, in models.PostInput) (models.Post, error) {
	id, err := parseID(postID, "post")
	if err != nil {
		return models.Post{}, err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Post{}, err
	}
	post, err := s.store.UpdateContent(ctx, id, in)
	if err != nil {
		return models.Post{}, err
	}
	s.events.Publish(EventPostUpdated, id.Hex(), map[string]any{"title": post.Title})
	return post, nil
}

func (s *PostService) DeletePost(ctx context.Context, postID string) error {
	id, err := parseID(postID, "post")
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("post deleted", zap.String("post_id", id.Hex()))
	s.events.Publish(EventPostDeleted, id.Hex(), nil)
	return nil
}

func (s *PostService) GetPost(ctx context.Context, postID string) (models.Post, error) {
	id, err := parseID(postID, "post")
	if err != nil {
		return models.Post{}, err
	}
	return s.store.FindByID(ctx, id)
}

// ListPosts pages through posts, newest first.
func (s *PostService) ListPosts(ctx context.Context, f models.PostFilter) (PostPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}
	f.Category = strings.TrimSpace(f.Category)
	f.Tag = strings.TrimSpace(f.Tag)

	posts, total, err := s.store.List(ctx, f)
	if err != nil {
		return PostPage{}, err
	}
	return PostPage{Posts: posts, Total: total, Page: f.Page, Limit: f.Limit}, nil
}
