package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"moments/models"
)

// MutationState tracks one local mutation against the server.
type MutationState int

const (
	Idle MutationState = iota
	Pending
	Reconciled
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Reconciled:
		return "reconciled"
	case RolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// ErrMutationPending is returned when a mutation is started while another
// one on the same state is still in flight.
var ErrMutationPending = errors.New("client: mutation already in flight")

type LikeAPI interface {
	ToggleLike(ctx context.Context, postID string) (LikeState, error)
	LikeStatus(ctx context.Context, postID string) (LikeState, error)
}

// LikeTracker holds the like state shown for one post. A toggle flips the
// view immediately, then adopts whatever the server answers. Failed toggles
// are not retried.
type LikeTracker struct {
	api    LikeAPI
	postID string

	mu    sync.Mutex
	view  LikeState
	state MutationState
}

func NewLikeTracker(api LikeAPI, postID string, initial LikeState) *LikeTracker {
	return &LikeTracker{api: api, postID: postID, view: initial}
}

func (t *LikeTracker) View() LikeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

func (t *LikeTracker) State() MutationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func optimisticToggle(s LikeState) LikeState {
	if s.Liked {
		s.Liked = false
		if s.Likes > 0 {
			s.Likes--
		}
	} else {
		s.Liked = true
		s.Likes++
	}
	s.TotalLikers = s.Likes
	return s
}

// Toggle applies the optimistic flip and sends it. On failure the flip is
// discarded and the view re-fetched from the server; if that also fails the
// pre-toggle view is restored. The toggle's own error is returned.
func (t *LikeTracker) Toggle(ctx context.Context) (LikeState, error) {
	t.mu.Lock()
	if t.state == Pending {
		t.mu.Unlock()
		return LikeState{}, ErrMutationPending
	}
	before := t.view
	t.view = optimisticToggle(before)
	t.state = Pending
	t.mu.Unlock()

	res, err := t.api.ToggleLike(ctx, t.postID)
	if err == nil {
		t.mu.Lock()
		t.view = res
		t.state = Reconciled
		t.mu.Unlock()
		return res, nil
	}

	current, ferr := t.api.LikeStatus(ctx, t.postID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ferr == nil {
		t.view = current
	} else {
		t.view = before
	}
	t.state = RolledBack
	return t.view, err
}

// Sync replaces the view with the server's. It refuses while a toggle is
// in flight.
func (t *LikeTracker) Sync(ctx context.Context) error {
	t.mu.Lock()
	if t.state == Pending {
		t.mu.Unlock()
		return ErrMutationPending
	}
	t.mu.Unlock()

	res, err := t.api.LikeStatus(ctx, t.postID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.state != Pending {
		t.view = res
	}
	t.mu.Unlock()
	return nil
}

type CommentAPI interface {
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	AddComment(ctx context.Context, postID, name, text string) (models.Comment, error)
	EditComment(ctx context.Context, postID, commentID, text string) (models.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string) (DeleteResult, error)
}

// CommentThread is the local copy of a post's comments, newest first. Every
// change is applied only after the server confirms it, using the server's
// copy of the comment.
type CommentThread struct {
	api    CommentAPI
	postID string

	mu       sync.Mutex
	comments []models.Comment
	total    int
	state    MutationState
}

func NewCommentThread(api CommentAPI, postID string, initial []models.Comment) *CommentThread {
	cs := append([]models.Comment(nil), initial...)
	return &CommentThread{api: api, postID: postID, comments: cs, total: len(cs)}
}

func (t *CommentThread) Comments() []models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Comment(nil), t.comments...)
}

// Total is the server's comment count as last reported.
func (t *CommentThread) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *CommentThread) State() MutationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *CommentThread) begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Pending {
		return ErrMutationPending
	}
	t.state = Pending
	return nil
}

// fail marks the mutation rolled back. A 404 or 409 means the local copy
// is stale, so the thread is reloaded.
func (t *CommentThread) fail(ctx context.Context, err error) error {
	var apiErr *APIError
	stale := errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusConflict)
	if stale {
		if fresh, lerr := t.api.ListComments(ctx, t.postID); lerr == nil {
			t.mu.Lock()
			t.comments = fresh
			t.total = len(fresh)
			t.mu.Unlock()
		}
	}
	t.mu.Lock()
	t.state = RolledBack
	t.mu.Unlock()
	return err
}

func (t *CommentThread) indexOf(id primitive.ObjectID) int {
	for i, c := range t.comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Create prepends the comment the server stored.
func (t *CommentThread) Create(ctx context.Context, name, text string) (models.Comment, error) {
	if err := t.begin(); err != nil {
		return models.Comment{}, err
	}
	c, err := t.api.AddComment(ctx, t.postID, name, text)
	if err != nil {
		return models.Comment{}, t.fail(ctx, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.comments = append([]models.Comment{c}, t.comments...)
	t.total++
	t.state = Reconciled
	return c, nil
}

// Edit always asks the server; Editable is only a hint for the UI.
func (t *CommentThread) Edit(ctx context.Context, commentID, text string) (models.Comment, error) {
	if err := t.begin(); err != nil {
		return models.Comment{}, err
	}
	c, err := t.api.EditComment(ctx, t.postID, commentID, text)
	if err != nil {
		return models.Comment{}, t.fail(ctx, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexOf(c.ID); i >= 0 {
		t.comments[i] = c
	}
	t.state = Reconciled
	return c, nil
}

// Delete removes the comment once the server has, and adopts the server's
// remaining count.
func (t *CommentThread) Delete(ctx context.Context, commentID string) error {
	if err := t.begin(); err != nil {
		return err
	}
	res, err := t.api.DeleteComment(ctx, t.postID, commentID)
	if err != nil {
		return t.fail(ctx, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, perr := primitive.ObjectIDFromHex(res.DeletedCommentID); perr == nil {
		if i := t.indexOf(id); i >= 0 {
			t.comments = append(t.comments[:i], t.comments[i+1:]...)
		}
	}
	t.total = res.RemainingComments
	t.state = Reconciled
	return nil
}

// Resync reloads the thread from the server.
func (t *CommentThread) Resync(ctx context.Context) error {
	t.mu.Lock()
	if t.state == Pending {
		t.mu.Unlock()
		return ErrMutationPending
	}
	t.mu.Unlock()

	fresh, err := t.api.ListComments(ctx, t.postID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.comments = fresh
	t.total = len(fresh)
	t.mu.Unlock()
	return nil
}

// Editable reports whether userID may still edit c at now. The server
// applies the same window and has the final say.
func Editable(c models.Comment, userID string, now time.Time) bool {
	return c.AuthoredBy(userID) && c.EditableAt(now)
}

// EditTimeRemaining is the countdown shown next to an editable comment.
func EditTimeRemaining(c models.Comment, now time.Time) time.Duration {
	return c.EditTimeRemaining(now)
}
