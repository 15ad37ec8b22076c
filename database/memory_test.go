package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"moments/models"
)

func seedPost(t *testing.T, s *MemoryPostStore, title string, date time.Time) models.Post {
	t.Helper()
	p := models.NewPost(models.PostInput{Title: title, Content: "c", Author: "a", Category: "travel", Tags: []string{"sea"}}, "", date)
	require.NoError(t, s.Insert(context.Background(), p))
	return p
}

func TestMemoryPostStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostStore()
	p := seedPost(t, s, "one", time.Now())

	got, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	got.Likes.LikedBy = append(got.Likes.LikedBy, "intruder")
	got.Title = "changed"

	again, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", again.Title)
	assert.Empty(t, again.Likes.LikedBy)
}

func TestMemoryPostStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostStore()
	id := primitive.NewObjectID()

	_, err := s.FindByID(ctx, id)
	assert.ErrorIs(t, err, models.ErrPostNotFound)
	_, err = s.ToggleLike(ctx, id, "u1")
	assert.ErrorIs(t, err, models.ErrPostNotFound)
	assert.ErrorIs(t, s.PrependComment(ctx, id, models.Comment{}), models.ErrPostNotFound)
	_, err = s.RemoveComment(ctx, id, primitive.NewObjectID())
	assert.ErrorIs(t, err, models.ErrPostNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), models.ErrPostNotFound)
}

func TestMemoryPostStoreConcurrentToggles(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostStore()
	p := seedPost(t, s, "hot", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.ToggleLike(ctx, p.ID, primitive.NewObjectID().Hex())
		}(i)
	}
	wg.Wait()

	got, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Likes.Count)
	assert.Len(t, got.Likes.LikedBy, 50)
}

func TestMemoryPostStoreComments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostStore()
	p := seedPost(t, s, "post", time.Now())
	now := time.Now()
	author := "u1"

	first, err := models.NewComment("Ana", "first", &author, now.Add(-time.Minute))
	require.NoError(t, err)
	second, err := models.NewComment("Ana", "second", &author, now)
	require.NoError(t, err)
	require.NoError(t, s.PrependComment(ctx, p.ID, first))
	require.NoError(t, s.PrependComment(ctx, p.ID, second))

	got, err := s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, second.ID, got.Comments[0].ID, "newest first")

	edited, err := s.UpdateComment(ctx, p.ID, first.ID, author, "first!", now)
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "first!", edited.Comment)

	_, err = s.UpdateComment(ctx, p.ID, first.ID, "u2", "nope", now)
	assert.True(t, models.IsKind(err, models.KindConflict))
	_, err = s.UpdateComment(ctx, p.ID, first.ID, author, "late", now.Add(time.Hour))
	assert.True(t, models.IsKind(err, models.KindConflict))

	remaining, err := s.RemoveComment(ctx, p.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	_, err = s.RemoveComment(ctx, p.ID, first.ID)
	assert.True(t, models.IsKind(err, models.KindInternal))
}

func TestMemoryPostStoreListAndRank(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := seedPost(t, s, "old", base)
	mid := seedPost(t, s, "mid", base.Add(time.Hour))
	seedPost(t, s, "new", base.Add(2*time.Hour))
	other := models.NewPost(models.PostInput{Title: "food", Content: "c", Author: "a", Category: "food"}, "", base)
	require.NoError(t, s.Insert(ctx, other))

	posts, total, err := s.List(ctx, models.PostFilter{Category: "travel", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, posts, 2)
	assert.Equal(t, "new", posts[0].Title)
	assert.Equal(t, "mid", posts[1].Title)

	posts, _, err = s.List(ctx, models.PostFilter{Category: "travel", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "old", posts[0].Title)

	posts, total, err = s.List(ctx, models.PostFilter{Tag: "sea", Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Empty(t, posts)

	_, err = s.ToggleLike(ctx, old.ID, "u1")
	require.NoError(t, err)
	_, err = s.ToggleLike(ctx, old.ID, "u2")
	require.NoError(t, err)
	_, err = s.ToggleLike(ctx, mid.ID, "u1")
	require.NoError(t, err)

	ranked, err := s.Suggest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "old", ranked[0].Title)
	assert.Equal(t, "mid", ranked[1].Title)

	stats, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Posts: 4, Likes: 3}, stats)
}

func TestMemoryPostStoreUpdateContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPostStore()
	p := seedPost(t, s, "before", time.Now())
	_, err := s.ToggleLike(ctx, p.ID, "u1")
	require.NoError(t, err)

	updated, err := s.UpdateContent(ctx, p.ID, models.PostInput{Title: "after", Content: "c2", Author: "b"})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, 1, updated.Likes.Count, "likes survive content edits")
	assert.Equal(t, p.Date.UTC(), updated.Date.UTC())
}

func TestMemoryUserStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()
	u := models.User{ID: primitive.NewObjectID(), Email: "ana@example.com", PasswordHash: "h", CreatedAt: time.Now()}
	require.NoError(t, s.Insert(ctx, u))

	err := s.Insert(ctx, models.User{ID: primitive.NewObjectID(), Email: "ANA@example.com"})
	assert.True(t, models.IsKind(err, models.KindConflict))

	got, err := s.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, s.UpdatePassword(ctx, u.ID, "h2"))
	got, err = s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].PasswordHash)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.FindByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
