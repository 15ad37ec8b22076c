package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"moments/models"
)

// MemoryPostStore applies the same mutation rules as MongoPostStore under a
// mutex. Used with STORE_DRIVER=memory and in tests.
type MemoryPostStore struct {
	mu    sync.Mutex
	posts map[primitive.ObjectID]models.Post
}

func NewMemoryPostStore() *MemoryPostStore {
	return &MemoryPostStore{posts: make(map[primitive.ObjectID]models.Post)}
}

func clonePost(p models.Post) models.Post {
	p.Tags = append([]string(nil), p.Tags...)
	p.Likes.LikedBy = append(models.LikedBy{}, p.Likes.LikedBy...)
	comments := make([]models.Comment, len(p.Comments))
	for i, c := range p.Comments {
		comments[i] = cloneComment(c)
	}
	p.Comments = comments
	return p
}

func cloneComment(c models.Comment) models.Comment {
	if c.UserID != nil {
		id := *c.UserID
		c.UserID = &id
	}
	if c.EditedAt != nil {
		at := *c.EditedAt
		c.EditedAt = &at
	}
	return c
}

func (s *MemoryPostStore) Insert(_ context.Context, p models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; ok {
		return models.Conflict("Post %s already exists", p.ID.Hex())
	}
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *MemoryPostStore) FindByID(_ context.Context, id primitive.ObjectID) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, models.ErrPostNotFound
	}
	return clonePost(p), nil
}

func (s *MemoryPostStore) List(_ context.Context, f models.PostFilter) ([]models.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []models.Post{}
	for _, p := range s.posts {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Tag != "" && !containsString(p.Tags, f.Tag) {
			continue
		}
		matched = append(matched, clonePost(p))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID.Hex() > matched[j].ID.Hex()
	})

	total := int64(len(matched))
	if f.Limit > 0 {
		start := 0
		if f.Page > 1 {
			start = (f.Page - 1) * f.Limit
		}
		if start > len(matched) {
			start = len(matched)
		}
		end := start + f.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *MemoryPostStore) UpdateContent(_ context.Context, id primitive.ObjectID, in models.PostInput) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, models.ErrPostNotFound
	}
	p.Title = in.Title
	p.Excerpt = in.Excerpt
	p.Content = in.Content
	p.Author = in.Author
	p.Category = in.Category
	p.Tags = append([]string(nil), in.Tags...)
	p.Image = in.Image
	if in.Date != nil && !in.Date.IsZero() {
		p.Date = in.Date.UTC()
	}
	s.posts[id] = p
	return clonePost(p), nil
}

func (s *MemoryPostStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return models.ErrPostNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *MemoryPostStore) ToggleLike(_ context.Context, id primitive.ObjectID, userID string) (models.Likes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return models.Likes{}, models.ErrPostNotFound
	}
	p.Likes.Toggle(userID)
	s.posts[id] = p
	return clonePost(p).Likes, nil
}

func (s *MemoryPostStore) PrependComment(_ context.Context, postID primitive.ObjectID, c models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return models.ErrPostNotFound
	}
	p.Comments = append([]models.Comment{cloneComment(c)}, p.Comments...)
	s.posts[postID] = p
	return nil
}

func (s *MemoryPostStore) UpdateComment(_ context.Context, postID, commentID primitive.ObjectID, authorID, text string, now time.Time) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return models.Comment{}, models.ErrPostNotFound
	}
	i := p.CommentIndex(commentID)
	if i < 0 || !p.Comments[i].AuthoredBy(authorID) || !p.Comments[i].EditableAt(now) {
		return models.Comment{}, models.Conflict("Comment changed while it was being edited")
	}
	p.Comments[i].ApplyEdit(text, now)
	s.posts[postID] = p
	return cloneComment(p.Comments[i]), nil
}

func (s *MemoryPostStore) RemoveComment(_ context.Context, postID, commentID primitive.ObjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return 0, models.ErrPostNotFound
	}
	before := len(p.Comments)
	kept := make([]models.Comment, 0, before)
	for _, c := range p.Comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	if len(kept) == before {
		return 0, models.Internal("Comment was not removed")
	}
	p.Comments = kept
	s.posts[postID] = p
	return len(kept), nil
}

func (s *MemoryPostStore) Suggest(_ context.Context, limit int) ([]models.Suggestion, error) {
	s.mu.Lock()
	posts := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, clonePost(p))
	}
	s.mu.Unlock()

	return models.RankSuggestions(posts, limit), nil
}

func (s *MemoryPostStore) Totals(_ context.Context) (models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st models.Stats
	for _, p := range s.posts {
		st.Posts++
		st.Likes += int64(p.Likes.Count)
		st.Comments += int64(len(p.Comments))
	}
	return st, nil
}

func (s *MemoryPostStore) RecentComments(_ context.Context, limit int) ([]models.CommentActivity, error) {
	s.mu.Lock()
	out := []models.CommentActivity{}
	for _, p := range s.posts {
		for _, c := range p.Comments {
			out = append(out, models.CommentActivity{PostID: p.ID, PostTitle: p.Title, Comment: cloneComment(c)})
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Comment.Date.After(out[j].Comment.Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// MemoryUserStore is the in-process user collection.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[primitive.ObjectID]models.User)}
}

func (s *MemoryUserStore) Insert(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return models.Conflict("An account with this email already exists")
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

func (s *MemoryUserStore) FindByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) UpdatePassword(_ context.Context, id primitive.ObjectID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

func (s *MemoryUserStore) List(_ context.Context, limit int) ([]models.User, error) {
	s.mu.Lock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		u.PasswordHash = ""
		users = append(users, u)
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID.Hex() > users[j].ID.Hex()
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *MemoryUserStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}
