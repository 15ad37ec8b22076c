package models

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxTitleLen   = 300
	maxExcerptLen = 1_000
	maxContentLen = 100_000
)

type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title     string             `bson:"title" json:"title"`
	Excerpt   string             `bson:"excerpt,omitempty" json:"excerpt,omitempty"`
	Content   string             `bson:"content,omitempty" json:"content,omitempty"`
	Author    string             `bson:"author" json:"author"`
	Category  string             `bson:"category,omitempty" json:"category,omitempty"`
	Tags      []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
	Date      time.Time          `bson:"date" json:"date"`
	Likes     Likes              `bson:"likes" json:"likes"`
	Comments  []Comment          `bson:"comments" json:"comments"`
	CreatedBy string             `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
}

// PostInput carries the editable content fields of a post.
type PostInput struct {
	Title    string     `json:"title"`
	Excerpt  string     `json:"excerpt"`
	Content  string     `json:"content"`
	Author   string     `json:"author"`
	Category string     `json:"category"`
	Tags     []string   `json:"tags"`
	Image    string     `json:"image"`
	Date     *time.Time `json:"date"`
}

// Normalize trims the fields and drops blank tags.
func (in PostInput) Normalize() PostInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.Content = strings.TrimSpace(in.Content)
	in.Author = strings.TrimSpace(in.Author)
	in.Category = strings.TrimSpace(in.Category)
	in.Image = strings.TrimSpace(in.Image)

	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	in.Tags = tags
	return in
}

// Validate expects a normalized input.
func (in PostInput) Validate() error {
	switch {
	case in.Title == "":
		return InvalidArgument("Title is required")
	case in.Content == "":
		return InvalidArgument("Content is required")
	case in.Author == "":
		return InvalidArgument("Author is required")
	case utf8.RuneCountInString(in.Title) > maxTitleLen:
		return InvalidArgument("Title is too long (max %d characters)", maxTitleLen)
	case utf8.RuneCountInString(in.Excerpt) > maxExcerptLen:
		return InvalidArgument("Excerpt is too long (max %d characters)", maxExcerptLen)
	case utf8.RuneCountInString(in.Content) > maxContentLen:
		return InvalidArgument("Content is too long (max %d characters)", maxContentLen)
	}
	return nil
}

// NewPost builds a post with empty likes and comments.
func NewPost(in PostInput, createdBy string, now time.Time) Post {
	date := now.UTC()
	if in.Date != nil && !in.Date.IsZero() {
		date = in.Date.UTC()
	}
	return Post{
		ID:        primitive.NewObjectID(),
		Title:     in.Title,
		Excerpt:   in.Excerpt,
		Content:   in.Content,
		Author:    in.Author,
		Category:  in.Category,
		Tags:      in.Tags,
		Image:     in.Image,
		Date:      date,
		Likes:     Likes{LikedBy: LikedBy{}},
		Comments:  []Comment{},
		CreatedBy: createdBy,
	}
}

// CommentIndex returns the position of the comment with id, or -1.
func (p Post) CommentIndex(id primitive.ObjectID) int {
	for i, c := range p.Comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Suggestion is the reduced projection returned by the ranking query.
type Suggestion struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Title    string             `bson:"title" json:"title"`
	Image    string             `bson:"image,omitempty" json:"image,omitempty"`
	Likes    Likes              `bson:"likes" json:"likes"`
	Comments []Comment          `bson:"comments" json:"comments"`
	Category string             `bson:"category,omitempty" json:"category,omitempty"`
	Date     time.Time          `bson:"date" json:"date"`
	Author   string             `bson:"author" json:"author"`
}

func (p Post) Suggestion() Suggestion {
	return Suggestion{
		ID:       p.ID,
		Title:    p.Title,
		Image:    p.Image,
		Likes:    p.Likes,
		Comments: p.Comments,
		Category: p.Category,
		Date:     p.Date,
		Author:   p.Author,
	}
}

// RankSuggestions orders posts by like count then comment count, both
// descending, with the id as the final tie-break, and keeps the first limit.
func RankSuggestions(posts []Post, limit int) []Suggestion {
	ranked := make([]Post, len(posts))
	copy(ranked, posts)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Likes.Count != b.Likes.Count {
			return a.Likes.Count > b.Likes.Count
		}
		if len(a.Comments) != len(b.Comments) {
			return len(a.Comments) > len(b.Comments)
		}
		return a.ID.Hex() < b.ID.Hex()
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Suggestion, len(ranked))
	for i, p := range ranked {
		out[i] = p.Suggestion()
	}
	return out
}

// PostFilter narrows ListPosts.
type PostFilter struct {
	Category string
	Tag      string
	Page     int
	Limit    int
}

// Stats is the admin dashboard summary.
type Stats struct {
	Posts    int64 `json:"posts" bson:"posts"`
	Users    int64 `json:"users" bson:"users"`
	Likes    int64 `json:"likes" bson:"likes"`
	Comments int64 `json:"comments" bson:"comments"`
}

// CommentActivity is a comment listed with its post for moderation.
type CommentActivity struct {
	PostID    primitive.ObjectID `bson:"postId" json:"postId"`
	PostTitle string             `bson:"postTitle" json:"postTitle"`
	Comment   Comment            `bson:"comment" json:"comment"`
}
