package models

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EditWindow is how long after posting a comment its author may edit it.
const EditWindow = 15 * time.Minute

const (
	MaxCommentLen     = 2000
	MaxCommenterName  = 100
	avatarServiceBase = "https://ui-avatars.com/api/"
)

// Comment is embedded in Post.Comments, newest first.
type Comment struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Comment  string             `bson:"comment" json:"comment"`
	Date     time.Time          `bson:"date" json:"date"`
	Avatar   string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	UserID   *string            `bson:"userId" json:"userId"`
	Edited   bool               `bson:"edited" json:"edited"`
	EditedAt *time.Time         `bson:"editedAt" json:"editedAt"`
}

// NewComment validates the input and builds a comment stamped at now.
func NewComment(name, text string, userID *string, now time.Time) (Comment, error) {
	name = strings.TrimSpace(name)
	text = strings.TrimSpace(text)
	if name == "" {
		return Comment{}, InvalidArgument("Name is required")
	}
	if text == "" {
		return Comment{}, InvalidArgument("Comment is required")
	}
	if utf8.RuneCountInString(name) > MaxCommenterName {
		return Comment{}, InvalidArgument("Name is too long (max %d characters)", MaxCommenterName)
	}
	if err := ValidateCommentText(text); err != nil {
		return Comment{}, err
	}

	return Comment{
		ID:      primitive.NewObjectID(),
		Name:    name,
		Comment: text,
		Date:    now.UTC(),
		Avatar:  AvatarURL(name),
		UserID:  userID,
	}, nil
}

// ValidateCommentText checks an already trimmed comment body.
func ValidateCommentText(text string) error {
	if text == "" {
		return InvalidArgument("Comment is required")
	}
	if utf8.RuneCountInString(text) > MaxCommentLen {
		return InvalidArgument("Comment is too long (max %d characters)", MaxCommentLen)
	}
	return nil
}

// AvatarURL derives a generated avatar from a display name.
func AvatarURL(name string) string {
	q := url.Values{}
	q.Set("name", name)
	q.Set("background", "random")
	return avatarServiceBase + "?" + q.Encode()
}

// AuthoredBy reports whether userID owns the comment. Anonymous comments
// have no owner.
func (c Comment) AuthoredBy(userID string) bool {
	return c.UserID != nil && userID != "" && *c.UserID == userID
}

// EditableAt reports whether the edit window is still open at now.
func (c Comment) EditableAt(now time.Time) bool {
	return now.Sub(c.Date) < EditWindow
}

// EditTimeRemaining returns how long the comment stays editable, or zero.
func (c Comment) EditTimeRemaining(now time.Time) time.Duration {
	left := EditWindow - now.Sub(c.Date)
	if left < 0 {
		return 0
	}
	return left
}

// CheckEdit applies the edit policy: author only, no admin override, inside
// the window. An expired window is reported whoever asks.
func (c Comment) CheckEdit(userID string, now time.Time) error {
	if c.UserID == nil {
		return Forbidden("Comments without an author cannot be edited")
	}
	if !c.EditableAt(now) {
		return ErrEditWindowExpired
	}
	if !c.AuthoredBy(userID) {
		return Forbidden("You can only edit your own comments")
	}
	return nil
}

// CheckDelete lets the author or an admin remove the comment at any time.
func (c Comment) CheckDelete(userID string, isAdmin bool) error {
	if isAdmin || c.AuthoredBy(userID) {
		return nil
	}
	return Forbidden("You can only delete your own comments")
}

// ApplyEdit overwrites the text and marks the comment edited.
func (c *Comment) ApplyEdit(text string, now time.Time) {
	at := now.UTC()
	c.Comment = text
	c.Edited = true
	c.EditedAt = &at
}
