package models

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Likes is the like aggregate embedded in a Post. Count always equals
// len(LikedBy) once a mutation has gone through Toggle.
type Likes struct {
	Count   int     `bson:"count" json:"count"`
	LikedBy LikedBy `bson:"likedBy" json:"likedBy"`
}

// Has reports whether userID is in LikedBy.
func (l Likes) Has(userID string) bool {
	return l.LikedBy.Contains(userID)
}

// Toggle flips userID's membership and returns true when the user now likes
// the post. LikedBy is deduplicated and Count recomputed from it.
func (l *Likes) Toggle(userID string) bool {
	liked := l.LikedBy.Contains(userID)
	ids := l.LikedBy.Unique()
	if liked {
		ids = ids.Without(userID)
	} else {
		ids = append(ids, userID)
	}
	l.LikedBy = ids
	l.Count = len(ids)
	return !liked
}

// LikedBy holds user ids. Older documents stored entries as {userId: ...}
// sub-documents or ObjectIDs; decoding accepts every shape and yields plain
// strings, and encoding only ever writes strings.
type LikedBy []string

func (l LikedBy) Contains(userID string) bool {
	for _, id := range l {
		if id == userID {
			return true
		}
	}
	return false
}

// Unique returns a copy without duplicates, keeping first occurrences.
func (l LikedBy) Unique() LikedBy {
	seen := make(map[string]struct{}, len(l))
	out := make(LikedBy, 0, len(l))
	for _, id := range l {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Without returns a copy with every occurrence of userID removed.
func (l LikedBy) Without(userID string) LikedBy {
	out := make(LikedBy, 0, len(l))
	for _, id := range l {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

func (l LikedBy) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if l == nil {
		l = LikedBy{}
	}
	return bson.MarshalValue([]string(l))
}

func (l *LikedBy) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	*l = LikedBy{}
	if t == bsontype.Null || t == bsontype.Undefined {
		return nil
	}
	if t != bsontype.Array {
		return fmt.Errorf("likedBy: cannot decode %s", t)
	}

	values, err := bson.Raw(data).Values()
	if err != nil {
		return fmt.Errorf("likedBy: %w", err)
	}
	for _, v := range values {
		if id := likerID(v); id != "" {
			*l = append(*l, id)
		}
	}
	return nil
}

// likerID coerces one stored likedBy entry to a string id.
func likerID(v bson.RawValue) string {
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	case bsontype.EmbeddedDocument:
		inner, err := v.Document().LookupErr("userId")
		if err != nil {
			return ""
		}
		return likerID(inner)
	}
	return ""
}

func (l LikedBy) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *LikedBy) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("likedBy: %w", err)
	}

	out := make(LikedBy, 0, len(raw))
	for _, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			if id != "" {
				out = append(out, id)
			}
			continue
		}
		var legacy struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(item, &legacy); err == nil && legacy.UserID != "" {
			out = append(out, legacy.UserID)
		}
	}
	*l = out
	return nil
}
