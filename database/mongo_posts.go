package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moments/models"
)

// MongoPostStore keeps posts with their likes and comments embedded. Every
// like and comment mutation is a single-document update.
type MongoPostStore struct {
	posts *mongo.Collection
}

func NewMongoPostStore(db *mongo.Database) *MongoPostStore {
	return &MongoPostStore{posts: db.Collection(PostsCollection)}
}

func (s *MongoPostStore) Insert(ctx context.Context, p models.Post) error {
	if _, err := s.posts.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *MongoPostStore) FindByID(ctx context.Context, id primitive.ObjectID) (models.Post, error) {
	var p models.Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, models.ErrPostNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("find post: %w", err)
	}
	return p, nil
}

func listFilter(f models.PostFilter) bson.M {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Tag != "" {
		filter["tags"] = f.Tag
	}
	return filter
}

func (s *MongoPostStore) List(ctx context.Context, f models.PostFilter) ([]models.Post, int64, error) {
	filter := listFilter(f)

	total, err := s.posts.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
		if f.Page > 1 {
			opts.SetSkip(int64((f.Page - 1) * f.Limit))
		}
	}

	cursor, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer cursor.Close(ctx)

	posts := []models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, 0, fmt.Errorf("decode posts: %w", err)
	}
	return posts, total, nil
}

// contentUpdate sets the editable fields only; likes and comments are never
// rewritten by a post edit.
func contentUpdate(in models.PostInput) bson.M {
	set := bson.M{
		"title":    in.Title,
		"excerpt":  in.Excerpt,
		"content":  in.Content,
		"author":   in.Author,
		"category": in.Category,
		"tags":     in.Tags,
		"image":    in.Image,
	}
	if in.Date != nil && !in.Date.IsZero() {
		set["date"] = in.Date.UTC()
	}
	return bson.M{"$set": set}
}

func (s *MongoPostStore) UpdateContent(ctx context.Context, id primitive.ObjectID, in models.PostInput) (models.Post, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Post
	err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, contentUpdate(in), opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, models.ErrPostNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("update post: %w", err)
	}
	return p, nil
}

func (s *MongoPostStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrPostNotFound
	}
	return nil
}

// normalizedLikedBy coerces every legacy likedBy entry to a string id, drops
// entries without one and removes duplicates.
func normalizedLikedBy() bson.D {
	entryID := bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: bson.A{
			bson.D{
				{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$$e"}}, "string"}}}},
				{Key: "then", Value: "$$e"},
			},
			bson.D{
				{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$$e"}}, "objectId"}}}},
				{Key: "then", Value: bson.D{{Key: "$toString", Value: "$$e"}}},
			},
			bson.D{
				{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$$e"}}, "object"}}}},
				{Key: "then", Value: bson.D{{Key: "$convert", Value: bson.D{
					{Key: "input", Value: "$$e.userId"},
					{Key: "to", Value: "string"},
					{Key: "onError", Value: nil},
					{Key: "onNull", Value: nil},
				}}}},
			},
		}},
		{Key: "default", Value: nil},
	}}}

	mapped := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$likes.likedBy", bson.A{}}}}},
		{Key: "as", Value: "e"},
		{Key: "in", Value: entryID},
	}}}

	present := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: mapped},
		{Key: "as", Value: "id"},
		{Key: "cond", Value: bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$ne", Value: bson.A{"$$id", nil}}},
			bson.D{{Key: "$ne", Value: bson.A{"$$id", ""}}},
		}}}},
	}}}

	return bson.D{{Key: "$setUnion", Value: bson.A{present, bson.A{}}}}
}

// toggleLikePipeline is an update pipeline that flips userID's membership in
// likes.likedBy and recomputes likes.count from the result.
func toggleLikePipeline(userID string) mongo.Pipeline {
	user := bson.D{{Key: "$literal", Value: userID}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "likes.likedBy", Value: normalizedLikedBy()}}}},
		{{Key: "$set", Value: bson.D{{Key: "likes.likedBy", Value: bson.D{{Key: "$cond", Value: bson.D{
			{Key: "if", Value: bson.D{{Key: "$in", Value: bson.A{user, "$likes.likedBy"}}}},
			{Key: "then", Value: bson.D{{Key: "$setDifference", Value: bson.A{"$likes.likedBy", bson.A{user}}}}},
			{Key: "else", Value: bson.D{{Key: "$concatArrays", Value: bson.A{"$likes.likedBy", bson.A{user}}}}},
		}}}}}}},
		{{Key: "$set", Value: bson.D{{Key: "likes.count", Value: bson.D{{Key: "$size", Value: "$likes.likedBy"}}}}}},
	}
}

func (s *MongoPostStore) ToggleLike(ctx context.Context, id primitive.ObjectID, userID string) (models.Likes, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"likes": 1})

	var out struct {
		Likes models.Likes `bson:"likes"`
	}
	err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, toggleLikePipeline(userID), opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Likes{}, models.ErrPostNotFound
	}
	if err != nil {
		return models.Likes{}, fmt.Errorf("toggle like: %w", err)
	}
	return out.Likes, nil
}

// prependComment pushes c at the head of the comments array.
func prependComment(c models.Comment) bson.M {
	return bson.M{"$push": bson.M{"comments": bson.M{
		"$each":     bson.A{c},
		"$position": 0,
	}}}
}

func (s *MongoPostStore) PrependComment(ctx context.Context, postID primitive.ObjectID, c models.Comment) error {
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": postID}, prependComment(c))
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrPostNotFound
	}
	return nil
}

// editableCommentFilter matches the post only while the comment still
// belongs to authorID and is inside the edit window at now.
func editableCommentFilter(postID, commentID primitive.ObjectID, authorID string, now time.Time) bson.M {
	return bson.M{
		"_id": postID,
		"comments": bson.M{"$elemMatch": bson.M{
			"_id":    commentID,
			"userId": authorID,
			"date":   bson.M{"$gt": now.Add(-models.EditWindow)},
		}},
	}
}

func editCommentUpdate(text string, now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"comments.$.comment":  text,
		"comments.$.edited":   true,
		"comments.$.editedAt": now.UTC(),
	}}
}

func (s *MongoPostStore) UpdateComment(ctx context.Context, postID, commentID primitive.ObjectID, authorID, text string, now time.Time) (models.Comment, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"comments": bson.M{"$elemMatch": bson.M{"_id": commentID}}})

	var out struct {
		Comments []models.Comment `bson:"comments"`
	}
	err := s.posts.FindOneAndUpdate(ctx,
		editableCommentFilter(postID, commentID, authorID, now),
		editCommentUpdate(text, now),
		opts,
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Comment{}, models.Conflict("Comment changed while it was being edited")
	}
	if err != nil {
		return models.Comment{}, fmt.Errorf("edit comment: %w", err)
	}
	if len(out.Comments) != 1 {
		return models.Comment{}, models.Internal("Edited comment missing from post")
	}
	return out.Comments[0], nil
}

func (s *MongoPostStore) RemoveComment(ctx context.Context, postID, commentID primitive.ObjectID) (int, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"comments._id": 1})

	var out struct {
		Comments []struct {
			ID primitive.ObjectID `bson:"_id"`
		} `bson:"comments"`
	}
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": postID},
		bson.M{"$pull": bson.M{"comments": bson.M{"_id": commentID}}},
		opts,
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, models.ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete comment: %w", err)
	}

	for _, c := range out.Comments {
		if c.ID == commentID {
			return 0, models.Internal("Comment was not removed")
		}
	}
	return len(out.Comments), nil
}

// suggestionPipeline ranks posts by likes, then comment count, then id.
func suggestionPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{{Key: "commentCount", Value: bson.D{
			{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$comments", bson.A{}}}}},
		}}}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "likes.count", Value: -1},
			{Key: "commentCount", Value: -1},
			{Key: "_id", Value: 1},
		}}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$project", Value: bson.D{
			{Key: "title", Value: 1},
			{Key: "image", Value: 1},
			{Key: "likes", Value: 1},
			{Key: "comments", Value: 1},
			{Key: "category", Value: 1},
			{Key: "date", Value: 1},
			{Key: "author", Value: 1},
		}}},
	}
}

func (s *MongoPostStore) Suggest(ctx context.Context, limit int) ([]models.Suggestion, error) {
	cursor, err := s.posts.Aggregate(ctx, suggestionPipeline(limit))
	if err != nil {
		return nil, fmt.Errorf("suggest posts: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Suggestion{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	return out, nil
}

func (s *MongoPostStore) Totals(ctx context.Context) (models.Stats, error) {
	cursor, err := s.posts.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "posts", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "likes", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$likes.count", 0}}}}}},
			{Key: "comments", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$comments", bson.A{}}}}},
			}}}},
		}}},
	})
	if err != nil {
		return models.Stats{}, fmt.Errorf("post totals: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []models.Stats
	if err := cursor.All(ctx, &rows); err != nil {
		return models.Stats{}, fmt.Errorf("decode totals: %w", err)
	}
	if len(rows) == 0 {
		return models.Stats{}, nil
	}
	return rows[0], nil
}

func (s *MongoPostStore) RecentComments(ctx context.Context, limit int) ([]models.CommentActivity, error) {
	cursor, err := s.posts.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$unwind", Value: "$comments"}},
		{{Key: "$sort", Value: bson.D{{Key: "comments.date", Value: -1}}}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "postId", Value: "$_id"},
			{Key: "postTitle", Value: "$title"},
			{Key: "comment", Value: "$comments"},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("recent comments: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.CommentActivity{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode recent comments: %w", err)
	}
	return out, nil
}
