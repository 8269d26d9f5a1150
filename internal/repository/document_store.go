package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Cursor is a forward-only sequence of documents. *mongo.Cursor satisfies it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// FindOptions controls ordering and size of a Find
type FindOptions struct {
	Sort      bson.D
	Limit     int64
	BatchSize int32
}

// Update is a field-level update: paths to set and paths to remove
type Update struct {
	Set   bson.M
	Unset []string
}

// IsEmpty reports whether the update would do nothing
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Unset) == 0
}

// Document renders the update in MongoDB operator form
func (u Update) Document() bson.M {
	doc := bson.M{}
	if len(u.Set) > 0 {
		doc["$set"] = u.Set
	}
	if len(u.Unset) > 0 {
		unset := bson.M{}
		for _, path := range u.Unset {
			unset[path] = ""
		}
		doc["$unset"] = unset
	}
	return doc
}

// DocumentStore is the five-operation contract the pipeline depends on
type DocumentStore interface {
	// Find streams documents matching filter in cursor order
	Find(ctx context.Context, collection string, filter bson.M, opts *FindOptions) (Cursor, error)
	// FindOne returns the first match; found is false when nothing matches
	FindOne(ctx context.Context, collection string, filter bson.M) (doc bson.M, found bool, err error)
	// UpdateOne atomically applies update to the first match and returns
	// the number of modified documents
	UpdateOne(ctx context.Context, collection string, filter bson.M, update Update) (int64, error)
	// Aggregate runs a pipeline of stages
	Aggregate(ctx context.Context, collection string, pipeline []bson.M) (Cursor, error)
	// CountDocuments counts documents matching filter
	CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error)
}

// ForEach decodes every document of a cursor into bson.M and calls fn,
// stopping at the first error from fn or from ctx
func ForEach(ctx context.Context, cursor Cursor, fn func(doc bson.M) error) error {
	defer cursor.Close(context.Background())

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return cursor.Err()
}
