package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/database"
)

// MongoDocumentStore implements DocumentStore on MongoDB. Every call goes
// through the connection's circuit breaker.
type MongoDocumentStore struct {
	db           *database.MongoDB
	breaker      *gobreaker.CircuitBreaker
	log          *zap.Logger
	queryTimeout time.Duration
}

// NewMongoDocumentStore creates a store over an open connection
func NewMongoDocumentStore(db *database.MongoDB, log *zap.Logger) *MongoDocumentStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MongoDocumentStore{
		db:           db,
		breaker:      db.Breaker(),
		log:          log.Named("mongo-store"),
		queryTimeout: 30 * time.Second,
	}
}

// Find streams documents matching filter
func (s *MongoDocumentStore) Find(ctx context.Context, collection string, filter bson.M, opts *FindOptions) (Cursor, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		findOpts := options.Find()
		if opts != nil {
			if len(opts.Sort) > 0 {
				findOpts.SetSort(opts.Sort)
			}
			if opts.Limit > 0 {
				findOpts.SetLimit(opts.Limit)
			}
			if opts.BatchSize > 0 {
				findOpts.SetBatchSize(opts.BatchSize)
			}
		}
		return s.db.Collection(collection).Find(ctx, nonNil(filter), findOpts)
	})
	if err != nil {
		s.log.Error("Find failed", zap.String("collection", collection), zap.Error(err))
		return nil, classify(err, "find "+collection)
	}
	return result.(*mongo.Cursor), nil
}

// FindOne returns the first matching document
func (s *MongoDocumentStore) FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, bool, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()

		var doc bson.M
		if err := s.db.Collection(collection).FindOne(ctx, nonNil(filter)).Decode(&doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		s.log.Error("FindOne failed", zap.String("collection", collection), zap.Error(err))
		return nil, false, classify(err, "find one "+collection)
	}
	return result.(bson.M), true, nil
}

// UpdateOne applies $set and $unset in a single atomic write
func (s *MongoDocumentStore) UpdateOne(ctx context.Context, collection string, filter bson.M, update Update) (int64, error) {
	if update.IsEmpty() {
		return 0, nil
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
		return s.db.Collection(collection).UpdateOne(ctx, filter, update.Document())
	})
	if err != nil {
		s.log.Error("UpdateOne failed",
			zap.String("collection", collection),
			zap.Any("filter", filter),
			zap.Error(err))
		return 0, classify(err, "update "+collection)
	}

	res := result.(*mongo.UpdateResult)
	s.log.Debug("Document updated",
		zap.String("collection", collection),
		zap.Int64("matched", res.MatchedCount),
		zap.Int64("modified", res.ModifiedCount))
	return res.ModifiedCount, nil
}

// Aggregate runs an aggregation pipeline
func (s *MongoDocumentStore) Aggregate(ctx context.Context, collection string, pipeline []bson.M) (Cursor, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.db.Collection(collection).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	})
	if err != nil {
		s.log.Error("Aggregate failed", zap.String("collection", collection), zap.Error(err))
		return nil, classify(err, "aggregate "+collection)
	}
	return result.(*mongo.Cursor), nil
}

// CountDocuments counts matching documents
func (s *MongoDocumentStore) CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
		return s.db.Collection(collection).CountDocuments(ctx, nonNil(filter))
	})
	if err != nil {
		return 0, classify(err, "count "+collection)
	}
	return result.(int64), nil
}

func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

// classify tags connection-level failures as ErrStoreUnavailable so the
// pipeline can tell them from per-document errors
func classify(err error, op string) error {
	if errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
