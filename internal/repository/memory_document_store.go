package repository

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// MemoryDocumentStore implements DocumentStore in memory. It supports the
// filter and aggregation subset the pipeline uses and is meant for tests
// and dry runs against exported data.
type MemoryDocumentStore struct {
	collections map[string][]bson.M
	updateErr   error
	updates     int
	mu          sync.RWMutex
}

// NewMemoryDocumentStore creates an empty store
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		collections: make(map[string][]bson.M),
	}
}

// Insert adds documents, assigning an ObjectID when _id is missing
func (s *MemoryDocumentStore) Insert(collection string, docs ...bson.M) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		clone := domain.CloneDocument(doc)
		if _, ok := clone["_id"]; !ok {
			clone["_id"] = primitive.NewObjectID()
		}
		s.collections[collection] = append(s.collections[collection], clone)
	}
}

// All returns copies of every document in a collection
func (s *MemoryDocumentStore) All(collection string) []bson.M {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]bson.M, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		out = append(out, domain.CloneDocument(doc))
	}
	return out
}

// FailUpdates makes every UpdateOne fail with err until called with nil
func (s *MemoryDocumentStore) FailUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

// UpdateCount returns how many UpdateOne calls modified a document
func (s *MemoryDocumentStore) UpdateCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// Find streams matching documents
func (s *MemoryDocumentStore) Find(ctx context.Context, collection string, filter bson.M, opts *FindOptions) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var docs []bson.M
	for _, doc := range s.collections[collection] {
		ok, err := matchDocument(doc, filter)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if ok {
			docs = append(docs, domain.CloneDocument(doc))
		}
	}
	s.mu.RUnlock()

	if opts != nil {
		if len(opts.Sort) > 0 {
			sortDocuments(docs, opts.Sort)
		}
		if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
			docs = docs[:opts.Limit]
		}
	}
	return newSliceCursor(docs), nil
}

// FindOne returns the first match
func (s *MemoryDocumentStore) FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.collections[collection] {
		ok, err := matchDocument(doc, filter)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return domain.CloneDocument(doc), true, nil
		}
	}
	return nil, false, nil
}

// UpdateOne applies the update to the first match. The document is replaced
// only after the whole update applied cleanly.
func (s *MemoryDocumentStore) UpdateOne(ctx context.Context, collection string, filter bson.M, update Update) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return 0, s.updateErr
	}

	docs := s.collections[collection]
	for i, doc := range docs {
		ok, err := matchDocument(doc, filter)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		next := domain.CloneDocument(doc)
		if err := applyUpdate(next, update); err != nil {
			return 0, err
		}
		if reflect.DeepEqual(normalizeValue(doc), normalizeValue(next)) {
			return 0, nil
		}
		docs[i] = next
		s.updates++
		return 1, nil
	}
	return 0, nil
}

// Aggregate runs $match, $unwind, $group, $sort, $limit and $count stages
func (s *MemoryDocumentStore) Aggregate(ctx context.Context, collection string, pipeline []bson.M) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := make([]bson.M, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		docs = append(docs, domain.CloneDocument(doc))
	}
	s.mu.RUnlock()

	var err error
	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("aggregation stage must have exactly one operator: %v", stage)
		}
		for op, spec := range stage {
			docs, err = runStage(op, spec, docs)
			if err != nil {
				return nil, err
			}
		}
	}
	return newSliceCursor(docs), nil
}

// CountDocuments counts matching documents
func (s *MemoryDocumentStore) CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, doc := range s.collections[collection] {
		ok, err := matchDocument(doc, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// sliceCursor iterates over an in-memory result set
type sliceCursor struct {
	docs []bson.M
	pos  int
	cur  bson.M
}

func newSliceCursor(docs []bson.M) *sliceCursor {
	return &sliceCursor{docs: docs, pos: -1}
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.pos++
	if c.pos >= len(c.docs) {
		c.cur = nil
		return false
	}
	c.cur = c.docs[c.pos]
	return true
}

// Decode copies the current document into a *bson.M directly and into
// anything else through a BSON round trip
func (c *sliceCursor) Decode(v interface{}) error {
	if c.cur == nil {
		return fmt.Errorf("cursor has no current document")
	}
	if m, ok := v.(*bson.M); ok {
		*m = domain.CloneDocument(c.cur)
		return nil
	}
	data, err := bson.Marshal(c.cur)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, v)
}

func (c *sliceCursor) Err() error {
	return nil
}

func (c *sliceCursor) Close(ctx context.Context) error {
	c.docs = nil
	return nil
}

func sortDocuments(docs []bson.M, order bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range order {
			dir := 1
			if n, ok := domain.NumberValue(key.Value); ok && n < 0 {
				dir = -1
			}
			a, _ := firstPathValue(docs[i], key.Key)
			b, _ := firstPathValue(docs[j], key.Key)
			if c := compareValues(a, b); c != 0 {
				return c*dir < 0
			}
		}
		return false
	})
}
