package repository

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// RegistrationRepository reads and updates registration documents
type RegistrationRepository struct {
	store      DocumentStore
	collection string
	batchSize  int32
}

// NewRegistrationRepository creates a registration repository
func NewRegistrationRepository(store DocumentStore, collection string, batchSize int32) *RegistrationRepository {
	return &RegistrationRepository{
		store:      store,
		collection: collection,
		batchSize:  batchSize,
	}
}

// Collection returns the collection name
func (r *RegistrationRepository) Collection() string {
	return r.collection
}

// Stream calls fn for each registration matching filter, in cursor order
func (r *RegistrationRepository) Stream(ctx context.Context, filter bson.M, fn func(doc bson.M) error) error {
	cursor, err := r.store.Find(ctx, r.collection, filter, &FindOptions{BatchSize: r.batchSize})
	if err != nil {
		return err
	}
	return ForEach(ctx, cursor, fn)
}

// Count counts registrations matching filter
func (r *RegistrationRepository) Count(ctx context.Context, filter bson.M) (int64, error) {
	return r.store.CountDocuments(ctx, r.collection, filter)
}

// FindOne returns the first registration matching filter
func (r *RegistrationRepository) FindOne(ctx context.Context, filter bson.M) (bson.M, bool, error) {
	return r.store.FindOne(ctx, r.collection, filter)
}

// Aggregate runs a pipeline over registrations
func (r *RegistrationRepository) Aggregate(ctx context.Context, pipeline []bson.M) (Cursor, error) {
	return r.store.Aggregate(ctx, r.collection, pipeline)
}

// Lookup resolves an id that may be an ObjectID hex, a registrationId or a
// confirmation number
func (r *RegistrationRepository) Lookup(ctx context.Context, id string) (domain.LookupResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Malformed("empty registration id"), nil
	}

	alternatives := bson.A{
		bson.M{"registrationId": id},
		bson.M{"registration_id": id},
		bson.M{"confirmationNumber": id},
		bson.M{"confirmation_number": id},
	}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		alternatives = append(bson.A{bson.M{"_id": oid}}, alternatives...)
	}
	alternatives = append(alternatives, bson.M{"_id": id})

	doc, found, err := r.store.FindOne(ctx, r.collection, bson.M{"$or": alternatives})
	if err != nil {
		return domain.LookupResult{}, fmt.Errorf("failed to look up registration %s: %w", id, err)
	}
	if !found {
		return domain.NotFound(), nil
	}
	return domain.FoundDocument(doc), nil
}

// Update applies a field-level update to one registration by _id
func (r *RegistrationRepository) Update(ctx context.Context, id interface{}, update Update) (int64, error) {
	if update.IsEmpty() {
		return 0, nil
	}
	return r.store.UpdateOne(ctx, r.collection, bson.M{"_id": id}, update)
}
