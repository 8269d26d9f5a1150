package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// PaymentRecordRepository reads imported provider payments
type PaymentRecordRepository struct {
	store      DocumentStore
	collection string
}

// NewPaymentRecordRepository creates a payment record repository
func NewPaymentRecordRepository(store DocumentStore, collection string) *PaymentRecordRepository {
	return &PaymentRecordRepository{store: store, collection: collection}
}

// unmatchedFilter selects payments no invoice was created or declined for
var unmatchedFilter = bson.M{
	"$and": bson.A{
		bson.M{"invoiceCreated": bson.M{"$ne": true}},
		bson.M{"invoiceDeclined": bson.M{"$ne": true}},
	},
}

// StreamUnmatched calls fn for every payment without an invoice, oldest first.
// Records without a payment id are skipped and counted.
func (r *PaymentRecordRepository) StreamUnmatched(ctx context.Context, fn func(p *domain.Payment) error) (skipped int, err error) {
	cursor, err := r.store.Find(ctx, r.collection, unmatchedFilter, &FindOptions{
		Sort: bson.D{{Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return 0, err
	}
	err = ForEach(ctx, cursor, func(doc bson.M) error {
		p, ok := domain.ParsePaymentRecord(doc)
		if !ok {
			skipped++
			return nil
		}
		return fn(p)
	})
	return skipped, err
}
