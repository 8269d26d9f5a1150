package service

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
)

const ticketsPath = "registrationData.tickets"

// GroupQuery describes a read-only grouped count
type GroupQuery struct {
	Collection string
	Filter     bson.M
	// Unwind is an array path expanded before grouping
	Unwind string
	// Key is the field path grouped on
	Key string
	// SumField is summed per group when set. Non-numeric and NaN values
	// count as 1, the way stored ticket quantities are read.
	SumField string
	// SkipNonNumeric sums non-numeric values as 0 instead, for money fields
	SkipNonNumeric bool
}

// GroupCount is one row of a grouped report
type GroupCount struct {
	Key   string  `json:"key"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum,omitempty"`
}

// RegistrationSummary counts registrations by type and payment status
type RegistrationSummary struct {
	Total           int64        `json:"total"`
	ByType          []GroupCount `json:"byType"`
	ByPaymentStatus []GroupCount `json:"byPaymentStatus"`
	TicketsByStatus []GroupCount `json:"ticketsByStatus"`
}

// Reporter runs read-only aggregations
type Reporter struct {
	store         repository.DocumentStore
	registrations string
}

// NewReporter creates a reporter over the registrations collection
func NewReporter(store repository.DocumentStore, registrations string) *Reporter {
	return &Reporter{store: store, registrations: registrations}
}

// GroupBy counts documents per key. An empty match returns an empty slice.
func (r *Reporter) GroupBy(ctx context.Context, q GroupQuery) ([]GroupCount, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("group key is required")
	}
	collection := q.Collection
	if collection == "" {
		collection = r.registrations
	}
	filter := q.Filter
	if filter == nil {
		filter = bson.M{}
	}

	pipeline := []bson.M{{"$match": filter}}
	if q.Unwind != "" {
		pipeline = append(pipeline, bson.M{"$unwind": "$" + q.Unwind})
	}
	// Summed values are grouped on as well and coerced here, since $sum
	// skips strings and propagates NaN.
	var id interface{} = "$" + q.Key
	if q.SumField != "" {
		id = bson.M{"key": "$" + q.Key, "value": "$" + q.SumField}
	}
	pipeline = append(pipeline, bson.M{"$group": bson.M{
		"_id":   id,
		"count": bson.M{"$sum": 1},
	}})

	cursor, err := r.store.Aggregate(ctx, collection, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to group by %s: %w", q.Key, err)
	}

	rows := make(map[string]*GroupCount)
	err = repository.ForEach(ctx, cursor, func(doc bson.M) error {
		key, value := doc["_id"], interface{}(nil)
		if q.SumField != "" {
			group, _ := domain.AsDocument(doc["_id"])
			key, value = group["key"], group["value"]
		}

		name := domain.StringValue(key)
		if name == "" {
			name = "(none)"
		}
		gc, ok := rows[name]
		if !ok {
			gc = &GroupCount{Key: name}
			rows[name] = gc
		}

		var n int64
		if f, ok := domain.NumberValue(doc["count"]); ok {
			n = int64(f)
		}
		gc.Count += n
		if q.SumField != "" {
			gc.Sum += sumValue(value, q.SkipNonNumeric) * float64(n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]GroupCount, 0, len(rows))
	for _, name := range sortedKeys(rows) {
		out = append(out, *rows[name])
	}
	return out, nil
}

func sumValue(v interface{}, skipNonNumeric bool) float64 {
	if f, ok := domain.NumberValue(v); ok {
		return f
	}
	if skipNonNumeric {
		return 0
	}
	return float64(QuantityOf(v))
}

// Summary reports registrations by type and payment status plus tickets by
// status
func (r *Reporter) Summary(ctx context.Context, filter bson.M) (*RegistrationSummary, error) {
	if filter == nil {
		filter = bson.M{}
	}
	total, err := r.store.CountDocuments(ctx, r.registrations, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations: %w", err)
	}

	s := &RegistrationSummary{Total: total}
	if s.ByType, err = r.GroupBy(ctx, GroupQuery{Filter: filter, Key: "registrationType", SumField: "totalAmountPaid", SkipNonNumeric: true}); err != nil {
		return nil, err
	}
	if s.ByPaymentStatus, err = r.GroupBy(ctx, GroupQuery{Filter: filter, Key: "paymentStatus"}); err != nil {
		return nil, err
	}
	if s.TicketsByStatus, err = r.GroupBy(ctx, GroupQuery{Filter: filter, Unwind: ticketsPath, Key: ticketsPath + ".status", SumField: ticketsPath + ".quantity"}); err != nil {
		return nil, err
	}
	return s, nil
}

// TicketCounts derives sold, reserved and cancelled counts per event ticket
// from canonical tickets. Every definition appears, with zero counts when
// nothing was sold.
func (r *Reporter) TicketCounts(ctx context.Context, refs *domain.ReferenceSet) ([]domain.ComputedTicketCounts, error) {
	pipeline := []bson.M{
		{"$match": bson.M{ticketsPath: bson.M{"$exists": true}}},
		{"$unwind": "$" + ticketsPath},
		{"$group": bson.M{
			"_id": bson.M{
				"eventTicketId": "$" + ticketsPath + ".eventTicketId",
				"status":        "$" + ticketsPath + ".status",
				"quantity":      "$" + ticketsPath + ".quantity",
				"price":         "$" + ticketsPath + ".price",
			},
			"count": bson.M{"$sum": 1},
		}},
	}
	cursor, err := r.store.Aggregate(ctx, r.registrations, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ticket counts: %w", err)
	}

	counts := make(map[string]*domain.ComputedTicketCounts)
	get := func(id string) *domain.ComputedTicketCounts {
		c, ok := counts[id]
		if !ok {
			c = &domain.ComputedTicketCounts{EventTicketID: id}
			counts[id] = c
		}
		return c
	}
	if refs != nil {
		for id := range refs.Definitions {
			get(id)
		}
	}

	err = repository.ForEach(ctx, cursor, func(doc bson.M) error {
		key, _ := domain.AsDocument(doc["_id"])
		id := domain.StringValue(key["eventTicketId"])
		if id == "" {
			return nil
		}
		occurrences := 1
		if n, ok := domain.NumberValue(doc["count"]); ok {
			occurrences = int(n)
		}
		tickets := QuantityOf(key["quantity"]) * occurrences

		c := get(id)
		status := domain.TicketStatusSold
		if s := domain.StringValue(key["status"]); s != "" {
			status, _ = domain.ParseTicketStatus(s)
		}
		switch status {
		case domain.TicketStatusSold, domain.TicketStatusTransferred:
			c.SoldCount += tickets
			if price, ok := domain.ParseMoney(key["price"]); ok {
				c.Revenue += price * domain.Money(tickets)
			}
		case domain.TicketStatusReserved:
			c.ReservedCount += tickets
		case domain.TicketStatusCancelled:
			c.CancelledCount += tickets
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ComputedTicketCounts, 0, len(counts))
	for _, id := range sortedKeys(counts) {
		c := counts[id]
		if refs != nil {
			if def, ok := refs.Definitions[id]; ok {
				c.Name = def.Name
				c.TotalCapacity = def.TotalCapacity
			}
		}
		c.Finalize()
		out = append(out, *c)
	}
	return out, nil
}

// QuantityOf coerces a stored quantity. Non-numeric and NaN values count as 1.
func QuantityOf(v interface{}) int {
	if q, ok := domain.NumberValue(v); ok {
		return int(q)
	}
	return 1
}
