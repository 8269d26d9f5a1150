package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// ReferenceRepository reads the eventTickets and packages collections.
// It never writes to them.
type ReferenceRepository struct {
	store                  DocumentStore
	eventTicketsCollection string
	packagesCollection     string
}

// NewReferenceRepository creates a reference repository
func NewReferenceRepository(store DocumentStore, eventTicketsCollection, packagesCollection string) *ReferenceRepository {
	return &ReferenceRepository{
		store:                  store,
		eventTicketsCollection: eventTicketsCollection,
		packagesCollection:     packagesCollection,
	}
}

// Load reads both reference collections concurrently
func (r *ReferenceRepository) Load(ctx context.Context) (*domain.ReferenceSet, error) {
	var (
		defs          []*domain.EventTicketDefinition
		pkgs          []*domain.Package
		badDefs, badP int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cursor, err := r.store.Find(gctx, r.eventTicketsCollection, bson.M{}, nil)
		if err != nil {
			return fmt.Errorf("failed to load event tickets: %w", err)
		}
		return ForEach(gctx, cursor, func(doc bson.M) error {
			if def, ok := domain.ParseEventTicketDefinition(doc); ok {
				defs = append(defs, def)
			} else {
				badDefs++
			}
			return nil
		})
	})
	g.Go(func() error {
		cursor, err := r.store.Find(gctx, r.packagesCollection, bson.M{}, nil)
		if err != nil {
			return fmt.Errorf("failed to load packages: %w", err)
		}
		return ForEach(gctx, cursor, func(doc bson.M) error {
			if pkg, ok := domain.ParsePackage(doc); ok {
				pkgs = append(pkgs, pkg)
			} else {
				badP++
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := domain.NewReferenceSet(defs, pkgs)
	set.Malformed = badDefs + badP
	return set, nil
}

