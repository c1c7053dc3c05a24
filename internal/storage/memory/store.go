// Package memory provides an in-memory flare store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// Store keeps one slice per Postgres table and enforces the unique name
// constraint on locations and operators. Ids are slice positions plus one.
type Store struct {
	mu        sync.RWMutex
	locations []crawler.Location
	operators []crawler.Operator
	flares    []crawler.Flare
}

var _ crawler.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{}
}

// FindLocationByName returns crawler.ErrNotFound when no location matches.
func (s *Store) FindLocationByName(_ context.Context, name string) (crawler.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, loc := range s.locations {
		if loc.Name == name {
			return loc, nil
		}
	}
	return crawler.Location{}, crawler.ErrNotFound
}

// InsertLocation appends a location, rejecting duplicate names.
func (s *Store) InsertLocation(_ context.Context, loc crawler.Location) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.locations {
		if existing.Name == loc.Name {
			return 0, fmt.Errorf("location %q already exists", loc.Name)
		}
	}
	loc.ID = int64(len(s.locations) + 1)
	s.locations = append(s.locations, loc)
	return loc.ID, nil
}

// FindOperatorByName returns crawler.ErrNotFound when no operator matches.
func (s *Store) FindOperatorByName(_ context.Context, name string) (crawler.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, op := range s.operators {
		if op.Name == name {
			return op, nil
		}
	}
	return crawler.Operator{}, crawler.ErrNotFound
}

// InsertOperator appends an operator, rejecting duplicate names.
func (s *Store) InsertOperator(_ context.Context, op crawler.Operator) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.operators {
		if existing.Name == op.Name {
			return 0, fmt.Errorf("operator %q already exists", op.Name)
		}
	}
	op.ID = int64(len(s.operators) + 1)
	s.operators = append(s.operators, op)
	return op.ID, nil
}

// InsertFlare appends a flare row.
func (s *Store) InsertFlare(_ context.Context, flare crawler.Flare) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flare.ID = int64(len(s.flares) + 1)
	s.flares = append(s.flares, flare)
	return flare.ID, nil
}

// ListFlares returns flares newest first.
func (s *Store) ListFlares(_ context.Context, limit, offset int) ([]crawler.Flare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	var out []crawler.Flare
	for i := len(s.flares) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.flares[i])
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// Locations returns a copy of the stored locations.
func (s *Store) Locations() []crawler.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Location(nil), s.locations...)
}

// Operators returns a copy of the stored operators.
func (s *Store) Operators() []crawler.Operator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Operator(nil), s.operators...)
}

// Flares returns a copy of the stored flares in insertion order.
func (s *Store) Flares() []crawler.Flare {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Flare(nil), s.flares...)
}
