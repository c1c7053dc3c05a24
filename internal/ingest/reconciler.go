// Package ingest resolves a normalized record's Location and Operator and
// appends it as a Flare row.
package ingest

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

const (
	// DefaultPlaceholderCoordinates is stored for locations whose position
	// is unknown.
	DefaultPlaceholderCoordinates = "0,0"
	defaultCacheSize              = 1024
)

// ReconcilerConfig tunes a Reconciler.
type ReconcilerConfig struct {
	PlaceholderCoordinates string
	CacheSize              int
}

// Reconciler looks up Locations and Operators by exact name and creates them
// on first sighting. Lookup-then-create is not guarded against concurrent
// writers; it relies on the controller running a single sequential loop.
type Reconciler struct {
	store       crawler.EntityStore
	coordinates string
	locations   *lru.Cache[string, int64]
	operators   *lru.Cache[string, int64]
	logger      *zap.Logger
}

// NewReconciler builds a Reconciler over store.
func NewReconciler(store crawler.EntityStore, cfg ReconcilerConfig, logger *zap.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	if cfg.PlaceholderCoordinates == "" {
		cfg.PlaceholderCoordinates = DefaultPlaceholderCoordinates
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	locations, err := lru.New[string, int64](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("location cache: %w", err)
	}
	operators, err := lru.New[string, int64](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("operator cache: %w", err)
	}
	return &Reconciler{
		store:       store,
		coordinates: cfg.PlaceholderCoordinates,
		locations:   locations,
		operators:   operators,
		logger:      logger,
	}, nil
}

// Resolve returns the ids of the record's Location (by district name) and
// Operator (by operator name), creating either if absent. Store failures are
// returned as *crawler.PersistenceError.
func (r *Reconciler) Resolve(ctx context.Context, rec crawler.Record) (crawler.References, error) {
	locID, err := r.resolveLocation(ctx, rec.District)
	if err != nil {
		return crawler.References{}, err
	}
	opID, err := r.resolveOperator(ctx, rec.OperatorName)
	if err != nil {
		return crawler.References{}, err
	}
	return crawler.References{LocationID: locID, OperatorID: opID}, nil
}

func (r *Reconciler) resolveLocation(ctx context.Context, name string) (int64, error) {
	if id, ok := r.locations.Get(name); ok {
		return id, nil
	}
	loc, err := r.store.FindLocationByName(ctx, name)
	switch {
	case err == nil:
		r.locations.Add(name, loc.ID)
		return loc.ID, nil
	case !errors.Is(err, crawler.ErrNotFound):
		return 0, &crawler.PersistenceError{Op: "find location", Err: err}
	}

	id, err := r.store.InsertLocation(ctx, crawler.Location{Name: name, Coordinates: r.coordinates})
	if err != nil {
		return 0, &crawler.PersistenceError{Op: "insert location", Err: err}
	}
	r.logger.Info("created location", zap.String("name", name), zap.Int64("location_id", id))
	r.locations.Add(name, id)
	return id, nil
}

func (r *Reconciler) resolveOperator(ctx context.Context, name string) (int64, error) {
	if id, ok := r.operators.Get(name); ok {
		return id, nil
	}
	op, err := r.store.FindOperatorByName(ctx, name)
	switch {
	case err == nil:
		r.operators.Add(name, op.ID)
		return op.ID, nil
	case !errors.Is(err, crawler.ErrNotFound):
		return 0, &crawler.PersistenceError{Op: "find operator", Err: err}
	}

	id, err := r.store.InsertOperator(ctx, crawler.Operator{Name: name})
	if err != nil {
		return 0, &crawler.PersistenceError{Op: "insert operator", Err: err}
	}
	r.logger.Info("created operator", zap.String("name", name), zap.Int64("operator_id", id))
	r.operators.Add(name, id)
	return id, nil
}

// purge drops cached ids, forcing the next Resolve to consult the store.
func (r *Reconciler) purge() {
	r.locations.Purge()
	r.operators.Purge()
}
