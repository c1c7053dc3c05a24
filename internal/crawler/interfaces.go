package crawler

import (
	"context"
	"time"
)

// Navigator drives the remote query UI for a single exclusive browser session.
type Navigator interface {
	// InitiateSearch opens the query page and submits the search that
	// produces the first results page.
	InitiateSearch(ctx context.Context) error
	// CurrentPageHTML returns the rendered results-table markup. It has no
	// side effects and may be called repeatedly.
	CurrentPageHTML(ctx context.Context) (string, error)
	// AdvancePage moves to the next results page. It returns false, without
	// side effects, when no enabled next-page control exists.
	AdvancePage(ctx context.Context) (bool, error)
	// Close releases the browser session.
	Close() error
}

// NavigatorFactory acquires one Navigator per run.
type NavigatorFactory interface {
	Open(ctx context.Context) (Navigator, error)
}

// EntityStore resolves and creates Locations and Operators by unique name.
// Find methods return ErrNotFound when no row matches.
type EntityStore interface {
	FindLocationByName(ctx context.Context, name string) (Location, error)
	InsertLocation(ctx context.Context, loc Location) (int64, error)
	FindOperatorByName(ctx context.Context, name string) (Operator, error)
	InsertOperator(ctx context.Context, op Operator) (int64, error)
}

// FlareStore inserts and lists Flare rows.
type FlareStore interface {
	InsertFlare(ctx context.Context, flare Flare) (int64, error)
	ListFlares(ctx context.Context, limit, offset int) ([]Flare, error)
}

// Store is the full persistence contract consumed by the service.
type Store interface {
	EntityStore
	FlareStore
	Ping(ctx context.Context) error
	Close()
}

// PageArchiver keeps a copy of each results page's raw markup.
type PageArchiver interface {
	ArchivePage(ctx context.Context, runID string, page int, html string) (string, error)
}

// RunNotifier is told about every run once it exits.
type RunNotifier interface {
	NotifyRun(ctx context.Context, summary RunSummary) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
