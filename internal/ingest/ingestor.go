package ingest

import (
	"context"
	"fmt"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// Ingestor appends Flare rows. It never updates or upserts, so re-running a
// crawl after a partial failure inserts previously ingested rows again.
type Ingestor struct {
	store crawler.FlareStore
}

// NewIngestor wraps store.
func NewIngestor(store crawler.FlareStore) (*Ingestor, error) {
	if store == nil {
		return nil, fmt.Errorf("flare store is required")
	}
	return &Ingestor{store: store}, nil
}

// Ingest inserts one Flare built from rec and refs. A storage failure is
// returned as *crawler.PersistenceError.
func (i *Ingestor) Ingest(ctx context.Context, rec crawler.Record, refs crawler.References) (int64, error) {
	id, err := i.store.InsertFlare(ctx, crawler.Flare{
		Record:     rec,
		LocationID: refs.LocationID,
		OperatorID: refs.OperatorID,
	})
	if err != nil {
		return 0, &crawler.PersistenceError{Op: "insert flare", Err: err}
	}
	return id, nil
}
