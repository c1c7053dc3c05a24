package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// NormalizeFunc validates and types one raw row.
type NormalizeFunc func(raw crawler.RawRecord) (crawler.Record, error)

// Pipeline runs normalize, resolve and insert for one row at a time. Rows
// are serialized so entities created by one row are visible to the next,
// whether they come from a crawl run or the manual ingest endpoint.
type Pipeline struct {
	mu         sync.Mutex
	normalize  NormalizeFunc
	reconciler *Reconciler
	ingestor   *Ingestor
}

// NewPipeline wires the three row stages.
func NewPipeline(normalize NormalizeFunc, reconciler *Reconciler, ingestor *Ingestor) (*Pipeline, error) {
	switch {
	case normalize == nil:
		return nil, fmt.Errorf("normalizer is required")
	case reconciler == nil:
		return nil, fmt.Errorf("reconciler is required")
	case ingestor == nil:
		return nil, fmt.Errorf("ingestor is required")
	}
	return &Pipeline{normalize: normalize, reconciler: reconciler, ingestor: ingestor}, nil
}

// IngestRaw stores one raw row. It returns *crawler.ValidationError when the
// row is rejected and *crawler.PersistenceError when storage fails; nothing
// is written for a rejected row.
func (p *Pipeline) IngestRaw(ctx context.Context, raw crawler.RawRecord) (crawler.Flare, error) {
	rec, err := p.normalize(raw)
	if err != nil {
		return crawler.Flare{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	refs, err := p.reconciler.Resolve(ctx, rec)
	if err != nil {
		return crawler.Flare{}, err
	}
	id, err := p.ingestor.Ingest(ctx, rec, refs)
	if err != nil {
		return crawler.Flare{}, err
	}
	return crawler.Flare{ID: id, Record: rec, LocationID: refs.LocationID, OperatorID: refs.OperatorID}, nil
}

// ResetCache drops the reconciler's cached entity ids. The controller calls
// it at the start of every run, so ids are re-read after the tables have been
// migrated or truncated between runs.
func (p *Pipeline) ResetCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconciler.purge()
}
