// Package memory retains run summaries in memory for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// Publisher stores published run summaries for inspection.
type Publisher struct {
	mu        sync.RWMutex
	summaries []crawler.RunSummary
}

var _ crawler.RunNotifier = (*Publisher)(nil)

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// NotifyRun records the summary.
func (p *Publisher) NotifyRun(_ context.Context, summary crawler.RunSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, summary)
	return nil
}

// Summaries returns a copy of the recorded summaries.
func (p *Publisher) Summaries() []crawler.RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.RunSummary, len(p.summaries))
	copy(out, p.summaries)
	return out
}
