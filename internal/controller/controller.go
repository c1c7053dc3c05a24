// Package controller owns the crawl run: it starts and stops the single
// background pagination loop and reports its progress.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
	"github.com/JakeFAU/flare-crawler/internal/metrics"
	"github.com/JakeFAU/flare-crawler/internal/policy/ratelimit"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("controller closed")

const defaultNotifyTimeout = 10 * time.Second

// Extractor turns a results page into raw rows.
type Extractor interface {
	Extract(html string) ([]crawler.RawRecord, error)
}

// RowIngester normalizes, reconciles and stores one raw row. Rejected rows
// are reported as *crawler.ValidationError.
type RowIngester interface {
	IngestRaw(ctx context.Context, raw crawler.RawRecord) (crawler.Flare, error)
}

// CacheResetter is implemented by row ingesters that cache entity ids. The
// cache is reset before every run.
type CacheResetter interface {
	ResetCache()
}

// Config tunes the pagination loop.
type Config struct {
	// PageInterval is the minimum time between page advances. Zero disables
	// pacing.
	PageInterval time.Duration
	// MaxPages ends a run normally after this many pages. Zero means no limit.
	MaxPages      int
	NotifyTimeout time.Duration
}

// Dependencies are the collaborators driven by the loop. Archiver and
// Notifier are optional.
type Dependencies struct {
	Navigators crawler.NavigatorFactory
	Extractor  Extractor
	Rows       RowIngester
	Archiver   crawler.PageArchiver
	Notifier   crawler.RunNotifier
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
	Logger     *zap.Logger
}

// Controller runs at most one crawl at a time.
type Controller struct {
	cfg  Config
	deps Dependencies
	log  *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	running    bool
	active     *Run
	closed     bool
	runID      string
	rows       int64
	skipped    int64
	pages      int64
	startedAt  *time.Time
	finishedAt *time.Time
	lastErr    string
}

// Run is the handle for one background crawl.
type Run struct {
	ID   string
	done chan struct{}
	err  error
}

// Done is closed once the run's loop has exited and its browser session
// has been released.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err reports the fatal error that ended the run, or nil. It is only
// meaningful after Done is closed.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// New validates deps and returns an idle Controller.
func New(cfg Config, deps Dependencies) (*Controller, error) {
	switch {
	case deps.Navigators == nil:
		return nil, fmt.Errorf("navigator factory is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Rows == nil:
		return nil, fmt.Errorf("row ingester is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("max pages must be >= 0")
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.Named("controller"),
		baseCtx: ctx,
		cancel:  cancel,
	}, nil
}

// Start begins a run on its own goroutine and returns immediately. It fails
// with crawler.ErrAlreadyRunning while a run is active, including a stopped
// run that has not yet reached its next checkpoint.
func (c *Controller) Start() (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.running || c.active != nil {
		return nil, crawler.ErrAlreadyRunning
	}
	id, err := c.deps.IDs.NewID()
	if err != nil {
		return nil, err
	}
	now := c.deps.Clock.Now()

	run := &Run{ID: id, done: make(chan struct{})}
	c.running = true
	c.active = run
	c.runID = id
	c.rows, c.skipped, c.pages = 0, 0, 0
	c.startedAt = &now
	c.finishedAt = nil
	c.lastErr = ""

	metrics.IncActiveRuns()
	go c.execute(run)
	return run, nil
}

// Stop asks the active run to halt at its next row or page checkpoint. It
// does not wait; use Wait for that.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return crawler.ErrNotRunning
	}
	c.running = false
	c.log.Info("stop requested", zap.String("run_id", c.runID))
	return nil
}

// Progress returns a snapshot of the current or most recent run.
func (c *Controller) Progress() crawler.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return crawler.Progress{
		IsRunning:   c.running,
		RowsScraped: c.rows,
		RowsSkipped: c.skipped,
		Pages:       c.pages,
		RunID:       c.runID,
		StartedAt:   copyTime(c.startedAt),
		FinishedAt:  copyTime(c.finishedAt),
		LastError:   c.lastErr,
	}
}

// Wait blocks until the active run, if any, has exited.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	run := c.active
	c.mu.Unlock()
	if run == nil {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for run %s: %w", run.ID, ctx.Err())
	}
}

// Close stops any active run and waits for it. When ctx expires first, the
// run's in-flight browser and storage calls are canceled.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.Stop(); err != nil && !errors.Is(err, crawler.ErrNotRunning) {
		return err
	}
	err := c.Wait(ctx)
	c.cancel()
	return err
}

func (c *Controller) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) addRow() {
	c.mu.Lock()
	c.rows++
	c.mu.Unlock()
	metrics.ObserveRow(metrics.RowIngested)
}

func (c *Controller) addSkipped() {
	c.mu.Lock()
	c.skipped++
	c.mu.Unlock()
	metrics.ObserveRow(metrics.RowSkipped)
}

func (c *Controller) addPage() {
	c.mu.Lock()
	c.pages++
	c.mu.Unlock()
	metrics.ObservePage()
}

func (c *Controller) execute(run *Run) {
	defer close(run.done)
	defer metrics.DecActiveRuns()

	log := c.log.With(zap.String("run_id", run.ID))
	log.Info("crawl run started")
	if r, ok := c.deps.Rows.(CacheResetter); ok {
		r.ResetCache()
	}

	err := c.crawl(c.baseCtx, run.ID, log)
	run.err = err

	summary := c.finish(run, err)
	metrics.ObserveRun(string(summary.Outcome), summary.Duration)

	fields := []zap.Field{
		zap.String("outcome", string(summary.Outcome)),
		zap.Int64("rows_scraped", summary.RowsScraped),
		zap.Int64("rows_skipped", summary.RowsSkipped),
		zap.Int64("pages", summary.Pages),
		zap.Duration("duration", summary.Duration),
	}
	if err != nil {
		log.Error("crawl run failed", append(fields, zap.Error(err))...)
	} else {
		log.Info("crawl run finished", fields...)
	}
	c.notify(summary, log)
}

// finish clears the run state and builds the summary. A run whose flag was
// already cleared without an error was stopped.
func (c *Controller) finish(run *Run, err error) crawler.RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := crawler.OutcomeCompleted
	switch {
	case err != nil:
		outcome = crawler.OutcomeFailed
		c.lastErr = err.Error()
	case !c.running:
		outcome = crawler.OutcomeStopped
	}
	now := c.deps.Clock.Now()
	c.running = false
	c.active = nil
	c.finishedAt = &now

	summary := crawler.RunSummary{
		RunID:       run.ID,
		Outcome:     outcome,
		RowsScraped: c.rows,
		RowsSkipped: c.skipped,
		Pages:       c.pages,
		FinishedAt:  now,
		Error:       c.lastErr,
	}
	if c.startedAt != nil {
		summary.StartedAt = *c.startedAt
		summary.Duration = now.Sub(*c.startedAt)
	}
	return summary
}

func (c *Controller) notify(summary crawler.RunSummary, log *zap.Logger) {
	if c.deps.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.NotifyTimeout)
	defer cancel()
	if err := c.deps.Notifier.NotifyRun(ctx, summary); err != nil {
		log.Warn("run notification failed", zap.Error(err))
	}
}

// crawl is the pagination loop. The running flag is checked before every
// row and before every page advance.
func (c *Controller) crawl(ctx context.Context, runID string, log *zap.Logger) error {
	nav, err := c.deps.Navigators.Open(ctx)
	if err != nil {
		return asNavigation("open browser", err)
	}
	defer func() {
		if cerr := nav.Close(); cerr != nil {
			log.Warn("close browser", zap.Error(cerr))
		}
	}()

	if err := nav.InitiateSearch(ctx); err != nil {
		return asNavigation("initiate search", err)
	}

	limiter := ratelimit.New(ratelimit.Config{Interval: c.cfg.PageInterval})

	for page := 1; c.isRunning(); page++ {
		html, err := nav.CurrentPageHTML(ctx)
		if err != nil {
			return asNavigation("read results", err)
		}
		c.addPage()
		pageLog := log.With(zap.Int("page", page))
		c.archive(ctx, runID, page, html, pageLog)

		if err := c.processPage(ctx, html, pageLog); err != nil {
			return err
		}
		if !c.isRunning() {
			return nil
		}
		if c.cfg.MaxPages > 0 && page >= c.cfg.MaxPages {
			pageLog.Info("page limit reached", zap.Int("max_pages", c.cfg.MaxPages))
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return asNavigation("advance page", err)
		}
		more, err := nav.AdvancePage(ctx)
		if err != nil {
			return asNavigation("advance page", err)
		}
		if !more {
			pageLog.Debug("no further pages")
			return nil
		}
	}
	return nil
}

func (c *Controller) processPage(ctx context.Context, html string, log *zap.Logger) error {
	raws, err := c.deps.Extractor.Extract(html)
	if err != nil {
		log.Warn("unparsable results page", zap.Error(err))
		return nil
	}
	log.Debug("extracted rows", zap.Int("rows", len(raws)))

	for i, raw := range raws {
		if !c.isRunning() {
			return nil
		}
		if err := c.processRow(ctx, raw); err != nil {
			if crawler.IsValidation(err) {
				c.addSkipped()
				log.Warn("skipping row",
					zap.Int("row", i),
					zap.String("exception_number", raw[crawler.FieldExceptionNumber]),
					zap.Error(err))
				continue
			}
			metrics.ObserveRow(metrics.RowFailed)
			return err
		}
		c.addRow()
	}
	return nil
}

func (c *Controller) processRow(ctx context.Context, raw crawler.RawRecord) error {
	if _, err := c.deps.Rows.IngestRaw(ctx, raw); err != nil {
		if crawler.IsValidation(err) {
			return err
		}
		return asPersistence("ingest row", err)
	}
	return nil
}

func (c *Controller) archive(ctx context.Context, runID string, page int, html string, log *zap.Logger) {
	if c.deps.Archiver == nil {
		return
	}
	uri, err := c.deps.Archiver.ArchivePage(ctx, runID, page, html)
	if err != nil {
		log.Warn("archive page", zap.Error(err))
		return
	}
	log.Debug("archived page", zap.String("uri", uri))
}

func asNavigation(op string, err error) error {
	var navErr *crawler.NavigationError
	if errors.As(err, &navErr) {
		return err
	}
	return &crawler.NavigationError{Op: op, Err: err}
}

func asPersistence(op string, err error) error {
	var perr *crawler.PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &crawler.PersistenceError{Op: op, Err: err}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
