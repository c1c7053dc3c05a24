package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
	"github.com/JakeFAU/flare-crawler/internal/ingest"
	"github.com/JakeFAU/flare-crawler/internal/parser"
	pubmemory "github.com/JakeFAU/flare-crawler/internal/publisher/memory"
	"github.com/JakeFAU/flare-crawler/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

// fakeNavigator serves canned pages. A nil error field means success.
type fakeNavigator struct {
	mu         sync.Mutex
	pages      []string
	current    int
	searchGate chan struct{}
	searchErr  error
	advanceErr error
	closed     int
}

func (n *fakeNavigator) InitiateSearch(ctx context.Context) error {
	if n.searchGate != nil {
		select {
		case <-n.searchGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return n.searchErr
}

func (n *fakeNavigator) CurrentPageHTML(context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pages[n.current], nil
}

func (n *fakeNavigator) AdvancePage(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.advanceErr != nil {
		return false, n.advanceErr
	}
	if n.current+1 >= len(n.pages) {
		return false, nil
	}
	n.current++
	return true, nil
}

func (n *fakeNavigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed++
	return nil
}

func (n *fakeNavigator) closeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

type fakeFactory struct {
	nav *fakeNavigator
	err error
}

func (f *fakeFactory) Open(context.Context) (crawler.Navigator, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.nav, nil
}

// hookRows runs after every successfully stored row.
type hookRows struct {
	next   RowIngester
	after  func(n int)
	count  int
	resets int
}

func (h *hookRows) ResetCache() {
	h.resets++
	if r, ok := h.next.(CacheResetter); ok {
		r.ResetCache()
	}
}

func (h *hookRows) IngestRaw(ctx context.Context, raw crawler.RawRecord) (crawler.Flare, error) {
	flare, err := h.next.IngestRaw(ctx, raw)
	if err != nil {
		return crawler.Flare{}, err
	}
	h.count++
	if h.after != nil {
		h.after(h.count)
	}
	return flare, nil
}

type failingFlares struct{ *memory.Store }

func (failingFlares) InsertFlare(context.Context, crawler.Flare) (int64, error) {
	return 0, errors.New("connection reset")
}

type pageArchive struct {
	mu    sync.Mutex
	pages []int
	err   error
}

func (a *pageArchive) ArchivePage(_ context.Context, _ string, page int, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pages = append(a.pages, page)
	return "mem://page", a.err
}

func row(exception, operator, district string) string {
	cells := []string{"", exception, "01/15/2024", "F-" + exception, "Approved", "Flare",
		"123456", operator, "Smith Lease", "01/16/2024", "", district}
	var b strings.Builder
	b.WriteString(`<tr class="ui-widget-content">`)
	for _, c := range cells {
		b.WriteString("<td>" + c + "</td>")
	}
	b.WriteString("</tr>")
	return b.String()
}

func page(rows ...string) string {
	return `<table><thead><tr><th>Exception</th></tr></thead><tbody>` + strings.Join(rows, "") + `</tbody></table>`
}

// twoPageFixture has three valid rows and one row missing its operator on
// page 1, then two valid rows on page 2, one reusing page 1's first operator.
func twoPageFixture() []string {
	return []string{
		page(
			row("1001", "ACME ENERGY", "08"),
			row("1002", "BETA OIL", "7C"),
			row("1003", "", "08"),
			row("1004", "GAMMA GAS", "01"),
		),
		page(
			row("1005", "ACME ENERGY", "7C"),
			row("1006", "DELTA PETROLEUM", "08"),
		),
	}
}

type harness struct {
	ctrl      *Controller
	nav       *fakeNavigator
	store     *memory.Store
	notifier  *pubmemory.Publisher
	rows      *hookRows
	archiver  *pageArchive
	factory   *fakeFactory
	flareSink crawler.FlareStore
}

func newHarness(t *testing.T, cfg Config, pages []string, mutate func(*harness)) *harness {
	t.Helper()

	h := &harness{
		nav:      &fakeNavigator{pages: pages},
		store:    memory.New(),
		notifier: pubmemory.New(),
		archiver: &pageArchive{},
	}
	h.factory = &fakeFactory{nav: h.nav}
	h.flareSink = h.store
	if mutate != nil {
		mutate(h)
	}

	resolver, err := ingest.NewReconciler(h.store, ingest.ReconcilerConfig{}, nil)
	require.NoError(t, err)
	ing, err := ingest.NewIngestor(h.flareSink)
	require.NoError(t, err)
	pipeline, err := ingest.NewPipeline(parser.Normalize, resolver, ing)
	require.NoError(t, err)
	h.rows = &hookRows{next: pipeline}

	h.ctrl, err = New(cfg, Dependencies{
		Navigators: h.factory,
		Extractor:  parser.NewExtractor(""),
		Rows:       h.rows,
		Archiver:   h.archiver,
		Notifier:   h.notifier,
		Clock:      fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		IDs:        &seqIDs{},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.ctrl.Close(ctx)
	})
	return h
}

func waitRun(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", run.ID)
	}
}

func TestRunIngestsTwoPageFixture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, twoPageFixture(), nil)

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)
	require.NoError(t, run.Err())

	progress := h.ctrl.Progress()
	require.False(t, progress.IsRunning)
	require.Equal(t, int64(5), progress.RowsScraped)
	require.Equal(t, int64(1), progress.RowsSkipped)
	require.Equal(t, int64(2), progress.Pages)
	require.Equal(t, run.ID, progress.RunID)
	require.NotNil(t, progress.FinishedAt)
	require.Empty(t, progress.LastError)

	require.Len(t, h.store.Flares(), 5)
	require.Len(t, h.store.Operators(), 4)
	require.Len(t, h.store.Locations(), 3)
	require.Equal(t, 1, h.nav.closeCount())
	require.Equal(t, []int{1, 2}, h.archiver.pages)

	summaries := h.notifier.Summaries()
	require.Len(t, summaries, 1)
	require.Equal(t, crawler.OutcomeCompleted, summaries[0].Outcome)
	require.Equal(t, int64(5), summaries[0].RowsScraped)
}

func TestSecondStartFailsWhileRunning(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	h := newHarness(t, Config{}, twoPageFixture(), func(h *harness) {
		h.nav.searchGate = gate
	})

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	require.True(t, h.ctrl.Progress().IsRunning)

	_, err = h.ctrl.Start()
	require.ErrorIs(t, err, crawler.ErrAlreadyRunning)

	require.NoError(t, h.ctrl.Stop())
	require.False(t, h.ctrl.Progress().IsRunning)

	// The stopped loop has not drained yet.
	_, err = h.ctrl.Start()
	require.ErrorIs(t, err, crawler.ErrAlreadyRunning)

	close(gate)
	waitRun(t, run)
	require.NoError(t, run.Err())
	require.Zero(t, h.ctrl.Progress().RowsScraped)
	require.Equal(t, 1, h.nav.closeCount())

	summaries := h.notifier.Summaries()
	require.Len(t, summaries, 1)
	require.Equal(t, crawler.OutcomeStopped, summaries[0].Outcome)
}

func TestStopWhenIdleFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, twoPageFixture(), nil)
	require.ErrorIs(t, h.ctrl.Stop(), crawler.ErrNotRunning)

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)
	require.ErrorIs(t, h.ctrl.Stop(), crawler.ErrNotRunning)
}

func TestStopMidRunHaltsAtNextRow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, twoPageFixture(), nil)
	h.rows.after = func(n int) {
		if n == 2 {
			_ = h.ctrl.Stop()
		}
	}

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)
	require.NoError(t, run.Err())

	progress := h.ctrl.Progress()
	require.False(t, progress.IsRunning)
	require.Equal(t, int64(2), progress.RowsScraped)
	require.Len(t, h.store.Flares(), 2)
	require.Equal(t, int64(1), progress.Pages)
	require.Equal(t, 1, h.nav.closeCount())
	require.Equal(t, crawler.OutcomeStopped, h.notifier.Summaries()[0].Outcome)
}

func TestRestartAfterCompletionResetsCounters(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, twoPageFixture(), nil)

	first, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, first)

	h.nav.current = 0
	second, err := h.ctrl.Start()
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	waitRun(t, second)

	require.Equal(t, int64(5), h.ctrl.Progress().RowsScraped)
	// Ingestion only appends.
	require.Len(t, h.store.Flares(), 10)
	require.Len(t, h.store.Operators(), 4)
	require.Equal(t, 2, h.rows.resets, "entity cache is reset at the start of each run")
}

func TestPersistenceErrorIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, twoPageFixture(), func(h *harness) {
		h.flareSink = failingFlares{h.store}
	})

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)

	var perr *crawler.PersistenceError
	require.ErrorAs(t, run.Err(), &perr)

	progress := h.ctrl.Progress()
	require.False(t, progress.IsRunning)
	require.Zero(t, progress.RowsScraped)
	require.Contains(t, progress.LastError, "connection reset")
	require.Equal(t, 1, h.nav.closeCount())
	require.Equal(t, crawler.OutcomeFailed, h.notifier.Summaries()[0].Outcome)
}

func TestNavigationErrorIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, twoPageFixture(), func(h *harness) {
		h.nav.advanceErr = errors.New("timeout waiting for results")
	})

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)

	var navErr *crawler.NavigationError
	require.ErrorAs(t, run.Err(), &navErr)
	require.Equal(t, "advance page", navErr.Op)
	require.Equal(t, int64(3), h.ctrl.Progress().RowsScraped)
	require.Equal(t, 1, h.nav.closeCount())
}

func TestSearchFailureReleasesBrowser(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, twoPageFixture(), func(h *harness) {
		h.nav.searchErr = &crawler.NavigationError{Op: "initiate search", Err: context.DeadlineExceeded}
	})

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)
	require.ErrorIs(t, run.Err(), context.DeadlineExceeded)
	require.Equal(t, 1, h.nav.closeCount())
}

func TestOpenFailureEndsRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil, func(h *harness) {
		h.factory.err = errors.New("chrome not found")
	})

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)

	var navErr *crawler.NavigationError
	require.ErrorAs(t, run.Err(), &navErr)
	require.Equal(t, "open browser", navErr.Op)
	require.False(t, h.ctrl.Progress().IsRunning)
}

func TestMaxPagesEndsRunNormally(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MaxPages: 1}, twoPageFixture(), nil)

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)
	require.NoError(t, run.Err())
	require.Equal(t, int64(3), h.ctrl.Progress().RowsScraped)
	require.Equal(t, crawler.OutcomeCompleted, h.notifier.Summaries()[0].Outcome)
}

func TestArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{PageInterval: time.Millisecond}, twoPageFixture(), func(h *harness) {
		h.archiver.err = errors.New("bucket missing")
	})

	run, err := h.ctrl.Start()
	require.NoError(t, err)
	waitRun(t, run)
	require.NoError(t, run.Err())
	require.Equal(t, int64(5), h.ctrl.Progress().RowsScraped)
}

func TestCloseStopsActiveRun(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	h := newHarness(t, Config{}, twoPageFixture(), func(h *harness) {
		h.nav.searchGate = gate
	})

	run, err := h.ctrl.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.ctrl.Close(ctx), context.DeadlineExceeded)

	waitRun(t, run)
	require.Equal(t, 1, h.nav.closeCount())

	_, err = h.ctrl.Start()
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Dependencies{})
	require.Error(t, err)
	_, err = New(Config{MaxPages: -1}, Dependencies{
		Navigators: &fakeFactory{},
		Extractor:  parser.NewExtractor(""),
		Rows:       &hookRows{},
		Clock:      fixedClock{},
		IDs:        &seqIDs{},
	})
	require.Error(t, err)
}
