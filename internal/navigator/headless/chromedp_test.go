package headless

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
	"github.com/JakeFAU/flare-crawler/internal/navigator"
)

// pagedForm imitates the PrimeFaces form: the search button reveals the
// table and the next link swaps its body until the last page.
const pagedForm = `<!doctype html>
<html><body>
<form id="pbqueryForm">
  <button id="pbqueryForm:searchExceptions" type="button" onclick="search()">Search</button>
</form>
<div id="results"></div>
<script>
var page = 0;
function render() {
  var next = page < 2
    ? '<a class="ui-paginator-next" href="#" onclick="advance();return false;">next</a>'
    : '<a class="ui-paginator-next ui-state-disabled">next</a>';
  document.getElementById('results').innerHTML =
    '<div id="pbqueryForm:pQueryTable"><table><tbody><tr class="ui-widget-content"><td>page ' + page + '</td></tr></tbody></table></div>' + next;
}
function search() { page = 1; setTimeout(render, 50); }
function advance() { page++; setTimeout(render, 50); }
</script>
</body></html>`

func chromeAvailable() bool {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func TestNavigatorPagesThroughResults(t *testing.T) {
	if testing.Short() || !chromeAvailable() {
		t.Skip("chrome not available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pagedForm))
	}))
	defer srv.Close()

	factory, err := NewFactory(navigator.Config{
		URL:          srv.URL,
		Timeout:      10 * time.Second,
		PollInterval: 20 * time.Millisecond,
		Headless:     true,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	nav, err := factory.Open(ctx)
	require.NoError(t, err)
	defer func() { require.NoError(t, nav.Close()) }()

	require.NoError(t, nav.InitiateSearch(ctx))
	first, err := nav.CurrentPageHTML(ctx)
	require.NoError(t, err)
	require.Contains(t, first, "page 1")

	ok, err := nav.AdvancePage(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	second, err := nav.CurrentPageHTML(ctx)
	require.NoError(t, err)
	require.Contains(t, second, "page 2")

	ok, err = nav.AdvancePage(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNavigatorSearchTimeout(t *testing.T) {
	if testing.Short() || !chromeAvailable() {
		t.Skip("chrome not available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))
	defer srv.Close()

	factory, err := NewFactory(navigator.Config{URL: srv.URL, Timeout: 500 * time.Millisecond, Headless: true}, nil)
	require.NoError(t, err)

	nav, err := factory.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = nav.Close() }()

	err = nav.InitiateSearch(context.Background())
	var navErr *crawler.NavigationError
	require.ErrorAs(t, err, &navErr)
	require.Equal(t, "initiate search", navErr.Op)
}

func TestRunStopsWhenCallerCancels(t *testing.T) {
	t.Parallel()

	n := &Navigator{browserCtx: context.Background(), cfg: navigator.Config{Timeout: time.Minute}}
	parent, cancel := context.WithCancel(context.Background())
	err := n.run(parent, func(ctx context.Context) error {
		cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunAppliesTimeout(t *testing.T) {
	t.Parallel()

	n := &Navigator{browserCtx: context.Background(), cfg: navigator.Config{Timeout: 20 * time.Millisecond}}
	err := n.run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAllocatorOptionsHeadlessToggle(t *testing.T) {
	t.Parallel()

	base := len(allocatorOptions(navigator.Config{Headless: true}))
	withUA := len(allocatorOptions(navigator.Config{Headless: true, UserAgent: "flare-crawler"}))
	require.Equal(t, base+1, withUA)
}
