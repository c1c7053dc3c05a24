// Package headless drives the query form with chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
	"github.com/JakeFAU/flare-crawler/internal/navigator"
)

// Factory launches one Chrome session per crawl run.
type Factory struct {
	cfg    navigator.Config
	logger *zap.Logger
}

var _ crawler.NavigatorFactory = (*Factory)(nil)

// NewFactory validates cfg and returns a chromedp-backed factory.
func NewFactory(cfg navigator.Config, logger *zap.Logger) (*Factory, error) {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger.Named("chromedp")}, nil
}

// Open starts a browser. The session is torn down when ctx is canceled or
// Close is called, whichever comes first.
func (f *Factory) Open(ctx context.Context) (crawler.Navigator, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if f.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), f.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(f.cfg)...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	nav := &Navigator{
		cfg:         f.cfg,
		logger:      f.logger,
		browserCtx:  browserCtx,
		allocCancel: allocCancel,
	}
	nav.cancel = browserCancel
	nav.stopWatch = context.AfterFunc(ctx, func() { _ = nav.Close() })

	start := chromedp.Tasks{}
	if f.cfg.UserAgent != "" {
		start = append(start, emulation.SetUserAgentOverride(f.cfg.UserAgent))
	}
	if err := chromedp.Run(browserCtx, start); err != nil {
		_ = nav.Close()
		return nil, &crawler.NavigationError{Op: "start browser", Err: err}
	}
	f.logger.Debug("browser session started")
	return nav, nil
}

func allocatorOptions(cfg navigator.Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Navigator is a single chromedp browser session.
type Navigator struct {
	cfg         navigator.Config
	logger      *zap.Logger
	browserCtx  context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	stopWatch   func() bool
	closeOnce   sync.Once
	closeErr    error
}

var _ crawler.Navigator = (*Navigator)(nil)

// InitiateSearch loads the form, clicks search and waits for the results.
func (n *Navigator) InitiateSearch(ctx context.Context) error {
	err := n.run(ctx, func(taskCtx context.Context) error {
		return chromedp.Run(taskCtx,
			chromedp.Navigate(n.cfg.URL),
			chromedp.WaitVisible(n.cfg.SearchSelector, chromedp.ByQuery),
			chromedp.Click(n.cfg.SearchSelector, chromedp.ByQuery),
			chromedp.WaitReady(n.cfg.ResultsSelector, chromedp.ByQuery),
		)
	})
	if err != nil {
		return &crawler.NavigationError{Op: "initiate search", Err: err}
	}
	if err := navigator.Sleep(ctx, n.cfg.SettleDelay); err != nil {
		return &crawler.NavigationError{Op: "initiate search", Err: err}
	}
	return nil
}

// CurrentPageHTML returns the results container's inner markup.
func (n *Navigator) CurrentPageHTML(ctx context.Context) (string, error) {
	var html string
	err := n.run(ctx, func(taskCtx context.Context) error {
		var readErr error
		html, readErr = n.readResults(taskCtx)
		return readErr
	})
	if err != nil {
		return "", &crawler.NavigationError{Op: "read results", Err: err}
	}
	return html, nil
}

// AdvancePage clicks the enabled next control. It reports false without
// error when no such control exists.
func (n *Navigator) AdvancePage(ctx context.Context) (bool, error) {
	advanced := false
	err := n.run(ctx, func(taskCtx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Run(taskCtx,
			chromedp.Nodes(n.cfg.NextSelector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
		); err != nil {
			return fmt.Errorf("find next control: %w", err)
		}
		if len(nodes) == 0 {
			return nil
		}
		before, err := n.readResults(taskCtx)
		if err != nil {
			return err
		}
		if err := chromedp.Run(taskCtx, chromedp.MouseClickNode(nodes[0])); err != nil {
			return fmt.Errorf("click next: %w", err)
		}
		if _, err := navigator.WaitForChange(taskCtx, n.cfg.PollInterval, before, n.readResults); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	if err != nil {
		return false, &crawler.NavigationError{Op: "advance page", Err: err}
	}
	if !advanced {
		return false, nil
	}
	if err := navigator.Sleep(ctx, n.cfg.SettleDelay); err != nil {
		return false, &crawler.NavigationError{Op: "advance page", Err: err}
	}
	return true, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (n *Navigator) Close() error {
	n.closeOnce.Do(func() {
		if n.stopWatch != nil {
			n.stopWatch()
		}
		var err error
		if n.browserCtx.Err() == nil {
			err = chromedp.Cancel(n.browserCtx)
		}
		n.shutdown()
		if err != nil && !errors.Is(err, context.Canceled) {
			n.closeErr = fmt.Errorf("close browser: %w", err)
		}
	})
	return n.closeErr
}

func (n *Navigator) shutdown() {
	n.cancel()
	n.allocCancel()
}

func (n *Navigator) readResults(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.InnerHTML(n.cfg.ResultsSelector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read results: %w", err)
	}
	return html, nil
}

// run executes fn under the navigation timeout, canceling it early if the
// caller's ctx ends.
func (n *Navigator) run(ctx context.Context, fn func(context.Context) error) error {
	taskCtx, cancel := context.WithTimeout(n.browserCtx, n.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return fn(taskCtx)
}
