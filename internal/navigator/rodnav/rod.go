// Package rodnav drives the query form with go-rod.
package rodnav

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
	"github.com/JakeFAU/flare-crawler/internal/navigator"
)

// Factory launches (or connects to) one browser per crawl run.
type Factory struct {
	cfg    navigator.Config
	logger *zap.Logger
}

var _ crawler.NavigatorFactory = (*Factory)(nil)

// NewFactory returns a rod-backed factory.
func NewFactory(cfg navigator.Config, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg.WithDefaults(), logger: logger.Named("rod")}, nil
}

// Open connects a browser and opens a blank tab.
func (f *Factory) Open(ctx context.Context) (crawler.Navigator, error) {
	var lnch *launcher.Launcher
	controlURL := f.cfg.RemoteURL
	if controlURL == "" {
		lnch = launcher.New().Headless(f.cfg.Headless).Set("disable-gpu")
		u, err := lnch.Launch()
		if err != nil {
			return nil, &crawler.NavigationError{Op: "launch browser", Err: err}
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		killLauncher(lnch)
		return nil, &crawler.NavigationError{Op: "connect browser", Err: err}
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = browser.Close()
		killLauncher(lnch)
		return nil, &crawler.NavigationError{Op: "open tab", Err: err}
	}
	if f.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.cfg.UserAgent}); err != nil {
			_ = browser.Close()
			killLauncher(lnch)
			return nil, &crawler.NavigationError{Op: "set user agent", Err: err}
		}
	}
	f.logger.Debug("browser session started", zap.String("control_url", controlURL))

	nav := &Navigator{cfg: f.cfg, browser: browser, page: page, launcher: lnch}
	nav.stopWatch = context.AfterFunc(ctx, func() { _ = nav.Close() })
	return nav, nil
}

func killLauncher(l *launcher.Launcher) {
	if l == nil {
		return
	}
	l.Kill()
	l.Cleanup()
}

// Navigator is a single rod browser tab.
type Navigator struct {
	cfg       navigator.Config
	browser   *rod.Browser
	page      *rod.Page
	launcher  *launcher.Launcher
	stopWatch func() bool
	closeOnce sync.Once
	closeErr  error
}

var _ crawler.Navigator = (*Navigator)(nil)

// InitiateSearch loads the form, clicks search and waits for the results.
func (n *Navigator) InitiateSearch(ctx context.Context) error {
	err := n.run(ctx, func(p *rod.Page) error {
		if err := p.Navigate(n.cfg.URL); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		button, err := p.Element(n.cfg.SearchSelector)
		if err != nil {
			return fmt.Errorf("find search button: %w", err)
		}
		if err := button.WaitVisible(); err != nil {
			return fmt.Errorf("wait search button: %w", err)
		}
		if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click search: %w", err)
		}
		if _, err := p.Element(n.cfg.ResultsSelector); err != nil {
			return fmt.Errorf("wait results: %w", err)
		}
		return nil
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
	err := n.run(ctx, func(p *rod.Page) error {
		var readErr error
		html, readErr = readResults(p, n.cfg.ResultsSelector)
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
	err := n.run(ctx, func(p *rod.Page) error {
		has, next, err := p.Has(n.cfg.NextSelector)
		if err != nil {
			return fmt.Errorf("find next control: %w", err)
		}
		if !has {
			return nil
		}
		before, err := readResults(p, n.cfg.ResultsSelector)
		if err != nil {
			return err
		}
		if err := next.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click next: %w", err)
		}
		read := func(context.Context) (string, error) {
			return readResults(p, n.cfg.ResultsSelector)
		}
		if _, err := navigator.WaitForChange(p.GetContext(), n.cfg.PollInterval, before, read); err != nil {
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

// Close closes the browser and, when it was launched locally, kills the
// process. It is safe to call more than once.
func (n *Navigator) Close() error {
	n.closeOnce.Do(func() {
		if n.stopWatch != nil {
			n.stopWatch()
		}
		if err := n.browser.Close(); err != nil {
			n.closeErr = fmt.Errorf("close browser: %w", err)
		}
		killLauncher(n.launcher)
	})
	return n.closeErr
}

func (n *Navigator) run(ctx context.Context, fn func(*rod.Page) error) error {
	taskCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	return fn(n.page.Context(taskCtx))
}

func readResults(p *rod.Page, selector string) (string, error) {
	el, err := p.Element(selector)
	if err != nil {
		return "", fmt.Errorf("find results: %w", err)
	}
	prop, err := el.Property("innerHTML")
	if err != nil {
		return "", fmt.Errorf("read results: %w", err)
	}
	return prop.Str(), nil
}
