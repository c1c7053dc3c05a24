// Package navigator holds the configuration and wait helpers shared by the
// browser-backed page navigators.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults target the SWR-32 PrimeFaces public query form.
const (
	DefaultURL             = "https://webapps.rrc.state.tx.us/swr32/publicquery.xhtml"
	DefaultSearchSelector  = `#pbqueryForm\:searchExceptions`
	DefaultResultsSelector = `#pbqueryForm\:pQueryTable`
	DefaultNextSelector    = `a.ui-paginator-next:not(.ui-state-disabled)`
	DefaultTimeout         = 30 * time.Second
	DefaultSettleDelay     = 2 * time.Second
	DefaultPollInterval    = 250 * time.Millisecond
)

// ErrUnchanged reports that the results container kept the same markup
// until the wait timed out.
var ErrUnchanged = errors.New("results did not change")

// Config describes where the query form lives and how long to wait for it.
type Config struct {
	URL             string
	SearchSelector  string
	ResultsSelector string
	NextSelector    string
	// Timeout bounds each navigation step.
	Timeout time.Duration
	// SettleDelay runs after the search and after every advance.
	SettleDelay  time.Duration
	PollInterval time.Duration
	UserAgent    string
	Headless     bool
	// RemoteURL connects to an existing browser instead of launching one.
	RemoteURL string
}

// WithDefaults fills unset fields. Headless is left as given.
func (c Config) WithDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.SearchSelector == "" {
		c.SearchSelector = DefaultSearchSelector
	}
	if c.ResultsSelector == "" {
		c.ResultsSelector = DefaultResultsSelector
	}
	if c.NextSelector == "" {
		c.NextSelector = DefaultNextSelector
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settle: %w", ctx.Err())
	}
}

// WaitForChange polls read until it returns markup different from before.
// Read errors are retried until ctx expires, since the container is briefly
// detached while PrimeFaces swaps the table body.
func WaitForChange(ctx context.Context, interval time.Duration, before string, read func(context.Context) (string, error)) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		html, err := read(ctx)
		if err == nil && html != before {
			return html, nil
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return "", fmt.Errorf("%w: %w", ErrUnchanged, lastErr)
			}
			return "", fmt.Errorf("%w: %w", ErrUnchanged, ctx.Err())
		case <-ticker.C:
		}
	}
}
