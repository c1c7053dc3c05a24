// Package system provides the wall clock used to stamp runs.
package system

import (
	"time"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

var _ crawler.Clock = Clock{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC, truncated to microseconds so values
// round-trip through Postgres timestamps unchanged.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
