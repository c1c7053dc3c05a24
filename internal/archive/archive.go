// Package archive keeps a raw copy of every results page a run reads, so a
// change in the upstream markup can be diagnosed after the fact.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

// ContentType is stored with every archived page.
const ContentType = "text/html; charset=utf-8"

// ErrPageExists is returned by a PageWriter when the key is already taken.
// Archived pages are write-once.
var ErrPageExists = errors.New("page already archived")

// Page is one results page of a run.
type Page struct {
	RunID  string
	Number int
	HTML   string
}

// Metadata returns the object attributes recorded alongside the page.
func (p Page) Metadata() map[string]string {
	return map[string]string{
		"run_id": p.RunID,
		"page":   strconv.Itoa(p.Number),
		"bytes":  strconv.Itoa(len(p.HTML)),
	}
}

// PageWriter is implemented by the local and GCS stores.
type PageWriter interface {
	WritePage(ctx context.Context, key string, page Page) (string, error)
}

// Archiver writes pages to <prefix>/<run id>/page-NNNN.html.
type Archiver struct {
	pages  PageWriter
	prefix string
}

var _ crawler.PageArchiver = (*Archiver)(nil)

// New wraps pages. prefix may be empty.
func New(pages PageWriter, prefix string) (*Archiver, error) {
	if pages == nil {
		return nil, fmt.Errorf("page writer is required")
	}
	return &Archiver{pages: pages, prefix: strings.Trim(prefix, "/")}, nil
}

// ArchivePage stores html and returns the object URI.
func (a *Archiver) ArchivePage(ctx context.Context, runID string, page int, html string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if page < 1 {
		return "", fmt.Errorf("page number must be >= 1, got %d", page)
	}
	key := PagePath(a.prefix, runID, page)
	uri, err := a.pages.WritePage(ctx, key, Page{RunID: runID, Number: page, HTML: html})
	if err != nil {
		return "", fmt.Errorf("archive page %d: %w", page, err)
	}
	return uri, nil
}

// PagePath builds the object key for one page of a run.
func PagePath(prefix, runID string, page int) string {
	return path.Join(prefix, runID, fmt.Sprintf("page-%04d.html", page))
}
