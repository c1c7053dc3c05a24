// Package gcs archives results pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/flare-crawler/internal/archive"
)

// Config names the bucket pages are written to.
type Config struct {
	Bucket string
}

// PageStore writes each page as one object, tagged with its run and page
// number so a bucket listing can be filtered without downloading bodies.
type PageStore struct {
	client *storage.Client
	bucket string
}

var _ archive.PageWriter = (*PageStore)(nil)

// New creates a GCS-backed page store.
func New(client *storage.Client, cfg Config) (*PageStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &PageStore{client: client, bucket: cfg.Bucket}, nil
}

// WritePage uploads page under key and returns its gs:// URI. The write only
// succeeds if the object does not exist yet.
func (s *PageStore) WritePage(ctx context.Context, key string, page archive.Page) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	obj := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	applyAttrs(&w.ObjectAttrs, page)

	if _, err := w.Write([]byte(page.HTML)); err != nil {
		_ = w.Close()
		return "", classify(key, err)
	}
	if err := w.Close(); err != nil {
		return "", classify(key, err)
	}
	return s.URI(key), nil
}

// URI returns the gs:// location of key.
func (s *PageStore) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

func applyAttrs(attrs *storage.ObjectAttrs, page archive.Page) {
	attrs.ContentType = archive.ContentType
	attrs.Metadata = page.Metadata()
}

// classify maps a failed precondition to archive.ErrPageExists.
func classify(key string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("write %s: %w", key, archive.ErrPageExists)
	}
	return fmt.Errorf("write %s: %w", key, err)
}
