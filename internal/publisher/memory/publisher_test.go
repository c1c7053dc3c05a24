package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

func TestPublisherStoresSummaries(t *testing.T) {
	t.Parallel()

	pub := New()
	if err := pub.NotifyRun(context.Background(), crawler.RunSummary{RunID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pub.NotifyRun(context.Background(), crawler.RunSummary{RunID: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := pub.Summaries()
	if len(got) != 2 || got[0].RunID != "a" || got[1].RunID != "b" {
		t.Fatalf("summaries not recorded in order: %+v", got)
	}

	got[0].RunID = "modified"
	if pub.Summaries()[0].RunID == "modified" {
		t.Fatal("expected Summaries() to return a copy")
	}
}
