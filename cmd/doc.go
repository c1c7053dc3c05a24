// Package cmd defines the flare-crawler CLI.
//
// Architecture overview:
//   - serve: internal/api.Server exposes the scrape control endpoints, the stored flares, health checks and
//     /metrics. The crawl itself runs on a background goroutine owned by internal/controller; at most one run
//     is active per process.
//   - crawl: performs a single foreground run and exits. SIGINT asks the run to stop at its next row or page
//     checkpoint; the browser is released before the command returns.
//   - migrate: creates the locations, operators and flares tables when they do not exist.
//
// Pipeline: a headless browser (chromedp or go-rod) submits the SWR-32 query form and pages through the
// PrimeFaces results table. Each page's rows are extracted with goquery, normalized, reconciled against
// Location and Operator rows, and appended to Postgres one row at a time. Rows that fail validation are
// skipped and counted; navigation and storage failures end the run.
//
// Configuration comes from an optional YAML file (--config) overlaid by CRAWLER_* environment variables,
// e.g. CRAWLER_DB_DSN, CRAWLER_BROWSER_DRIVER, CRAWLER_CRAWLER_MAX_PAGES.
package cmd
