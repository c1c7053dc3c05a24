package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

type startResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

// startScrape handles POST /api/v1/scrape/. It returns 202 once the run is
// running in the background, or 409 when one already is.
func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Start()
	if err != nil {
		if errors.Is(err, crawler.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start crawl failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{
		Message: "Scraping started in the background.",
		RunID:   run.ID,
	})
}

// stopScrape handles POST /api/v1/scrape/stop. It returns 409 when idle.
func (s *Server) stopScrape(w http.ResponseWriter, _ *http.Request) {
	if err := s.runs.Stop(); err != nil {
		if errors.Is(err, crawler.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop crawl")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Stop requested."})
}

// scrapeProgress handles GET /api/v1/scrape/progress.
func (s *Server) scrapeProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.Progress())
}
