package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/flare-crawler/internal/crawler"
)

const (
	defaultFlareLimit = 100
	maxFlareLimit     = 1000
	storeTimeout      = 5 * time.Second
)

// listFlares handles GET /api/v1/flares/?limit=&offset=. It returns a JSON
// array of flares, newest first, or 400 for invalid paging parameters.
func (s *Server) listFlares(w http.ResponseWriter, r *http.Request) {
	if s.flares == nil {
		writeError(w, http.StatusServiceUnavailable, "flare store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultFlareLimit, maxFlareLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	flares, err := s.flares.ListFlares(ctx, limit, offset)
	if err != nil {
		s.logger.Error("list flares failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list flares")
		return
	}
	if flares == nil {
		flares = []crawler.Flare{}
	}
	writeJSON(w, http.StatusOK, flares)
}

// createFlare handles POST /api/v1/flares/. The body carries one row's raw
// fields keyed like the results table columns; it passes through the same
// validation as crawled rows. Returns 201, 400 for malformed JSON, or 422 for
// a rejected row.
func (s *Server) createFlare(w http.ResponseWriter, r *http.Request) {
	if s.rows == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest unavailable")
		return
	}
	var raw crawler.RawRecord
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	flare, err := s.rows.IngestRaw(ctx, raw)
	if err != nil {
		var verr *crawler.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		s.logger.Error("ingest flare failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store flare")
		return
	}
	writeJSON(w, http.StatusCreated, flare)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
