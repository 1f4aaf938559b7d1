package api

import (
	"net/http"

	apperrors "github.com/cardano-portfolio/internal/errors"
)

// handleRunSnapshot handles POST /api/pipeline/snapshot?offset&limit.
// Partial progress is a 200 with errors listed; a failed shared balance fetch
// is a hard failure carrying the run's errors.
func (s *Server) handleRunSnapshot(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", s.config.DefaultPageSize)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	page, err := s.snapshotService.RunPage(r.Context(), offset, limit, s.now())
	if err != nil {
		catErr := apperrors.Categorize(err)
		details := map[string]interface{}{}
		for k, v := range catErr.Details {
			details[k] = v
		}
		if page != nil {
			details["errors"] = page.Errors
			details["bucket"] = page.Bucket
		}
		respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, details)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// handleEvaluateAlerts handles POST /api/pipeline/alerts?bucket=RFC3339
func (s *Server) handleEvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	bucket, err := timeParam(r, "bucket")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := s.alertService.EvaluateActive(r.Context(), bucket)
	if err != nil && (res == nil || res.ProcessedWallets == 0) {
		respondServiceError(w, r, err)
		return
	}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}
	respondJSON(w, http.StatusOK, res)
}
