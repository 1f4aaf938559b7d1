package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleCurrentAllocation handles GET /api/wallets/{id}/allocation
func (s *Server) handleCurrentAllocation(w http.ResponseWriter, r *http.Request) {
	view, err := s.portfolioService.CurrentAllocation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// handleAllocationHistory handles GET /api/wallets/{id}/allocation/history?from&to
func (s *Server) handleAllocationHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := windowParams(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	points, err := s.portfolioService.AllocationHistory(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// handleListSnapshots handles GET /api/wallets/{id}/snapshots?from&to
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	from, to, err := windowParams(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	snaps, err := s.portfolioService.ListSnapshots(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snaps})
}

// handleListAlerts handles GET /api/wallets/{id}/alerts?limit
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	events, err := s.portfolioService.ListAlerts(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": events})
}

// handlePriceHistory handles GET /api/prices/{unit}/history?from&to
func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := windowParams(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	prices, err := s.portfolioService.PriceHistory(r.Context(), mux.Vars(r)["unit"], from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"prices": prices})
}
