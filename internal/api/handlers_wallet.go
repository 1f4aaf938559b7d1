package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/cardano-portfolio/internal/errors"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/service"
	"github.com/cardano-portfolio/internal/types"
)

// handleCreateWallet handles POST /api/wallets - track or reactivate a stake address
func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req service.CreateWalletInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	wallet, err := s.walletService.CreateWallet(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wallet)
}

// handleListWallets handles GET /api/wallets?offset&limit - active wallets
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
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

	wallets, err := s.walletService.ListActive(r.Context(), offset, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": wallets,
		"offset":  offset,
		"limit":   limit,
	})
}

// handleGetWallet handles GET /api/wallets/{id}
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.walletService.GetWallet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// handleDeactivateWallet handles DELETE /api/wallets/{id} - soft delete
func (s *Server) handleDeactivateWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.walletService.Deactivate(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateSettings handles PUT /api/wallets/{id}/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateSettingsInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	wallet, err := s.walletService.UpdateSettings(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

// handleReplaceTargets handles PUT /api/wallets/{id}/targets - replace the full target set
func (s *Server) handleReplaceTargets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Targets []service.TargetInput `json:"targets"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	targets, err := s.walletService.ReplaceTargets(r.Context(), mux.Vars(r)["id"], req.Targets)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"targets": targets})
}

// handleListTargets handles GET /api/wallets/{id}/targets
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.walletService.ListTargets(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if targets == nil {
		targets = []models.Target{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"targets": targets})
}

// handleListTokens handles GET /api/tokens
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	defs, err := s.walletService.ListTokenDefinitions(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tokens": defs})
}

// handleUpsertToken handles PUT /api/tokens/{unit}
func (s *Server) handleUpsertToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol          string            `json:"symbol"`
		Decimals        *int              `json:"decimals,omitempty"`
		PriceSource     types.PriceSource `json:"priceSource"`
		TickerPair      *string           `json:"tickerPair,omitempty"`
		TickerResultKey *string           `json:"tickerResultKey,omitempty"`
		AggregatorID    *string           `json:"aggregatorId,omitempty"`
		ManualPriceUSD  *float64          `json:"manualPriceUsd,omitempty"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	def, err := s.walletService.UpsertTokenDefinition(r.Context(), &models.TokenDefinition{
		Unit:            mux.Vars(r)["unit"],
		Symbol:          req.Symbol,
		Decimals:        req.Decimals,
		PriceSource:     req.PriceSource,
		TickerPair:      req.TickerPair,
		TickerResultKey: req.TickerResultKey,
		AggregatorID:    req.AggregatorID,
		ManualPriceUSD:  req.ManualPriceUSD,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

// intParam reads an optional integer query parameter
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError(name, "must be an integer")
	}
	return v, nil
}

// timeParam reads an optional RFC3339 query parameter
func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewInvalidParameterError(name, "must be an RFC3339 timestamp")
	}
	return &t, nil
}

// windowParams reads the optional from/to pair
func windowParams(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := timeParam(r, "from")
	if err != nil {
		return nil, nil, err
	}
	to, err := timeParam(r, "to")
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
