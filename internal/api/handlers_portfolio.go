package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/portfolio-ledger/internal/instruction"
	"github.com/portfolio-ledger/internal/service"
)

// handleExecute handles POST /api/portfolios/{address}/instructions
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	address, err := service.ParsePublicKey("address", mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	var env instruction.Envelope
	if err := parseJSONBody(r, &env); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLong, "Request body too large", nil)
			return
		}
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid instruction envelope: "+err.Error(), nil)
		return
	}

	record, err := s.portfolioService.Execute(r.Context(), address, &env)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, service.NewPortfolioView(record))
}

// handleGetPortfolio handles GET /api/portfolios/{address}
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	address, err := service.ParsePublicKey("address", mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	view, err := s.portfolioService.GetPortfolio(r.Context(), address)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleGetPortfolioByOwner handles GET /api/owners/{owner}/portfolio
func (s *Server) handleGetPortfolioByOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := service.ParsePublicKey("owner", mux.Vars(r)["owner"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	view, err := s.portfolioService.GetPortfolioByOwner(r.Context(), owner)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleGetActivity handles GET /api/portfolios/{address}/activity?limit=
func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	address, err := service.ParsePublicKey("address", mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", map[string]interface{}{
				"limit": raw,
			})
			return
		}
	}

	events, err := s.portfolioService.GetActivity(r.Context(), address, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address": address.String(),
		"events":  events,
	})
}
