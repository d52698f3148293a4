package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/portfolio-ledger/internal/service"
)

// handleDerive handles GET /api/programs/derive/{owner}
func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	owner, err := service.ParsePublicKey("owner", mux.Vars(r)["owner"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	derived, err := s.portfolioService.Derive(owner)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, derived)
}

// handleGetVouches handles GET /api/vouchers/{voucher}/vouches
func (s *Server) handleGetVouches(w http.ResponseWriter, r *http.Request) {
	voucher, err := service.ParsePublicKey("voucher", mux.Vars(r)["voucher"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	endorsements, err := s.portfolioService.GetVouchesBy(r.Context(), voucher)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"voucher": voucher.String(),
		"vouches": endorsements,
	})
}
