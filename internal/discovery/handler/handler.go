// Package handler exposes shop ranking over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printhub/internal/discovery"
	"printhub/internal/order/models"
	shopmodels "printhub/internal/shop/models"
	dErrors "printhub/pkg/domain-errors"
	"printhub/pkg/platform/httputil"
)

// maxReturned caps how many ranked candidates a response carries.
const maxReturned = 10

// Handler handles discovery endpoints.
type Handler struct {
	ranker *discovery.Ranker
	logger *slog.Logger
}

// New creates a discovery Handler.
func New(ranker *discovery.Ranker, logger *slog.Logger) *Handler {
	return &Handler{ranker: ranker, logger: logger}
}

// Register registers the discovery routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/discovery/rank", h.handleRank)
}

type rankRequest struct {
	Origin      shopmodels.GeoPoint `json:"origin"`
	RadiusKm    float64             `json:"radiusKm,omitempty"`
	PrintConfig models.PrintJobSpec `json:"printConfig"`
}

type rankResponse struct {
	Best       *discovery.Candidate  `json:"best"`
	Candidates []discovery.Candidate `json:"candidates"`
}

func (h *Handler) handleRank(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.PrintConfig.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	candidates, err := h.ranker.Rank(ctx, req.Origin, req.PrintConfig, req.RadiusKm)
	if err != nil {
		h.logger.ErrorContext(ctx, "ranking failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	resp := rankResponse{Best: discovery.Best(candidates), Candidates: candidates}
	if len(resp.Candidates) > maxReturned {
		resp.Candidates = resp.Candidates[:maxReturned]
	}
	if resp.Candidates == nil {
		resp.Candidates = []discovery.Candidate{}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
