// Package handler exposes the order lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printhub/internal/order/models"
	"printhub/internal/order/service"
	"printhub/internal/order/statemachine"
	"printhub/internal/platform/middleware"
	shopmodels "printhub/internal/shop/models"
	dErrors "printhub/pkg/domain-errors"
	"printhub/pkg/platform/httputil"
)

// Service defines the coordinator operations the handler needs.
type Service interface {
	CreateOrder(ctx context.Context, input service.CreateOrderInput, actor middleware.Actor) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, requested models.Status, actor middleware.Actor) (*models.Order, error)
	Cancel(ctx context.Context, orderID string, actor middleware.Actor) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string, actor middleware.Actor) (*models.Order, error)
	ListMine(ctx context.Context, actor middleware.Actor) ([]*models.Order, error)
	ListForShop(ctx context.Context, shopID string, actor middleware.Actor) ([]*models.Order, error)
}

// Handler handles order endpoints. All routes require an authenticated actor.
type Handler struct {
	orders Service
	logger *slog.Logger
}

// New creates an order Handler.
func New(orders Service, logger *slog.Logger) *Handler {
	return &Handler{orders: orders, logger: logger}
}

// Register registers the order routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Get("/orders/mine", h.handleListMine)
	r.Get("/orders/shop/{shopID}", h.handleListForShop)
	r.Get("/orders/{id}", h.handleGet)
	r.Put("/orders/{id}/status", h.handleUpdateStatus)
	r.Post("/orders/{id}/cancel", h.handleCancel)
}

type createOrderRequest struct {
	ShopID      string               `json:"shopId,omitempty"`
	Origin      *shopmodels.GeoPoint `json:"origin,omitempty"`
	RadiusKm    float64              `json:"radiusKm,omitempty"`
	PrintConfig models.PrintJobSpec  `json:"printConfig"`
}

type updateStatusRequest struct {
	Status models.Status `json:"status"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	order, err := h.orders.CreateOrder(ctx, service.CreateOrderInput{
		ShopID:   req.ShopID,
		Origin:   req.Origin,
		RadiusKm: req.RadiusKm,
		Spec:     req.PrintConfig,
	}, actor)
	if err != nil {
		h.logError(ctx, "create order failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "id"), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	orders, err := h.orders.ListMine(ctx, actor)
	if err != nil {
		h.logError(ctx, "list own orders failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleListForShop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	orders, err := h.orders.ListForShop(ctx, chi.URLParam(r, "shopID"), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status, actor)
	if err != nil {
		h.logError(ctx, "status update failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	order, err := h.orders.Cancel(ctx, chi.URLParam(r, "id"), actor)
	if err != nil {
		// Cancelling an already-terminal order is a caller mistake, not a
		// state conflict, so the endpoint answers 400 rather than 409.
		if statemachine.IsTerminalStateError(err) {
			httputil.WriteErrorStatus(w, http.StatusBadRequest, err)
			return
		}
		h.logError(ctx, "cancel failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err)
		return
	}
	h.logger.DebugContext(ctx, msg, "error", err)
}
