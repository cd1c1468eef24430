// Package handler exposes shop registration and management over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"printhub/internal/authz"
	"printhub/internal/notify"
	"printhub/internal/platform/middleware"
	"printhub/internal/shop/models"
	"printhub/internal/shop/store"
	dErrors "printhub/pkg/domain-errors"
	"printhub/pkg/platform/httputil"
	"printhub/pkg/platform/sentinel"
)

// Handler handles shop endpoints. Mutating routes are restricted to the
// owning shop or an administrator; reads are open to any authenticated actor.
type Handler struct {
	shops  store.Store
	sink   notify.Sink
	logger *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithSink sets the live-push sink used for capacity notifications.
// Defaults to the no-op sink.
func WithSink(sink notify.Sink) Option {
	return func(h *Handler) { h.sink = sink }
}

// New creates a shop Handler.
func New(shops store.Store, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{shops: shops, sink: notify.Noop{}, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the shop routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.With(middleware.RequireRole(h.logger, middleware.RoleShopOwner, middleware.RoleAdmin)).
		Post("/shops", h.handleRegister)
	r.Get("/shops/nearby", h.handleNearby)
	r.Get("/shops/{id}", h.handleGet)
	r.Put("/shops/{id}/capacity", h.handleUpdateCapacity)
	r.Put("/shops/{id}/status", h.handleSetStatus)
}

type registerShopRequest struct {
	Name     string           `json:"name"`
	Location models.GeoPoint  `json:"location"`
	Address  string           `json:"address,omitempty"`
	Contact  string           `json:"contact,omitempty"`
	Capacity *models.Capacity `json:"capacity,omitempty"`
	Pricing  *models.Pricing  `json:"pricing,omitempty"`
	Services *models.Services `json:"services,omitempty"`
}

func (r registerShopRequest) validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	if r.Location.Latitude < -90 || r.Location.Latitude > 90 {
		return dErrors.New(dErrors.CodeBadRequest, "latitude out of range")
	}
	if r.Location.Longitude < -180 || r.Location.Longitude > 180 {
		return dErrors.New(dErrors.CodeBadRequest, "longitude out of range")
	}
	if r.Capacity != nil && (r.Capacity.MaxQueue < 0 || r.Capacity.ProcessingRate < 0) {
		return dErrors.New(dErrors.CodeBadRequest, "capacity values must not be negative")
	}
	return nil
}

type updateCapacityRequest struct {
	MaxQueue       *int `json:"maxQueue,omitempty"`
	ProcessingRate *int `json:"processingRate,omitempty"`
}

type setStatusRequest struct {
	IsActive bool `json:"isActive"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	var req registerShopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	now := time.Now().UTC()
	shop := &models.Shop{
		ID:        uuid.NewString(),
		OwnerID:   actor.UserID,
		Name:      req.Name,
		Location:  req.Location,
		Address:   req.Address,
		Contact:   req.Contact,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Capacity != nil {
		shop.Capacity = models.Capacity{
			MaxQueue:       req.Capacity.MaxQueue,
			ProcessingRate: req.Capacity.ProcessingRate,
		}
	}
	if req.Pricing != nil {
		shop.Pricing = *req.Pricing
	}
	if req.Services != nil {
		shop.Services = *req.Services
	}
	shop.ApplyDefaults()

	if err := h.shops.Create(ctx, shop); err != nil {
		h.logger.ErrorContext(ctx, "failed to register shop", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "register shop"))
		return
	}

	h.logger.InfoContext(ctx, "shop registered", "shop_id", shop.ID, "owner_id", shop.OwnerID)
	httputil.WriteJSON(w, http.StatusCreated, shop)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shop, err := h.shops.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "shop not found"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load shop", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "load shop"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, shop)
}

func (h *Handler) handleNearby(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	origin, err := parseOrigin(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	radiusKm := parseFloatDefault(r.URL.Query().Get("radiusKm"), 5)
	limit := int(parseFloatDefault(r.URL.Query().Get("limit"), 20))

	shops, err := h.shops.FindNearby(ctx, origin, radiusKm, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "nearby shop query failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "query nearby shops"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"shops": shops})
}

func (h *Handler) handleUpdateCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	shopID := chi.URLParam(r, "id")
	if !authz.Can(actor, authz.ActionManageShop, authz.Resource{ShopID: shopID}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "actor may not manage this shop"))
		return
	}

	var req updateCapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.MaxQueue == nil && req.ProcessingRate == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "nothing to update"))
		return
	}
	if (req.MaxQueue != nil && *req.MaxQueue < 1) || (req.ProcessingRate != nil && *req.ProcessingRate < 1) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "capacity values must be at least 1"))
		return
	}

	shop, err := h.shops.UpdateCapacity(ctx, shopID, store.CapacityPatch{
		MaxQueue:       req.MaxQueue,
		ProcessingRate: req.ProcessingRate,
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "shop not found"))
		return
	}
	if errors.Is(err, sentinel.ErrConflict) {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeConflict, "maxQueue is below the current queue"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update shop capacity", "shop_id", shopID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "update capacity"))
		return
	}

	h.notifyCapacity(ctx, shop)
	httputil.WriteJSON(w, http.StatusOK, shop)
}

type capacityNotice struct {
	Type           string `json:"type"`
	ShopID         string `json:"shopId"`
	MaxQueue       int    `json:"maxQueue"`
	ProcessingRate int    `json:"processingRate"`
	CurrentQueue   int    `json:"currentQueue"`
}

// notifyCapacity tells the shop room its limits changed. Best effort.
func (h *Handler) notifyCapacity(ctx context.Context, shop *models.Shop) {
	payload, err := json.Marshal(capacityNotice{
		Type:           "shop:capacity",
		ShopID:         shop.ID,
		MaxQueue:       shop.Capacity.MaxQueue,
		ProcessingRate: shop.Capacity.ProcessingRate,
		CurrentQueue:   shop.Capacity.CurrentQueue,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode capacity notice", "shop_id", shop.ID, "error", err)
		return
	}
	if err := h.sink.NotifyShop(ctx, shop.ID, payload); err != nil {
		h.logger.WarnContext(ctx, "capacity notice push failed", "shop_id", shop.ID, "error", err)
	}
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	shopID := chi.URLParam(r, "id")
	if !authz.Can(actor, authz.ActionManageShop, authz.Resource{ShopID: shopID}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "actor may not manage this shop"))
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	shop, err := h.shops.SetActive(ctx, shopID, req.IsActive)
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "shop not found"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to set shop status", "shop_id", shopID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "set shop status"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, shop)
}

func parseOrigin(r *http.Request) (models.GeoPoint, error) {
	q := r.URL.Query()
	lng, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		return models.GeoPoint{}, dErrors.New(dErrors.CodeBadRequest, "longitude is required")
	}
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		return models.GeoPoint{}, dErrors.New(dErrors.CodeBadRequest, "latitude is required")
	}
	return models.GeoPoint{Longitude: lng, Latitude: lat}, nil
}

func parseFloatDefault(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
