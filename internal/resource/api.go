package resource

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

// Handler provides HTTP handlers for the inventory
type Handler struct {
	store Store
	bus   events.EventBus
	log   *zap.Logger
}

// NewHandler creates a new resource handler
func NewHandler(store Store, bus events.EventBus, log *zap.Logger) *Handler {
	return &Handler{store: store, bus: bus, log: log.Named("resource")}
}

// Routes registers the resource routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	managers := auth.RequireRoles(auth.RoleAdmin, auth.RoleCoordinator)

	r.Get("/", h.List)
	r.Get("/low-stock", h.LowStock)
	r.With(managers).Post("/", h.Create)

	r.Route("/{resourceID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.With(managers).Patch("/", h.Update)
		r.With(auth.RequireRoles(auth.RoleAdmin)).Delete("/", h.Delete)
	})

	return r
}

// List lists resources
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": total,
	})
}

// LowStock lists resources at or below their threshold
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListLowStock(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []Item{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": len(items),
	})
}

// Get gets a resource by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "resourceID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid resource ID"))
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// Create registers a resource
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	item := &Item{
		ID:           types.NewID(),
		Name:         req.Name,
		Category:     req.Category,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		MinThreshold: req.MinThreshold,
		Location:     req.Location,
		ExpiryDate:   req.ExpiryDate,
	}
	if err := item.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Create(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.ResourceCreated, item, nil)
	writeJSON(w, http.StatusCreated, item)
}

// Update applies a partial update to a resource
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "resourceID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid resource ID"))
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	previous := item.Quantity

	req.Apply(item)
	if err := item.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Update(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.ResourceUpdated, item, &previous)
	writeJSON(w, http.StatusOK, item)
}

// Delete removes a resource
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "resourceID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid resource ID"))
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	event := events.NewEvent(events.ResourceDeleted, map[string]any{"resource_id": id}).
		WithActor(auth.ActorID(r.Context()), "user")
	events.PublishBestEffort(r.Context(), h.bus, h.log, event)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publish(r *http.Request, eventType string, item *Item, previousQuantity *float64) {
	data := map[string]any{
		"resource_id": item.ID,
		"name":        item.Name,
		"quantity":    item.Quantity,
		"low_stock":   item.IsLowStock(),
	}
	if previousQuantity != nil {
		data["previous_quantity"] = *previousQuantity
	}
	event := events.NewEvent(eventType, data).WithActor(auth.ActorID(r.Context()), "user")
	events.PublishBestEffort(r.Context(), h.bus, h.log, event)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := errors.As(err); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
