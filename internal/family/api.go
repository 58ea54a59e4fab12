package family

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/metrics"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

// Handler provides HTTP handlers for the family module
type Handler struct {
	store Store
	bus   events.EventBus
	log   *zap.Logger
}

// NewHandler creates a new family handler
func NewHandler(store Store, bus events.EventBus, log *zap.Logger) *Handler {
	return &Handler{store: store, bus: bus, log: log.Named("family")}
}

// Routes registers the family routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	field := auth.RequireRoles(auth.RoleVolunteer, auth.RoleFieldManager, auth.RoleAdmin)

	r.With(field).Get("/", h.List)
	r.With(auth.RequireRoles(auth.RoleVolunteer, auth.RoleAdmin)).Post("/", h.Create)

	r.Route("/{familyID}", func(r chi.Router) {
		r.With(field).Get("/", h.Get)
		r.With(field).Patch("/", h.Update)
		r.With(auth.RequireRoles(auth.RoleAdmin)).Delete("/", h.Deactivate)
	})

	return r
}

// List lists families
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		ActiveOnly: q.Get("include_inactive") != "true",
		Search:     q.Get("search"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	records, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"total": total,
	})
}

// Get gets a family by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "familyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid family ID"))
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Create registers a new family
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rec := req.ToRecord()
	if err := rec.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Create(r.Context(), &rec); err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordFamilyCreated()

	h.publish(r, events.FamilyCreated, map[string]any{
		"family_id":    rec.ID,
		"code":         rec.Code,
		"member_count": rec.MemberCount,
	})

	writeJSON(w, http.StatusCreated, rec)
}

// Update applies a partial update to a family
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "familyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid family ID"))
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	changed := req.Apply(rec)
	if len(changed) == 0 {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	if err := rec.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Update(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.FamilyUpdated, map[string]any{
		"family_id": rec.ID,
		"fields":    changed,
	})

	writeJSON(w, http.StatusOK, rec)
}

// Deactivate soft-deletes a family
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "familyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid family ID"))
		return
	}

	if err := h.store.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, events.FamilyDeactivated, map[string]any{"family_id": id})

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publish(r *http.Request, eventType string, data map[string]any) {
	event := events.NewEvent(eventType, data).WithActor(auth.ActorID(r.Context()), "user")
	events.PublishBestEffort(r.Context(), h.bus, h.log, event)
}

// --- Helpers ---

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
