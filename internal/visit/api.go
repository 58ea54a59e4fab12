package visit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/metrics"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

// Handler provides HTTP handlers for visits and the aid log
type Handler struct {
	store Store
	bus   events.EventBus
	log   *zap.Logger
	now   func() time.Time
}

// NewHandler creates a new visit handler
func NewHandler(store Store, bus events.EventBus, log *zap.Logger) *Handler {
	return &Handler{store: store, bus: bus, log: log.Named("visit"), now: time.Now}
}

// Routes registers the /visits routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	field := auth.RequireRoles(auth.RoleVolunteer, auth.RoleFieldManager, auth.RoleAdmin)

	r.With(field).Get("/", h.List)
	r.With(auth.RequireRoles(auth.RoleVolunteer, auth.RoleAdmin)).Post("/", h.Create)

	r.Route("/{visitID}", func(r chi.Router) {
		r.With(field).Get("/", h.Get)
		r.With(auth.RequireRoles(auth.RoleAdmin)).Delete("/", h.Delete)
	})

	return r
}

// AidRoutes registers the /aids routes
func (h *Handler) AidRoutes() chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireRoles(auth.RoleVolunteer, auth.RoleFieldManager, auth.RoleAdmin)).Get("/", h.ListAids)
	return r
}

// Create records a visit
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	var workerID *types.ID
	if user := auth.GetUser(r.Context()); user != nil && !user.ID.IsZero() {
		id := user.ID
		workerID = &id
	}

	v, err := req.ToVisit(workerID, h.now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Create(r.Context(), v); err != nil {
		writeError(w, err)
		return
	}

	familyIDs := make([]types.ID, 0, len(v.Families))
	aidCount := 0
	for _, b := range v.Families {
		familyIDs = append(familyIDs, b.FamilyID)
		for _, a := range b.Aids {
			metrics.RecordAidDistributed(a.Type)
			aidCount++
		}
	}

	event := events.NewEvent(events.VisitRecorded, map[string]any{
		"visit_id":   v.ID,
		"family_ids": familyIDs,
		"aid_count":  aidCount,
		"visited_at": v.VisitedAt,
	}).WithActor(auth.ActorID(r.Context()), "user")
	events.PublishBestEffort(r.Context(), h.bus, h.log, event)

	writeJSON(w, http.StatusCreated, v)
}

// List lists visits
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	if raw := q.Get("family_id"); raw != "" {
		id, err := types.ParseID(raw)
		if err != nil {
			writeError(w, errors.BadRequest("invalid family ID"))
			return
		}
		filter.FamilyID = &id
	}
	if raw := q.Get("worker_id"); raw != "" {
		id, err := types.ParseID(raw)
		if err != nil {
			writeError(w, errors.BadRequest("invalid worker ID"))
			return
		}
		filter.WorkerID = &id
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	visits, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if visits == nil {
		visits = []Visit{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  visits,
		"total": total,
	})
}

// Get gets a visit by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "visitID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid visit ID"))
		return
	}

	v, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// Delete removes a visit
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "visitID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid visit ID"))
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	event := events.NewEvent(events.VisitDeleted, map[string]any{"visit_id": id}).
		WithActor(auth.ActorID(r.Context()), "user")
	events.PublishBestEffort(r.Context(), h.bus, h.log, event)

	w.WriteHeader(http.StatusNoContent)
}

// ListAids lists distributed aid, most recent first
func (h *Handler) ListAids(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	aids, total, err := h.store.ListAids(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if aids == nil {
		aids = []AidView{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  aids,
		"total": total,
	})
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
