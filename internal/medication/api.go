package medication

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/events"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

// FamilyChecker confirms a family exists before history is attached to it.
type FamilyChecker interface {
	Exists(ctx context.Context, id types.ID) error
}

// Handler provides HTTP handlers for medication history
type Handler struct {
	store    Store
	families FamilyChecker
	bus      events.EventBus
	log      *zap.Logger
}

// NewHandler creates a new medication handler
func NewHandler(store Store, families FamilyChecker, bus events.EventBus, log *zap.Logger) *Handler {
	return &Handler{store: store, families: families, bus: bus, log: log.Named("medication")}
}

// Routes registers the medication routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRoles(auth.AllRoles...))

	r.Post("/", h.Create)
	r.Get("/family/{familyID}", h.ListByFamily)

	return r
}

// Create records a confirmed prescription
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	familyID, err := req.Validate()
	if err != nil {
		writeError(w, err)
		return
	}

	if h.families != nil {
		if err := h.families.Exists(r.Context(), familyID); err != nil {
			writeError(w, err)
			return
		}
	}

	rec := &Record{
		ID:       types.NewID(),
		FamilyID: familyID,
		VisitID:  req.VisitID,
		RawText:  req.RawText,
		ImageURL: req.ImageURL,
		Entries:  req.Entries,
	}
	if actor := auth.ActorID(r.Context()); !actor.IsZero() {
		rec.CreatedBy = &actor
	}

	if err := h.store.Create(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}

	event := events.NewEvent(events.MedicationRecorded, map[string]any{
		"medication_id": rec.ID,
		"family_id":     rec.FamilyID,
		"entries":       len(rec.Entries),
	}).WithActor(auth.ActorID(r.Context()), "user")
	events.PublishBestEffort(r.Context(), h.bus, h.log, event)

	writeJSON(w, http.StatusCreated, rec)
}

// ListByFamily returns a family's medication history
func (h *Handler) ListByFamily(w http.ResponseWriter, r *http.Request) {
	familyID, err := types.ParseID(chi.URLParam(r, "familyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid family ID"))
		return
	}

	records, err := h.store.ListByFamily(r.Context(), familyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"total": len(records),
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
