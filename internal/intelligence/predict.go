package intelligence

import (
	"encoding/json"
	"net/http"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"go.uber.org/zap"
)

// AreaNeedsRequest groups the families to forecast by area.
type AreaNeedsRequest struct {
	FamilyIDsByArea map[string][]string `json:"familyIdsByArea"`
}

// PredictAreaNeeds forecasts food, medical and housing needs per area. The
// predictions are empty when the external service is disabled or fails.
func (h *Handler) PredictAreaNeeds(w http.ResponseWriter, r *http.Request) {
	var req AreaNeedsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	n := 0
	for _, ids := range req.FamilyIDsByArea {
		n += len(ids)
	}
	if err := checkBatchSize("familyIdsByArea", n); err != nil {
		writeError(w, err)
		return
	}

	var (
		byArea  = make(map[string][]family.Record, len(req.FamilyIDsByArea))
		all     []family.Record
		skipped = []string{}
	)
	for area, ids := range req.FamilyIDsByArea {
		recs, miss, err := h.resolve(r.Context(), ids)
		if err != nil {
			writeError(w, err)
			return
		}
		skipped = append(skipped, miss...)
		if len(recs) > 0 {
			byArea[area] = recs
			all = append(all, recs...)
		}
	}

	predictions := []map[string]any{}
	if h.predictor != nil && len(all) > 0 {
		results := h.scorer.ScoreBatch(r.Context(), all)
		scores := make(map[string]scoring.Result, len(results))
		for _, res := range results {
			scores[res.FamilyID.String()] = res
		}

		out, err := h.predictor.PredictAreaNeeds(r.Context(), byArea, scores)
		if err != nil {
			h.log.Warn("area needs prediction failed", zap.Error(err), zap.Int("areas", len(byArea)))
		} else if out != nil {
			predictions = out
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":    predictions,
		"total":   len(predictions),
		"skipped": skipped,
	})
}

// HealthPatterns reports outbreak alerts across the listed families. The
// alerts are empty when the external service is disabled or fails.
func (h *Handler) HealthPatterns(w http.ResponseWriter, r *http.Request) {
	recs, skipped, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}

	alerts := []map[string]any{}
	if h.predictor != nil && len(recs) > 0 {
		scores := h.scorer.ScoreBatch(r.Context(), recs)
		out, err := h.predictor.DetectHealthPatterns(r.Context(), recs, scores)
		if err != nil {
			h.log.Warn("health pattern detection failed", zap.Error(err), zap.Int("families", len(recs)))
		} else if out != nil {
			alerts = out
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":    alerts,
		"total":   len(alerts),
		"skipped": skipped,
	})
}

// MigrationTrends breaks the listed families down by displacement status.
// The trends are empty when the external service is disabled or fails.
func (h *Handler) MigrationTrends(w http.ResponseWriter, r *http.Request) {
	recs, skipped, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}

	trends := map[string]any{}
	if h.predictor != nil && len(recs) > 0 {
		out, err := h.predictor.MigrationTrends(r.Context(), recs)
		if err != nil {
			h.log.Warn("migration trend analysis failed", zap.Error(err), zap.Int("families", len(recs)))
		} else if out != nil {
			trends = out
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":    trends,
		"skipped": skipped,
	})
}

func (h *Handler) decodeBatch(w http.ResponseWriter, r *http.Request) ([]family.Record, []string, bool) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return nil, nil, false
	}
	if err := checkBatchSize("familyIds", len(req.FamilyIDs)); err != nil {
		writeError(w, err)
		return nil, nil, false
	}

	recs, skipped, err := h.resolve(r.Context(), req.FamilyIDs)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	return recs, skipped, true
}
