// Package intelligence exposes vulnerability scoring and population insights
// over HTTP.
package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/insights"
	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/omnia-aid/platform/internal/shared/auth"
	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 100
	maxBatchSize = 500
)

// Families resolves the records scores are computed for.
type Families interface {
	Get(ctx context.Context, id types.ID) (*family.Record, error)
	ListActive(ctx context.Context) ([]family.Record, error)
}

// Scorer scores records, falling back to the local formula.
type Scorer interface {
	Score(ctx context.Context, rec family.Record) scoring.Result
	ScoreBatch(ctx context.Context, recs []family.Record) []scoring.Result
}

// Reporter produces the global insight report.
type Reporter interface {
	GlobalInsights(ctx context.Context, refresh bool) (*insights.Report, error)
}

// MLStatus reports on the external scoring service.
type MLStatus interface {
	Health(ctx context.Context) (map[string]any, error)
	Info(ctx context.Context) (map[string]any, error)
}

// Predictor runs the external population predictions.
type Predictor interface {
	PredictAreaNeeds(ctx context.Context, byArea map[string][]family.Record, scores map[string]scoring.Result) ([]map[string]any, error)
	DetectHealthPatterns(ctx context.Context, recs []family.Record, scores []scoring.Result) ([]map[string]any, error)
	MigrationTrends(ctx context.Context, recs []family.Record) (map[string]any, error)
}

// Handler provides HTTP handlers for the intelligence module
type Handler struct {
	families  Families
	scorer    Scorer
	reporter  Reporter
	ml        MLStatus
	predictor Predictor
	log       *zap.Logger
}

// NewHandler creates a new intelligence handler. ml and predictor may be nil
// when the external service is disabled.
func NewHandler(families Families, scorer Scorer, reporter Reporter, ml MLStatus, predictor Predictor, log *zap.Logger) *Handler {
	return &Handler{
		families:  families,
		scorer:    scorer,
		reporter:  reporter,
		ml:        ml,
		predictor: predictor,
		log:       log.Named("intelligence"),
	}
}

// Routes registers the intelligence routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	anyRole := auth.RequireRoles(auth.AllRoles...)
	planning := auth.RequireRoles(auth.RoleFieldManager, auth.RoleCoordinator, auth.RoleAdmin)

	r.With(anyRole).Get("/", h.Index)
	r.With(anyRole).Post("/score", h.Score)
	r.With(planning).Post("/score/batch", h.ScoreBatch)
	r.With(anyRole).Get("/score/{familyID}", h.ScoreFamily)
	r.With(planning).Get("/scores", h.ListScores)
	r.With(planning).Get("/global-insights", h.GlobalInsights)
	r.With(planning).Get("/global-insights/export", h.ExportInsights)
	r.With(planning).Post("/predict/area-needs", h.PredictAreaNeeds)
	r.With(planning).Post("/predict/health-patterns", h.HealthPatterns)
	r.With(planning).Post("/predict/migration-trends", h.MigrationTrends)
	r.With(anyRole).Get("/health", h.MLHealth)
	r.With(anyRole).Get("/info", h.MLInfo)

	return r
}

// Index lists the module's endpoints.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"module":      "intelligence",
		"description": "Vulnerability scoring and population insights",
		"endpoints": map[string]any{
			"scoring": map[string]string{
				"single": "POST /intelligence/score",
				"batch":  "POST /intelligence/score/batch",
				"get":    "GET /intelligence/score/{familyID}",
				"list":   "GET /intelligence/scores",
			},
			"insights": map[string]string{
				"global": "GET /intelligence/global-insights",
				"export": "GET /intelligence/global-insights/export",
			},
			"predictions": map[string]string{
				"areaNeeds":       "POST /intelligence/predict/area-needs",
				"healthPatterns":  "POST /intelligence/predict/health-patterns",
				"migrationTrends": "POST /intelligence/predict/migration-trends",
			},
			"status": map[string]string{
				"health": "GET /intelligence/health",
				"info":   "GET /intelligence/info",
			},
		},
	})
}

// Score scores an ad hoc family record from the body. A record without an id
// is given a fresh one so the result can be matched.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var rec family.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if rec.ID.IsZero() {
		rec.ID = types.NewID()
	}

	writeJSON(w, http.StatusOK, h.scorer.Score(r.Context(), rec))
}

// BatchRequest names the families to score.
type BatchRequest struct {
	FamilyIDs []string `json:"familyIds"`
}

// ScoreBatch scores the listed families. Unknown or malformed ids are
// reported in skipped rather than failing the batch.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if err := checkBatchSize("familyIds", len(req.FamilyIDs)); err != nil {
		writeError(w, err)
		return
	}

	recs, skipped, err := h.resolve(r.Context(), req.FamilyIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	results := h.scorer.ScoreBatch(r.Context(), recs)
	if results == nil {
		results = []scoring.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":    results,
		"total":   len(results),
		"skipped": skipped,
	})
}

func checkBatchSize(field string, n int) error {
	if n == 0 {
		return errors.Validation(field+" is required", map[string]string{field: "must not be empty"})
	}
	if n > maxBatchSize {
		return errors.Validation("too many families", map[string]string{field: fmt.Sprintf("at most %d", maxBatchSize)})
	}
	return nil
}

// resolve loads the named families in order. Malformed and unknown ids are
// returned in skipped; any other lookup failure aborts.
func (h *Handler) resolve(ctx context.Context, ids []string) ([]family.Record, []string, error) {
	var (
		recs    []family.Record
		skipped = []string{}
	)
	for _, raw := range ids {
		id, err := types.ParseID(raw)
		if err != nil {
			skipped = append(skipped, raw)
			continue
		}
		rec, err := h.families.Get(ctx, id)
		if err != nil {
			if appErr, ok := errors.As(err); ok && appErr.HTTPStatus == http.StatusNotFound {
				skipped = append(skipped, raw)
				continue
			}
			return nil, nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, skipped, nil
}

// ScoreFamily scores a registered family.
func (h *Handler) ScoreFamily(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "familyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid family ID"))
		return
	}

	rec, err := h.families.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.scorer.Score(r.Context(), *rec))
}

// ScoreFilter narrows a score listing.
type ScoreFilter struct {
	RiskLevel scoring.RiskLevel
	MinScore  *float64
	MaxScore  *float64
	Limit     int
	Offset    int
}

func (f ScoreFilter) match(res scoring.Result) bool {
	if f.RiskLevel != "" && res.RiskLevel != f.RiskLevel {
		return false
	}
	if f.MinScore != nil && res.Total < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && res.Total > *f.MaxScore {
		return false
	}
	return true
}

func parseScoreFilter(r *http.Request) (ScoreFilter, error) {
	q := r.URL.Query()
	details := map[string]string{}
	var f ScoreFilter

	if v := q.Get("riskLevel"); v != "" {
		f.RiskLevel = scoring.RiskLevel(strings.ToUpper(v))
		if !f.RiskLevel.Valid() {
			details["riskLevel"] = "unknown risk level"
		}
	}
	parseFloat := func(name string) *float64 {
		v := q.Get(name)
		if v == "" {
			return nil
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			details[name] = "must be a number"
			return nil
		}
		return &n
	}
	f.MinScore = parseFloat("minScore")
	f.MaxScore = parseFloat("maxScore")

	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	if len(details) > 0 {
		return f, errors.Validation("invalid score filter", details)
	}
	return f, nil
}

// ListScores scores every active family and returns the filtered page,
// highest score first.
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	filter, err := parseScoreFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	recs, err := h.families.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	matched := []scoring.Result{}
	for _, res := range h.scorer.ScoreBatch(r.Context(), recs) {
		if filter.match(res) {
			matched = append(matched, res)
		}
	}
	sortByScore(matched)

	page := matched[min(filter.Offset, len(matched)):]
	page = page[:min(filter.Limit, len(page))]
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  page,
		"total": len(matched),
	})
}

func sortByScore(results []scoring.Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Total > results[j].Total })
}

// GlobalInsights returns the population report; ?refresh=true bypasses the
// cache.
func (h *Handler) GlobalInsights(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.GlobalInsights(r.Context(), r.URL.Query().Get("refresh") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ExportInsights downloads the report as a spreadsheet.
func (h *Handler) ExportInsights(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.GlobalInsights(r.Context(), r.URL.Query().Get("refresh") == "true")
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := insights.ExportXLSX(report)
	if err != nil {
		h.log.Error("failed to export insights", zap.Error(err))
		writeError(w, errors.Internal(err))
		return
	}

	filename := fmt.Sprintf("insights-%s.xlsx", report.Timestamp.Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// MLHealth reports the external service health. An unreachable service is
// reported as down with a 200.
func (h *Handler) MLHealth(w http.ResponseWriter, r *http.Request) {
	if h.ml == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "disabled"})
		return
	}

	doc, err := h.ml.Health(r.Context())
	if err != nil {
		h.log.Warn("ML service health check failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "down",
			"error":      err.Error(),
			"checked_at": time.Now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// MLInfo returns the external model information.
func (h *Handler) MLInfo(w http.ResponseWriter, r *http.Request) {
	if h.ml == nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": "ML service disabled"})
		return
	}

	doc, err := h.ml.Info(r.Context())
	if err != nil {
		h.log.Warn("ML service info failed", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
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
