package mlclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func scored(rec family.Record) scoring.Result {
	return scoring.Result{
		FamilyID:     rec.ID,
		Total:        72,
		RiskLevel:    scoring.RiskHigh,
		Confidence:   0.8,
		CalculatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPredictAreaNeeds(t *testing.T) {
	rec := subject().Record
	var got struct {
		BeneficiariesByArea map[string][]Payload       `json:"beneficiaries_by_area"`
		ScoresByID          map[string]json.RawMessage `json:"scores_by_id"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/area-needs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"predictions": []map[string]any{{
				"area": "Nord", "total_families": 1, "food_aid_needed": 1, "critical_risk_families": 0,
			}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	out, err := c.PredictAreaNeeds(context.Background(),
		map[string][]family.Record{"Nord": {rec}},
		map[string]scoring.Result{rec.ID.String(): scored(rec)})
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "Nord", out[0]["area"])
	require.Len(t, got.BeneficiariesByArea["Nord"], 1)
	assert.Equal(t, rec.ID.String(), got.BeneficiariesByArea["Nord"][0].ID)
	assert.Contains(t, got.ScoresByID, rec.ID.String())
}

func TestDetectHealthPatterns(t *testing.T) {
	rec := subject().Record
	var got struct {
		Beneficiaries []Payload         `json:"beneficiaries"`
		Scores        []json.RawMessage `json:"scores"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/health-patterns", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"success","total_analyzed":1,"alerts":[{"alert_type":"VULNERABLE_HEALTH_GROUP","severity":"HIGH"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	alerts, err := c.DetectHealthPatterns(context.Background(), []family.Record{rec}, []scoring.Result{scored(rec)})
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, "HIGH", alerts[0]["severity"])
	assert.Len(t, got.Beneficiaries, 1)
	assert.Len(t, got.Scores, 1)

	_, err = c.DetectHealthPatterns(context.Background(), []family.Record{rec}, nil)
	assert.Error(t, err)
}

func TestMigrationTrends(t *testing.T) {
	rec := subject().Record
	var got []Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/migration-trends", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"success","trends":{"total_analyzed":1,"internal_displacement":0,"returnees":0}}`))
	}))
	defer srv.Close()

	trends, err := New(srv.URL, time.Second, zap.NewNop()).MigrationTrends(context.Background(), []family.Record{rec})
	require.NoError(t, err)

	assert.Equal(t, float64(1), trends["total_analyzed"])
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID.String(), got[0].ID)
}

func TestPredictionErrors(t *testing.T) {
	rec := subject().Record

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	_, err := New(srv.URL, time.Second, zap.NewNop()).MigrationTrends(context.Background(), []family.Record{rec})
	require.Error(t, err)
	assert.False(t, stderrors.Is(err, scoring.ErrMalformed))

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"alerts":"none"}`))
	}))
	defer garbled.Close()
	_, err = New(garbled.URL, time.Second, zap.NewNop()).DetectHealthPatterns(context.Background(),
		[]family.Record{rec}, []scoring.Result{scored(rec)})
	assert.ErrorIs(t, err, scoring.ErrMalformed)
}
