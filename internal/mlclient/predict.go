package mlclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/scoring"
)

type areaNeedsRequest struct {
	BeneficiariesByArea map[string][]Payload      `json:"beneficiaries_by_area"`
	ScoresByID          map[string]scoring.Result `json:"scores_by_id"`
}

type healthPatternsRequest struct {
	Beneficiaries []Payload        `json:"beneficiaries"`
	Scores        []scoring.Result `json:"scores"`
}

func payloads(recs []family.Record) []Payload {
	out := make([]Payload, len(recs))
	for i, rec := range recs {
		out[i] = NewPayload(scoring.Subject{Record: rec})
	}
	return out
}

// PredictAreaNeeds asks for food, medical and housing needs per area via
// POST /predict/area-needs. scores are keyed by family id.
func (c *Client) PredictAreaNeeds(ctx context.Context, byArea map[string][]family.Record, scores map[string]scoring.Result) ([]map[string]any, error) {
	req := areaNeedsRequest{
		BeneficiariesByArea: make(map[string][]Payload, len(byArea)),
		ScoresByID:          scores,
	}
	for area, recs := range byArea {
		req.BeneficiariesByArea[area] = payloads(recs)
	}

	var out struct {
		Predictions []map[string]any `json:"predictions"`
	}
	if err := c.postDecode(ctx, "/predict/area-needs", req, &out); err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

// DetectHealthPatterns asks for outbreak alerts via POST
// /predict/health-patterns. scores must be aligned with recs.
func (c *Client) DetectHealthPatterns(ctx context.Context, recs []family.Record, scores []scoring.Result) ([]map[string]any, error) {
	if len(recs) != len(scores) {
		return nil, fmt.Errorf("health patterns: %d families but %d scores", len(recs), len(scores))
	}

	var out struct {
		Alerts []map[string]any `json:"alerts"`
	}
	req := healthPatternsRequest{Beneficiaries: payloads(recs), Scores: scores}
	if err := c.postDecode(ctx, "/predict/health-patterns", req, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// MigrationTrends asks for the displacement breakdown via POST
// /predict/migration-trends.
func (c *Client) MigrationTrends(ctx context.Context, recs []family.Record) (map[string]any, error) {
	var out struct {
		Trends map[string]any `json:"trends"`
	}
	if err := c.postDecode(ctx, "/predict/migration-trends", payloads(recs), &out); err != nil {
		return nil, err
	}
	return out.Trends, nil
}

func (c *Client) postDecode(ctx context.Context, path string, payload, out any) error {
	body, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", scoring.ErrMalformed, err)
	}
	return nil
}
