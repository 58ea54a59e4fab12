package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/omnia-aid/platform/internal/shared/errors"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Source tells where a score was computed.
type Source string

const (
	SourceML    Source = "ml"
	SourceLocal Source = "local"
)

// FeatureContribution is one factor's share of the score.
type FeatureContribution struct {
	Feature     string  `json:"feature"`
	Value       float64 `json:"value"`
	MaxPossible float64 `json:"max_possible"`
}

// Result is a vulnerability score. The JSON shape is the one the ML scoring
// service returns, so both paths serialize identically.
type Result struct {
	ID                   string                `json:"id,omitempty"`
	FamilyID             types.ID              `json:"beneficiary_id"`
	Total                float64               `json:"vulnerabilityScore"`
	Economic             float64               `json:"economicFactor"`
	Health               float64               `json:"healthFactor"`
	Social               float64               `json:"socialFactor"`
	Urgency              float64               `json:"urgencyFactor"`
	RiskLevel            RiskLevel             `json:"riskLevel"`
	Recommendations      []string              `json:"recommendations"`
	Confidence           float64               `json:"confidenceScore"`
	FeatureContributions []FeatureContribution `json:"featureContributions"`
	Source               Source                `json:"source,omitempty"`
	CalculatedAt         time.Time             `json:"calculated_at"`
}

// serviceTimeLayouts are the calculated_at forms accepted from the scoring
// service. Naive timestamps carry no zone and are read as UTC.
var serviceTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseServiceTime parses a calculated_at value.
func ParseServiceTime(s string) (time.Time, error) {
	for _, layout := range serviceTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON accepts calculated_at with or without a zone offset.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	aux := struct {
		*plain
		CalculatedAt *string `json:"calculated_at"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.CalculatedAt = time.Time{}
	if aux.CalculatedAt != nil && *aux.CalculatedAt != "" {
		t, err := ParseServiceTime(*aux.CalculatedAt)
		if err != nil {
			return err
		}
		r.CalculatedAt = t
	}
	return nil
}

// Validate rejects results with out-of-range scores or an unknown risk level.
func (r Result) Validate() error {
	details := map[string]string{}
	check := func(name string, v, hi float64) {
		if math.IsNaN(v) || v < 0 || v > hi {
			details[name] = "out of range"
		}
	}
	check("vulnerabilityScore", r.Total, MaxTotal)
	check("economicFactor", r.Economic, MaxEconomic)
	check("healthFactor", r.Health, MaxHealth)
	check("socialFactor", r.Social, MaxSocial)
	check("urgencyFactor", r.Urgency, MaxUrgency)
	check("confidenceScore", r.Confidence, 1)
	if !r.RiskLevel.Valid() {
		details["riskLevel"] = "unknown risk level"
	}
	if r.FamilyID.IsZero() {
		details["beneficiary_id"] = "missing"
	}
	if len(details) > 0 {
		return errors.Validation("invalid score result", details)
	}
	return nil
}

// TopNeed returns the first recommendation, or an empty string.
func (r Result) TopNeed() string {
	if len(r.Recommendations) == 0 {
		return ""
	}
	return r.Recommendations[0]
}

func contributions(f Factors) []FeatureContribution {
	return []FeatureContribution{
		{Feature: "Statut Économique", Value: float64(f.Economic), MaxPossible: MaxEconomic},
		{Feature: "Besoins Santé", Value: float64(f.Health), MaxPossible: MaxHealth},
		{Feature: "Facteurs Sociaux", Value: float64(f.Social), MaxPossible: MaxSocial},
		{Feature: "Urgence", Value: float64(f.Urgency), MaxPossible: MaxUrgency},
	}
}
