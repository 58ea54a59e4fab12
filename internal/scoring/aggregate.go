package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/medication"
)

// Aggregate combines the four factors into a local score result. Factors
// outside their bounds are rejected.
func (c *Calculator) Aggregate(rec family.Record, f Factors, now time.Time) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	return c.aggregate(rec, f, now), nil
}

// Score computes the full local result for a record and its history.
func (c *Calculator) Score(rec family.Record, history []medication.Record, now time.Time) Result {
	return c.aggregate(rec, c.CalculateFactors(rec, history, now), now)
}

func (c *Calculator) aggregate(rec family.Record, f Factors, now time.Time) Result {
	total := min(f.Sum(), MaxTotal)
	return Result{
		ID:                   fmt.Sprintf("local-%d", now.UnixMilli()),
		FamilyID:             rec.ID,
		Total:                float64(total),
		Economic:             float64(f.Economic),
		Health:               float64(f.Health),
		Social:               float64(f.Social),
		Urgency:              float64(f.Urgency),
		RiskLevel:            c.RiskLevelFor(float64(total)),
		Recommendations:      c.Recommendations(rec, f),
		Confidence:           c.rules.LocalConfidence,
		FeatureContributions: contributions(f),
		Source:               SourceLocal,
		CalculatedAt:         now,
	}
}

// RiskLevelFor maps a total to its risk level, highest threshold first.
func (c *Calculator) RiskLevelFor(total float64) RiskLevel {
	for _, t := range c.rules.RiskThresholds {
		if total >= t.Min {
			return t.Level
		}
	}
	return RiskMinimal
}

// Recommendations lists the actions implied by the factors, in the order
// economic, health, housing, urgency. When no rule fires the list holds the
// single monitoring recommendation.
func (c *Calculator) Recommendations(rec family.Record, f Factors) []string {
	r := c.rules
	var out []string

	switch {
	case f.Economic >= r.EconomicHigh:
		out = append(out, r.Texts.EmergencyFinancial, r.Texts.JobTraining)
	case f.Economic >= r.EconomicModerate:
		out = append(out, r.Texts.RegularEconomic)
	}

	switch {
	case f.Health >= r.HealthHigh:
		out = append(out, r.Texts.MedicalReferral, r.Texts.MonthlyCheckups)
	case f.Health >= r.HealthModerate:
		out = append(out, r.Texts.QuarterlyFollowUp)
	}

	if c.isPrecarious(rec.HousingType) || f.Social >= r.SocialHousing {
		out = append(out, r.Texts.SafeHousing)
	}

	if f.Urgency >= r.UrgencyHigh {
		out = append(out, r.Texts.UrgentDistribution)
	}

	if len(out) == 0 {
		out = append(out, r.Texts.ContinueMonitoring)
	}
	return out
}

// isPrecarious matches the whole housing type, not a substring.
func (c *Calculator) isPrecarious(housing string) bool {
	h := strings.ToLower(strings.TrimSpace(housing))
	for _, term := range c.rules.PrecariousHousing {
		if h == term {
			return true
		}
	}
	return false
}
