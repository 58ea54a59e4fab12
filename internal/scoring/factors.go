package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/medication"
	"github.com/omnia-aid/platform/internal/shared/errors"
)

// Factors are the four sub-scores of a vulnerability score.
type Factors struct {
	Economic int `json:"economic"`
	Health   int `json:"health"`
	Social   int `json:"social"`
	Urgency  int `json:"urgency"`
}

// Sum returns the uncapped total.
func (f Factors) Sum() int {
	return f.Economic + f.Health + f.Social + f.Urgency
}

// Validate rejects factors outside their documented bounds.
func (f Factors) Validate() error {
	details := map[string]string{}
	check := func(name string, v, max int) {
		if v < 0 || v > max {
			details[name] = "out of range"
		}
	}
	check("economic", f.Economic, MaxEconomic)
	check("health", f.Health, MaxHealth)
	check("social", f.Social, MaxSocial)
	check("urgency", f.Urgency, MaxUrgency)
	if len(details) > 0 {
		return errors.Validation("invalid factors", details)
	}
	return nil
}

// Calculator computes vulnerability factors from a family record. It holds
// no mutable state and is safe for concurrent use.
type Calculator struct {
	rules Rules
}

// NewCalculator creates a calculator over the given tables.
func NewCalculator(rules Rules) *Calculator {
	return &Calculator{rules: rules}
}

// Rules returns the calculator's tables.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// CalculateFactors computes all four factors. Missing data never fails; each
// factor has a default for absent inputs.
func (c *Calculator) CalculateFactors(rec family.Record, history []medication.Record, now time.Time) Factors {
	return Factors{
		Economic: c.Economic(rec),
		Health:   c.Health(rec, history),
		Social:   c.Social(rec),
		Urgency:  c.Urgency(rec.LastAidDate, now),
	}
}

// Economic scores income per capita and social status, in [0,40].
func (c *Calculator) Economic(rec family.Record) int {
	perCapita := rec.IncomePerCapita()

	factor := 0
	for _, band := range c.rules.IncomeBands {
		if perCapita < band.Below {
			factor = band.Points
			break
		}
	}

	if status := strings.ToLower(rec.SocialStatus); strings.TrimSpace(status) != "" {
		for _, rule := range c.rules.StatusRules {
			if !containsAny(status, rule.Terms) {
				continue
			}
			switch rule.Effect {
			case StatusFloor:
				factor = max(factor, rule.Value)
			case StatusAdd:
				factor += rule.Value
			case StatusSubtract:
				factor = max(factor-rule.Value, 0)
			}
			break
		}
	}

	return clamp(factor, 0, MaxEconomic)
}

// Health scores medication history, known conditions and household
// composition, in [0,30].
func (c *Calculator) Health(rec family.Record, history []medication.Record) int {
	conditions := strings.ToLower(strings.TrimSpace(rec.HealthConditions))
	if len(history) == 0 && conditions == "" && rec.ElderlyCount <= 0 && rec.DisabledCount <= 0 {
		return c.rules.MinimalHealth
	}

	factor := 0
	for _, band := range c.rules.VisitBands {
		if len(history) >= band.Min {
			factor = band.Points
			break
		}
	}

	factor += c.severity(history)

	for _, rule := range c.rules.Conditions {
		if containsAny(conditions, rule.Terms) {
			factor += rule.Points
		}
	}

	comp := c.rules.Composition
	if rec.ChildCount > comp.ManyChildren {
		factor += comp.ChildrenBonus
	}
	if rec.ElderlyCount > 0 {
		factor += comp.ElderlyBonus
	}
	if rec.DisabledCount > 0 {
		factor += comp.DisabledBonus
	}

	return clamp(factor, 0, MaxHealth)
}

// severity averages drug-class severity over every entry in the history,
// rounded and capped. Entries with a missing or unknown class weigh
// DefaultSeverity.
func (c *Calculator) severity(history []medication.Record) int {
	total, count := 0, 0
	for _, rec := range history {
		for _, entry := range rec.Entries {
			s, ok := c.rules.DrugSeverity[strings.ToLower(strings.TrimSpace(entry.DrugClass))]
			if !ok {
				s = c.rules.DefaultSeverity
			}
			total += s
			count++
		}
	}
	if count == 0 {
		return 0
	}
	avg := int(math.Round(float64(total) / float64(count)))
	return min(avg, c.rules.SeverityCap)
}

// Social scores housing, migration and family stability, in [0,20]. Each part
// keeps its own cap.
func (c *Calculator) Social(rec family.Record) int {
	housing := c.rules.Housing.score(rec.HousingType)
	migration := c.rules.Migration.score(rec.MigrationStatus)
	stability := c.rules.Stability.score(rec.SocialSituation)
	return clamp(housing+migration+stability, 0, MaxSocial)
}

func (l Ladder) score(text string) int {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return 0
	}
	for _, step := range l.Steps {
		if containsAny(lower, step.Terms) {
			return min(step.Points, l.Cap)
		}
	}
	return 0
}

// Urgency scores the time since the last aid distribution, in [1,10]. A family
// that was never aided gets the maximum.
func (c *Calculator) Urgency(lastAid *time.Time, now time.Time) int {
	if lastAid == nil || lastAid.IsZero() {
		return c.rules.NeverAided
	}

	days := int(math.Round(math.Abs(now.Sub(*lastAid).Hours()) / 24))
	for _, band := range c.rules.UrgencyBands {
		if days > band.Over {
			return clamp(band.Points, 0, MaxUrgency)
		}
	}
	return c.rules.UrgencyFloor
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
