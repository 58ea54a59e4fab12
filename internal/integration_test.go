package internal

import (
	"context"
	"testing"
	"time"

	"github.com/omnia-aid/platform/internal/audit"
	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/insights"
	"github.com/omnia-aid/platform/internal/medication"
	"github.com/omnia-aid/platform/internal/resource"
	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/omnia-aid/platform/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func income(v float64) *float64 { return &v }

// TestVulnerabilityWorkflow follows two families from intake through scoring
// to the global report.
func TestVulnerabilityWorkflow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastWeek := now.AddDate(0, 0, -7)

	vulnerable := family.Record{
		ID:               types.NewID(),
		Code:             "FAM-001",
		MemberCount:      6,
		ChildCount:       4,
		ElderlyCount:     1,
		MonthlyIncome:    income(50),
		HousingType:      "sans abri",
		SocialStatus:     "sans emploi",
		HealthConditions: "cancer",
		Active:           true,
	}
	stable := family.Record{
		ID:            types.NewID(),
		Code:          "FAM-002",
		MemberCount:   2,
		MonthlyIncome: income(3000),
		HousingType:   "propriétaire",
		SocialStatus:  "ouvrier",
		LastAidDate:   &lastWeek,
		Active:        true,
	}
	require.NoError(t, vulnerable.Validate())
	require.NoError(t, stable.Validate())

	history := []medication.Record{{
		ID:       types.NewID(),
		FamilyID: vulnerable.ID,
		Entries:  []medication.Entry{{Name: "Cisplatine", DrugClass: "chemotherapy"}},
	}}

	// 1. Local scoring orders the families
	calc := scoring.NewCalculator(scoring.DefaultRules())
	high := calc.Score(vulnerable, history, now)
	low := calc.Score(stable, nil, now)

	assert.Greater(t, high.Total, low.Total)
	assert.LessOrEqual(t, high.Total, float64(scoring.MaxTotal))
	assert.NotEmpty(t, high.Recommendations)

	// 2. The global report ranks the vulnerable family first and flags stock
	inventory := []resource.Item{
		{ID: types.NewID(), Name: "Lait infantile", Category: "food", Quantity: 0, MinThreshold: 5, Unit: "boîtes"},
		{ID: types.NewID(), Name: "Riz", Category: "food", Quantity: 200, MinThreshold: 20, Unit: "kg"},
	}

	engine := insights.NewEngine(calc, 4, zap.NewNop())
	report, err := engine.Compute(context.Background(), []family.Record{stable, vulnerable}, history, inventory)
	require.NoError(t, err)

	require.Len(t, report.PriorityQueue, 2)
	assert.Equal(t, vulnerable.Code, report.PriorityQueue[0].Code)
	assert.Equal(t, 2, report.Summary.ScoredFamilies)
	require.Len(t, report.ResourceShortages, 1)
	assert.Equal(t, insights.LevelCritical, report.ResourceShortages[0].Urgency)
	assert.Contains(t, report.RedFlags, "CRITICAL: Lait infantile out of stock")

	// 3. The report exports to a spreadsheet
	xlsx, err := insights.ExportXLSX(report)
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)
}

// TestAuditTrailWorkflow chains the audit entries written while a family is
// registered, visited and deactivated.
func TestAuditTrailWorkflow(t *testing.T) {
	actorID := types.NewID()
	familyID := types.NewID().String()

	steps := []struct {
		actor        audit.ActorType
		action       string
		resourceType string
		changes      map[string]any
	}{
		{audit.ActorTypeUser, audit.ActionFamilyCreated, "family", map[string]any{"code": "FAM-003"}},
		{audit.ActorTypeUser, audit.ActionMedicationRecorded, "medication", map[string]any{"entries": 2}},
		{audit.ActorTypeUser, audit.ActionVisitRecorded, "visit", map[string]any{"aids": []any{"Colis Alimentaire"}}},
		{audit.ActorTypeSystem, audit.ActionFamilyDeactivated, "family", nil},
	}

	var chain []*audit.AuditEntry
	prevHash := ""
	for i, s := range steps {
		actor := actorID
		if s.actor == audit.ActorTypeSystem {
			actor = ""
		}
		entry := audit.NewAuditEntry(s.actor, actor, s.action, s.resourceType, familyID, s.changes, prevHash)
		entry.Sequence = int64(i + 1)
		chain = append(chain, entry)
		prevHash = entry.Hash
	}

	newestFirst := func() []audit.AuditEntry {
		out := make([]audit.AuditEntry, 0, len(chain))
		for i := len(chain) - 1; i >= 0; i-- {
			out = append(out, *chain[i])
		}
		return out
	}

	result := audit.Verify(newestFirst(), false)
	require.True(t, result.Valid, "violations: %v", result.Violations)
	assert.Equal(t, len(steps), result.Checked)

	// Rewriting history is detected
	chain[2].Changes["aids"] = []any{"Vêtements"}
	result = audit.Verify(newestFirst(), true)
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.ContentInvalid)
}
