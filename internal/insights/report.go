// Package insights derives population-wide analytics from scored families,
// medication records and the resource inventory.
package insights

import (
	"time"

	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/omnia-aid/platform/internal/shared/types"
)

// Score bands used by the summary and the needs prediction.
const (
	AtRiskScore   = 65
	CriticalScore = 80

	PriorityQueueSize  = 10
	TopMedicationsSize = 5
	HotspotMinCount    = 3
	HotspotHighCount   = 10
)

// Report is the global insight report.
type Report struct {
	Timestamp         time.Time       `json:"timestamp"`
	Summary           Summary         `json:"systemSummary"`
	PriorityQueue     []PriorityItem  `json:"priorityQueue"`
	MedicalTrends     MedicalTrends   `json:"medicalTrends"`
	ResourceShortages []Shortage      `json:"resourceShortages"`
	PredictedNeeds    []PredictedNeed `json:"predictedNeeds"`
	RedFlags          []string        `json:"redFlags"`
}

// Summary holds the headline counters.
type Summary struct {
	TotalFamilies         int `json:"totalFamilies"`
	ScoredFamilies        int `json:"scoredFamilies"`
	SkippedFamilies       int `json:"skippedFamilies"`
	TotalResources        int `json:"totalResources"`
	AverageVulnerability  int `json:"averageVulnerability"`
	AtRiskCount           int `json:"atRiskCount"`
	CriticalCount         int `json:"criticalCount"`
	MedicationRecordCount int `json:"medicationRecordCount"`
}

// PriorityItem is one family in the priority queue.
type PriorityItem struct {
	ID        types.ID          `json:"id"`
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Score     float64           `json:"score"`
	RiskLevel scoring.RiskLevel `json:"riskLevel"`
	TopNeed   string            `json:"topNeed"`
}

// MedicalTrends summarizes the medication corpus.
type MedicalTrends struct {
	Hotspots       []Hotspot         `json:"hotspots"`
	TopMedications []MedicationCount `json:"topMedications"`
	RecordCount    int               `json:"recordCount"`
}

// Hotspot is a drug class seen often enough to plan stock for.
type Hotspot struct {
	Trend            string `json:"trend"`
	DrugClass        string `json:"drugClass"`
	AffectedFamilies int    `json:"affectedFamilies"`
	Severity         string `json:"severity"`
	Recommendation   string `json:"recommendation"`
}

// MedicationCount is a medication name and how often it appears.
type MedicationCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Shortage is a resource at or below its minimum threshold.
type Shortage struct {
	ResourceID types.ID `json:"resourceId"`
	Item       string   `json:"item"`
	Category   string   `json:"category"`
	Current    float64  `json:"current"`
	Threshold  float64  `json:"threshold"`
	Unit       string   `json:"unit"`
	Urgency    string   `json:"urgency"`
}

// PredictedNeed is the expected demand for an aid category.
type PredictedNeed struct {
	Item              string `json:"item"`
	PredictedQuantity int    `json:"predictedQuantity"`
	Priority          string `json:"priority"`
}

// Severity and urgency labels.
const (
	LevelCritical = "CRITICAL"
	LevelHigh     = "HIGH"
	LevelMedium   = "MEDIUM"
	LevelLow      = "LOW"
)

// Aid categories the needs prediction counts.
const (
	NeedFood     = "Colis Alimentaire"
	NeedMedical  = "Médicaments"
	NeedHygiene  = "Produits d'Hygiène"
	NeedSchool   = "Fournitures Scolaires"
	NeedClothing = "Vêtements"
)
