package insights

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/omnia-aid/platform/internal/family"
	"github.com/omnia-aid/platform/internal/medication"
	"github.com/omnia-aid/platform/internal/resource"
	"github.com/omnia-aid/platform/internal/scoring"
	"github.com/omnia-aid/platform/internal/shared/types"
)

type scored struct {
	rec family.Record
	res scoring.Result
}

func groupByFamily(medRecords []medication.Record) map[types.ID][]medication.Record {
	out := make(map[types.ID][]medication.Record)
	for _, m := range medRecords {
		out[m.FamilyID] = append(out[m.FamilyID], m)
	}
	return out
}

func assemble(total int, results []scored, skipped int, medRecords []medication.Record, resources []resource.Item, now time.Time) *Report {
	r := &Report{
		Timestamp: now,
		Summary: Summary{
			TotalFamilies:         total,
			ScoredFamilies:        len(results),
			SkippedFamilies:       skipped,
			TotalResources:        len(resources),
			MedicationRecordCount: len(medRecords),
		},
	}

	var sum float64
	for _, s := range results {
		sum += s.res.Total
		if s.res.Total >= AtRiskScore {
			r.Summary.AtRiskCount++
		}
		if s.res.Total >= CriticalScore {
			r.Summary.CriticalCount++
		}
	}
	if len(results) > 0 {
		r.Summary.AverageVulnerability = int(math.Round(sum / float64(len(results))))
	}

	top := topScored(results, PriorityQueueSize)
	r.PriorityQueue = make([]PriorityItem, 0, len(top))
	for _, s := range top {
		r.PriorityQueue = append(r.PriorityQueue, PriorityItem{
			ID:        s.rec.ID,
			Code:      s.rec.Code,
			Name:      s.rec.DisplayName(),
			Score:     s.res.Total,
			RiskLevel: s.res.RiskLevel,
			TopNeed:   s.res.TopNeed(),
		})
	}

	r.MedicalTrends = medicalTrends(medRecords)
	r.ResourceShortages = shortages(resources)
	r.PredictedNeeds = predictNeeds(top)
	r.RedFlags = redFlags(r)
	return r
}

// topScored sorts by total descending, keeping input order among ties.
func topScored(results []scored, n int) []scored {
	sorted := make([]scored, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].res.Total > sorted[j].res.Total
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// tally counts keys in first-seen order.
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(key string, n int) {
	if _, ok := t.counts[key]; !ok {
		t.order = append(t.order, key)
	}
	t.counts[key] += n
}

func medicalTrends(medRecords []medication.Record) MedicalTrends {
	classes, names := newTally(), newTally()
	for _, m := range medRecords {
		for _, e := range m.ClassifiedEntries() {
			classes.add(strings.TrimSpace(e.DrugClass), 1)
		}
		for _, e := range m.Entries {
			if n := strings.TrimSpace(e.Name); n != "" {
				names.add(n, 1)
			}
		}
	}

	trends := MedicalTrends{
		Hotspots:       []Hotspot{},
		TopMedications: []MedicationCount{},
		RecordCount:    len(medRecords),
	}
	for _, class := range classes.order {
		count := classes.counts[class]
		if count < HotspotMinCount {
			continue
		}
		h := Hotspot{
			Trend:            "Augmentation des cas de: " + class,
			DrugClass:        class,
			AffectedFamilies: count,
			Severity:         LevelMedium,
			Recommendation:   fmt.Sprintf("Monitor and prepare supply of %s medications", class),
		}
		if count > HotspotHighCount {
			h.Severity = LevelHigh
			h.Recommendation = fmt.Sprintf("EMERGENCY: Increase stock of %s medications", class)
		}
		trends.Hotspots = append(trends.Hotspots, h)
	}

	meds := make([]MedicationCount, 0, len(names.order))
	for _, name := range names.order {
		meds = append(meds, MedicationCount{Name: name, Count: names.counts[name]})
	}
	sort.SliceStable(meds, func(i, j int) bool { return meds[i].Count > meds[j].Count })
	if len(meds) > TopMedicationsSize {
		meds = meds[:TopMedicationsSize]
	}
	trends.TopMedications = meds
	return trends
}

func shortages(resources []resource.Item) []Shortage {
	out := []Shortage{}
	for _, item := range resources {
		if !item.IsLowStock() {
			continue
		}
		urgency := LevelHigh
		if item.IsOutOfStock() {
			urgency = LevelCritical
		}
		out = append(out, Shortage{
			ResourceID: item.ID,
			Item:       item.Name,
			Category:   item.Category,
			Current:    item.Quantity,
			Threshold:  item.MinThreshold,
			Unit:       item.Unit,
			Urgency:    urgency,
		})
	}
	return out
}

// predictNeeds accumulates demand for the priority families by score band
// and household composition.
func predictNeeds(top []scored) []PredictedNeed {
	t := newTally()
	for _, s := range top {
		switch {
		case s.res.Total >= CriticalScore:
			t.add(NeedFood, 2)
			t.add(NeedMedical, 2)
			t.add(NeedHygiene, 1)
		case s.res.Total >= AtRiskScore:
			t.add(NeedFood, 1)
			t.add(NeedMedical, 1)
		}
		if s.rec.ChildCount > 0 {
			t.add(NeedSchool, 1)
			t.add(NeedClothing, 1)
		}
		if s.rec.ElderlyCount > 0 {
			t.add(NeedMedical, 1)
		}
	}

	out := make([]PredictedNeed, 0, len(t.order))
	for _, item := range t.order {
		n := t.counts[item]
		out = append(out, PredictedNeed{Item: item, PredictedQuantity: n, Priority: needPriority(n)})
	}
	return out
}

func needPriority(n int) string {
	switch {
	case n >= 5:
		return LevelHigh
	case n >= 3:
		return LevelMedium
	default:
		return LevelLow
	}
}

func redFlags(r *Report) []string {
	flags := []string{}
	for _, s := range r.ResourceShortages {
		if s.Urgency == LevelCritical {
			flags = append(flags, fmt.Sprintf("CRITICAL: %s out of stock", s.Item))
		}
	}
	if r.Summary.CriticalCount > 0 {
		flags = append(flags, fmt.Sprintf("%d families in critical condition", r.Summary.CriticalCount))
	}
	return flags
}
