package insights

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook.
const (
	SheetSummary   = "Summary"
	SheetPriority  = "Priority Queue"
	SheetShortages = "Shortages"
	SheetNeeds     = "Predicted Needs"
	SheetHotspots  = "Medical Hotspots"
)

type sheet struct {
	name   string
	header []string
	widths []float64
	rows   [][]any
}

// ExportXLSX renders r as a workbook with one sheet per report section.
func ExportXLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, s := range sheets(r) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s, headerStyle); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func sheets(r *Report) []sheet {
	sum := r.Summary
	summary := sheet{
		name:   SheetSummary,
		header: []string{"Metric", "Value"},
		widths: []float64{32, 24},
		rows: [][]any{
			{"Generated at", r.Timestamp.Format("2006-01-02 15:04:05")},
			{"Total families", sum.TotalFamilies},
			{"Scored families", sum.ScoredFamilies},
			{"Skipped families", sum.SkippedFamilies},
			{"Average vulnerability", sum.AverageVulnerability},
			{"At risk (>= 65)", sum.AtRiskCount},
			{"Critical (>= 80)", sum.CriticalCount},
			{"Medication records", sum.MedicationRecordCount},
			{"Resources", sum.TotalResources},
		},
	}
	for _, flag := range r.RedFlags {
		summary.rows = append(summary.rows, []any{"Red flag", flag})
	}

	priority := sheet{
		name:   SheetPriority,
		header: []string{"Rank", "Code", "Name", "Score", "Risk level", "Top need"},
		widths: []float64{8, 14, 28, 10, 14, 48},
	}
	for i, p := range r.PriorityQueue {
		priority.rows = append(priority.rows, []any{i + 1, p.Code, p.Name, p.Score, string(p.RiskLevel), p.TopNeed})
	}

	short := sheet{
		name:   SheetShortages,
		header: []string{"Item", "Category", "Current", "Threshold", "Unit", "Urgency"},
		widths: []float64{28, 20, 12, 12, 10, 12},
	}
	for _, s := range r.ResourceShortages {
		short.rows = append(short.rows, []any{s.Item, s.Category, s.Current, s.Threshold, s.Unit, s.Urgency})
	}

	needs := sheet{
		name:   SheetNeeds,
		header: []string{"Item", "Predicted quantity", "Priority"},
		widths: []float64{28, 20, 12},
	}
	for _, n := range r.PredictedNeeds {
		needs.rows = append(needs.rows, []any{n.Item, n.PredictedQuantity, n.Priority})
	}

	hotspots := sheet{
		name:   SheetHotspots,
		header: []string{"Drug class", "Occurrences", "Severity", "Recommendation"},
		widths: []float64{24, 14, 12, 56},
	}
	for _, h := range r.MedicalTrends.Hotspots {
		hotspots.rows = append(hotspots.rows, []any{h.DrugClass, h.AffectedFamilies, h.Severity, h.Recommendation})
	}

	return []sheet{summary, priority, short, needs, hotspots}
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	header := make([]any, len(s.header))
	for i, h := range s.header {
		header[i] = h
	}
	if err := f.SetSheetRow(s.name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", s.name, err)
	}

	last, err := excelize.CoordinatesToCellName(len(s.header), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", s.name, err)
	}

	for i, w := range s.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(s.name, col, col, w); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", s.name, i+2, err)
		}
	}
	return nil
}
