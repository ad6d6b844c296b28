// Package report renders pipeline output as an XLSX workbook: one sheet per
// downloaded report with attribution columns appended, plus a totals sheet.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/pipeline"
)

// XLSXWriter accumulates published reports into an in-memory workbook.
// It is not safe for concurrent use; the pipeline publishes sequentially.
// Nothing touches disk until Save.
type XLSXWriter struct {
	file      *xlsx.File
	sheets    map[string]bool
	published int
}

// NewXLSXWriter creates an empty workbook writer.
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{
		file:   xlsx.NewFile(),
		sheets: make(map[string]bool),
	}
}

var _ pipeline.Reporter = (*XLSXWriter)(nil)

// PublishReport adds one sheet holding the report's sanitized rows with the
// attribution outcome appended as extra columns.
func (w *XLSXWriter) PublishReport(_ context.Context, meta pipeline.ReportMeta, headers []string, rows [][]string, records []model.ClassifiedRecord) error {
	name := w.sheetName(meta)
	sheet, err := w.file.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add sheet %q", name)
	}
	w.published++

	header := sheet.AddRow()
	for _, h := range headers {
		header.AddCell().Value = h
	}
	header.AddCell().Value = "Team"
	header.AddCell().Value = "Matched Rule"

	// records parallels rows by index; a short records slice leaves the
	// attribution columns blank rather than failing the publish.
	for i, row := range rows {
		out := sheet.AddRow()
		for _, cell := range row {
			out.AddCell().Value = cell
		}
		if i < len(records) {
			out.AddCell().Value = records[i].Team()
			out.AddCell().Value = ruleLabel(records[i].MatchedRule)
		}
	}
	return nil
}

// PublishTotals adds the per-team totals sheet: one summary row per team in
// first-encounter order, followed by that team's SKU breakdown.
func (w *XLSXWriter) PublishTotals(_ context.Context, teams []string, totals map[string]*model.TeamTotals) error {
	sheet, err := w.file.AddSheet("Team Totals")
	if err != nil {
		return eris.Wrap(err, "report: add totals sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Team", "SKU", "Units", "Conversions", "Revenue"} {
		header.AddCell().Value = h
	}

	for _, team := range teams {
		tt, ok := totals[team]
		if !ok {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().Value = team
		row.AddCell()
		row.AddCell()
		row.AddCell().SetInt(tt.ConversionCount)
		row.AddCell().SetFloatWithFormat(tt.Revenue, "0.00")

		for _, sku := range tt.SKUs() {
			srow := sheet.AddRow()
			srow.AddCell()
			srow.AddCell().Value = sku.SKU
			srow.AddCell().SetInt(sku.Units)
			srow.AddCell()
			srow.AddCell().SetFloatWithFormat(sku.Revenue, "0.00")
		}
	}
	return nil
}

// Save writes the workbook. An empty workbook still saves, carrying only
// whatever sheets were published.
func (w *XLSXWriter) Save(path string) error {
	if err := w.file.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

// sheetName derives a unique, XLSX-legal sheet name from the report name.
// Excel caps names at 31 chars and forbids a handful of characters.
func (w *XLSXWriter) sheetName(meta pipeline.ReportMeta) string {
	name := strings.TrimSpace(meta.ReportName)
	if name == "" {
		name = meta.ReportID
	}
	if name == "" {
		name = fmt.Sprintf("Report %d", w.published+1)
	}
	name = illegalSheetChars.Replace(name)
	if len(name) > 31 {
		name = name[:31]
	}

	base := name
	for n := 2; w.sheets[name]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		trimmed := base
		if len(trimmed)+len(suffix) > 31 {
			trimmed = trimmed[:31-len(suffix)]
		}
		name = trimmed + suffix
	}
	w.sheets[name] = true
	return name
}

var illegalSheetChars = strings.NewReplacer(
	"[", "", "]", "", "*", "", "?", "", ":", "", "/", "-", "\\", "-",
)

func ruleLabel(rule *model.AttributionRule) string {
	if rule == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", rule.Kind, rule.Pattern)
}
