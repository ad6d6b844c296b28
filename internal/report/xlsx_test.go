package report

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/pipeline"
)

func TestXLSXWriter_ReportSheetWithAttribution(t *testing.T) {
	w := NewXLSXWriter()
	ctx := context.Background()

	headers := []string{"SubId1", "Payout"}
	rows := [][]string{
		{"tigers_1", "10.00"},
		{"mystery", "2.00"},
	}
	records := []model.ClassifiedRecord{
		{RowIndex: 0, TeamID: "team_a", MatchedRule: &model.AttributionRule{
			Kind:    model.RuleSubIDPattern,
			Pattern: "tiger",
		}},
		{RowIndex: 1},
	}
	meta := pipeline.ReportMeta{ReportID: "r1", ReportName: "Action Listing", RowCount: 2}
	require.NoError(t, w.PublishReport(ctx, meta, headers, rows, records))

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, w.Save(path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["Action Listing"]
	require.True(t, ok)

	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Team", sheet.Rows[0].Cells[2].String())
	assert.Equal(t, "Matched Rule", sheet.Rows[0].Cells[3].String())

	assert.Equal(t, "tigers_1", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "team_a", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "subid_pattern:tiger", sheet.Rows[1].Cells[3].String())

	assert.Equal(t, model.UnassignedTeam, sheet.Rows[2].Cells[2].String())
	assert.Equal(t, "", sheet.Rows[2].Cells[3].String())
}

func TestXLSXWriter_TotalsSheet(t *testing.T) {
	w := NewXLSXWriter()

	teamA := model.NewTeamTotals("team_a")
	teamA.Add(model.ClassifiedRecord{TeamID: "team_a", SKU: "SKU-1", Units: 2, Revenue: 10})
	teamA.Add(model.ClassifiedRecord{TeamID: "team_a", SKU: "SKU-2", Units: 1, Revenue: 5.5})
	unassigned := model.NewTeamTotals(model.UnassignedTeam)
	unassigned.Add(model.ClassifiedRecord{Revenue: 2})

	totals := map[string]*model.TeamTotals{
		"team_a":             teamA,
		model.UnassignedTeam: unassigned,
	}
	require.NoError(t, w.PublishTotals(context.Background(), []string{"team_a", model.UnassignedTeam}, totals))

	path := filepath.Join(t.TempDir(), "totals.xlsx")
	require.NoError(t, w.Save(path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet["Team Totals"]
	require.True(t, ok)

	// Header, team_a summary, two SKU rows, unassigned summary.
	require.Len(t, sheet.Rows, 5)
	assert.Equal(t, "team_a", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "2", sheet.Rows[1].Cells[3].String())

	assert.Equal(t, "SKU-1", sheet.Rows[2].Cells[1].String())
	assert.Equal(t, "2", sheet.Rows[2].Cells[2].String())
	assert.Equal(t, "SKU-2", sheet.Rows[3].Cells[1].String())

	assert.Equal(t, model.UnassignedTeam, sheet.Rows[4].Cells[0].String())
}

func TestXLSXWriter_SheetNameSanitization(t *testing.T) {
	w := NewXLSXWriter()
	ctx := context.Background()

	long := pipeline.ReportMeta{ReportName: "Performance by SubID / Partner / Campaign [monthly]"}
	require.NoError(t, w.PublishReport(ctx, long, []string{"A"}, nil, nil))

	// Same name again gets a numeric suffix instead of colliding.
	require.NoError(t, w.PublishReport(ctx, long, []string{"A"}, nil, nil))

	// No name at all falls back to the report id, then to a counter.
	require.NoError(t, w.PublishReport(ctx, pipeline.ReportMeta{ReportID: "r7"}, []string{"A"}, nil, nil))
	require.NoError(t, w.PublishReport(ctx, pipeline.ReportMeta{}, []string{"A"}, nil, nil))

	path := filepath.Join(t.TempDir(), "names.xlsx")
	require.NoError(t, w.Save(path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 4)
	for _, sheet := range f.Sheets {
		assert.LessOrEqual(t, len(sheet.Name), 31)
		assert.NotContains(t, sheet.Name, "[")
		assert.NotContains(t, sheet.Name, "/")
	}
	_, ok := f.Sheet["r7"]
	assert.True(t, ok)
}
