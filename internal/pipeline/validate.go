package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

// injectionSignatures are markup/script patterns that should never appear in
// report cells. Flagged during validation and stripped during sanitization.
var injectionSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?is)<iframe\b`),
}

// dupSeparator joins cells for duplicate hashing. Unit separator is unlikely
// to occur in report data, so joined rows collide only when cells match.
const dupSeparator = "\x1f"

// Validate inspects rows without mutating them: all-empty rows, exact
// duplicate rows (first occurrence kept, later occurrences flagged, none
// dropped) and cells carrying injection signatures. The report is advisory
// and never blocks the pipeline.
func Validate(headers []string, rows [][]string) model.ValidationReport {
	report := model.ValidationReport{
		Stats: model.ValidationStats{TotalRows: len(rows)},
	}

	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		if emptyRow(row) {
			report.Stats.EmptyRows++
			report.Issues = append(report.Issues, model.Issue{
				Kind:     model.IssueEmptyRow,
				RowIndex: i,
				Message:  "row has no non-empty cells",
			})
			continue
		}

		key := strings.Join(row, dupSeparator)
		if first, ok := seen[key]; ok {
			report.Stats.DuplicateRows++
			report.Issues = append(report.Issues, model.Issue{
				Kind:     model.IssueDuplicateRow,
				RowIndex: i,
				Message:  fmt.Sprintf("exact duplicate of row %d", first),
			})
		} else {
			seen[key] = i
		}

		for col, cell := range row {
			if hasInjection(cell) {
				report.Stats.InvalidData++
				report.Issues = append(report.Issues, model.Issue{
					Kind:        model.IssueInvalidData,
					RowIndex:    i,
					ColumnIndex: col,
					Message:     columnName(headers, col) + " contains markup or script content",
				})
			}
		}
	}

	return report
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func hasInjection(cell string) bool {
	for _, sig := range injectionSignatures {
		if sig.MatchString(cell) {
			return true
		}
	}
	return false
}

func columnName(headers []string, col int) string {
	if col < len(headers) && headers[col] != "" {
		return "column " + headers[col]
	}
	return fmt.Sprintf("column %d", col)
}
