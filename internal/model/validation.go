package model

// IssueKind categorizes a validation finding.
type IssueKind string

const (
	IssueEmptyRow     IssueKind = "empty_row"
	IssueDuplicateRow IssueKind = "duplicate_row"
	IssueInvalidData  IssueKind = "invalid_data"
)

// Issue is a single validation finding, positioned by row (and optionally
// column) index into the validated rows.
type Issue struct {
	Kind        IssueKind `json:"kind"`
	RowIndex    int       `json:"row_index"`
	ColumnIndex int       `json:"column_index,omitempty"`
	Message     string    `json:"message"`
}

// ValidationStats summarizes a validation pass.
type ValidationStats struct {
	TotalRows     int `json:"total_rows"`
	EmptyRows     int `json:"empty_rows"`
	DuplicateRows int `json:"duplicate_rows"`
	InvalidData   int `json:"invalid_data"`
}

// ValidationReport is advisory: it flags problems but never blocks the
// pipeline by itself. Issues preserve row order.
type ValidationReport struct {
	Issues []Issue         `json:"issues,omitempty"`
	Stats  ValidationStats `json:"stats"`
}

// IsValid reports whether the pass found no issues.
func (r ValidationReport) IsValid() bool {
	return len(r.Issues) == 0
}
