package model

import (
	"strconv"
	"strings"
)

// RecordSet holds a parsed report export: a header row plus data rows, all
// string cells. Rows are immutable once parsed; sanitization produces a copy.
type RecordSet struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`

	index map[string]int
}

// NewRecordSet builds a RecordSet with a case-insensitive header index.
// When the same header appears twice, the first occurrence wins.
func NewRecordSet(headers []string, rows [][]string) *RecordSet {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		key := normalizeHeader(h)
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}
	return &RecordSet{Headers: headers, Rows: rows, index: idx}
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	return h
}

// Column returns the index of the named column, trying each alias in order.
func (rs *RecordSet) Column(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if i, ok := rs.index[normalizeHeader(a)]; ok {
			return i, true
		}
	}
	return 0, false
}

// Cell returns row[col] or "" when the row is short.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// Header aliases seen across report exports. The upstream is inconsistent
// about spacing and casing, so matching goes through normalizeHeader.
var (
	SubIDColumns    = []string{"SubId1", "Sub Id", "SubID", "Tracking Value"}
	PartnerColumns  = []string{"Media Partner", "Partner", "Media"}
	CampaignColumns = []string{"Campaign", "Campaign Name", "Program"}
	RevenueColumns  = []string{"Payout", "Revenue", "Sale Amount", "Earnings"}
	SKUColumns      = []string{"SKU", "Item SKU", "Product SKU"}
	UnitsColumns    = []string{"Quantity", "Units", "Item Quantity"}
)

// ClassifiedRecord is a data row plus its attribution outcome. TeamID is ""
// for unassigned records; MatchedRule is kept for auditability.
type ClassifiedRecord struct {
	RowIndex    int              `json:"row_index"`
	Row         []string         `json:"-"`
	SubID       string           `json:"sub_id"`
	Partner     string           `json:"partner,omitempty"`
	Campaign    string           `json:"campaign,omitempty"`
	SKU         string           `json:"sku,omitempty"`
	Units       int              `json:"units,omitempty"`
	Revenue     float64          `json:"revenue"`
	TeamID      string           `json:"team_id,omitempty"`
	MatchedRule *AttributionRule `json:"matched_rule,omitempty"`
}

// Team returns the effective attribution bucket, mapping the empty team to
// the reserved Unassigned bucket.
func (r ClassifiedRecord) Team() string {
	if r.TeamID == "" {
		return UnassignedTeam
	}
	return r.TeamID
}

// ParseAmount parses a currency cell, tolerating "$", thousands separators
// and surrounding whitespace. Unparsable cells count as zero.
func ParseAmount(cell string) float64 {
	cell = strings.TrimSpace(cell)
	cell = strings.TrimPrefix(cell, "$")
	cell = strings.ReplaceAll(cell, ",", "")
	if cell == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseUnits parses a quantity cell, defaulting to zero on bad input.
func ParseUnits(cell string) int {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0
	}
	v, err := strconv.Atoi(cell)
	if err != nil {
		return 0
	}
	return v
}
