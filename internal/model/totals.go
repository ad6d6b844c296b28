package model

// SKUTotals accumulates units and revenue for a single SKU within a team.
type SKUTotals struct {
	SKU     string  `json:"sku"`
	Units   int     `json:"units"`
	Revenue float64 `json:"revenue"`
}

// TeamTotals accumulates a team's share of the classified records. Owned
// exclusively by the aggregation fold; never shared across goroutines.
// SKU iteration order is first-encounter insertion order, which affects
// only report row ordering, never the sums.
type TeamTotals struct {
	TeamID          string  `json:"team_id"`
	Revenue         float64 `json:"revenue"`
	ConversionCount int     `json:"conversion_count"`

	skuOrder []string
	skus     map[string]*SKUTotals
}

// NewTeamTotals creates an empty accumulator for a team.
func NewTeamTotals(teamID string) *TeamTotals {
	return &TeamTotals{
		TeamID: teamID,
		skus:   make(map[string]*SKUTotals),
	}
}

// Add folds one classified record into the totals.
func (t *TeamTotals) Add(rec ClassifiedRecord) {
	t.ConversionCount++
	t.Revenue += rec.Revenue

	if rec.SKU == "" {
		return
	}
	st, ok := t.skus[rec.SKU]
	if !ok {
		st = &SKUTotals{SKU: rec.SKU}
		t.skus[rec.SKU] = st
		t.skuOrder = append(t.skuOrder, rec.SKU)
	}
	st.Units += rec.Units
	st.Revenue += rec.Revenue
}

// SKUs returns the per-SKU totals in first-encounter order.
func (t *TeamTotals) SKUs() []SKUTotals {
	out := make([]SKUTotals, 0, len(t.skuOrder))
	for _, sku := range t.skuOrder {
		out = append(out, *t.skus[sku])
	}
	return out
}

// SKU returns the totals for one SKU, if present.
func (t *TeamTotals) SKU(sku string) (SKUTotals, bool) {
	st, ok := t.skus[sku]
	if !ok {
		return SKUTotals{}, false
	}
	return *st, true
}
