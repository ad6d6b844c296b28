package pipeline

import (
	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

// Aggregator folds classified records into per-team totals. State is owned
// exclusively by the current run and never mutated concurrently. The fold is
// idempotent over a fixed record set and order-independent for sums; only
// SKU iteration order (first encounter) depends on input order.
type Aggregator struct {
	teamOrder []string
	totals    map[string]*model.TeamTotals
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{totals: make(map[string]*model.TeamTotals)}
}

// Accumulate folds records into the running totals. Unassigned records go
// to the reserved bucket rather than being dropped, so attribution coverage
// stays auditable.
func (a *Aggregator) Accumulate(records []model.ClassifiedRecord) {
	for _, rec := range records {
		team := rec.Team()
		tt, ok := a.totals[team]
		if !ok {
			tt = model.NewTeamTotals(team)
			a.totals[team] = tt
			a.teamOrder = append(a.teamOrder, team)
		}
		tt.Add(rec)
	}
}

// Totals returns the accumulated per-team totals keyed by team id.
func (a *Aggregator) Totals() map[string]*model.TeamTotals {
	return a.totals
}

// Teams returns team ids in first-encounter order.
func (a *Aggregator) Teams() []string {
	return a.teamOrder
}

// Team returns one team's totals, if any records landed there.
func (a *Aggregator) Team(teamID string) (*model.TeamTotals, bool) {
	tt, ok := a.totals[teamID]
	return tt, ok
}

// UnassignedShare reports unassigned revenue as a fraction of total revenue,
// the operator-facing attribution coverage metric. Zero total yields zero.
func (a *Aggregator) UnassignedShare() float64 {
	var total, unassigned float64
	for team, tt := range a.totals {
		total += tt.Revenue
		if team == model.UnassignedTeam {
			unassigned += tt.Revenue
		}
	}
	if total == 0 {
		return 0
	}
	return unassigned / total
}

// UnassignedCount returns how many records fell into the reserved bucket.
func (a *Aggregator) UnassignedCount() int {
	if tt, ok := a.totals[model.UnassignedTeam]; ok {
		return tt.ConversionCount
	}
	return 0
}
