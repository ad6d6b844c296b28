package pipeline

import (
	"strings"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

// Attributor classifies records into teams using the declared rule set.
// Classification is a total function: every record yields exactly one team
// or the Unassigned bucket, never an error.
type Attributor struct {
	rules *model.RuleSet
}

// NewAttributor creates an attribution engine over a validated rule set.
func NewAttributor(rules *model.RuleSet) *Attributor {
	return &Attributor{rules: rules}
}

// Classify resolves the record's team. Tiers are consulted in fixed order:
// manual exact SubID, SubID patterns, partner patterns, campaign patterns.
// The first match wins and short-circuits. Within a pattern tier, teams
// are tried in declaration order and patterns within a team in declaration
// order, so when two teams' patterns both match a value the first-declared
// team wins. That asymmetry is load-bearing: existing rule files are tuned
// around it, with narrower patterns declared first.
func (a *Attributor) Classify(rec model.ClassifiedRecord) (string, *model.AttributionRule) {
	// Tier 1: manual exact mapping, case-sensitive.
	if team, ok := a.rules.ManualLookup(rec.SubID); ok {
		return team, &model.AttributionRule{
			TeamID:  team,
			Kind:    model.RuleManualExact,
			Pattern: rec.SubID,
		}
	}

	// Tiers 2-4: case-insensitive substring matching.
	if team, rule := a.matchTier(model.RuleSubIDPattern, rec.SubID); rule != nil {
		return team, rule
	}
	if team, rule := a.matchTier(model.RulePartnerPattern, rec.Partner); rule != nil {
		return team, rule
	}
	if team, rule := a.matchTier(model.RuleCampaignPattern, rec.Campaign); rule != nil {
		return team, rule
	}

	// No match is a valid terminal classification, not an error.
	return "", nil
}

func (a *Attributor) matchTier(kind model.RuleKind, value string) (string, *model.AttributionRule) {
	if value == "" {
		return "", nil
	}
	lower := strings.ToLower(value)

	for _, team := range a.rules.Teams {
		var patterns []string
		switch kind {
		case model.RuleSubIDPattern:
			patterns = team.SubIDPatterns
		case model.RulePartnerPattern:
			patterns = team.PartnerPatterns
		case model.RuleCampaignPattern:
			patterns = team.CampaignPatterns
		}
		for _, p := range patterns {
			if strings.Contains(lower, strings.ToLower(p)) {
				return team.TeamID, &model.AttributionRule{
					TeamID:  team.TeamID,
					Kind:    kind,
					Pattern: p,
				}
			}
		}
	}
	return "", nil
}

// ClassifyAll extracts attribution fields from each row and classifies it.
// Rows remain in input order.
func (a *Attributor) ClassifyAll(rs *model.RecordSet) []model.ClassifiedRecord {
	subCol, hasSub := rs.Column(model.SubIDColumns...)
	partnerCol, hasPartner := rs.Column(model.PartnerColumns...)
	campaignCol, hasCampaign := rs.Column(model.CampaignColumns...)
	revenueCol, hasRevenue := rs.Column(model.RevenueColumns...)
	skuCol, hasSKU := rs.Column(model.SKUColumns...)
	unitsCol, hasUnits := rs.Column(model.UnitsColumns...)

	records := make([]model.ClassifiedRecord, 0, len(rs.Rows))
	for i, row := range rs.Rows {
		rec := model.ClassifiedRecord{
			RowIndex: i,
			Row:      row,
		}
		if hasSub {
			rec.SubID = model.Cell(row, subCol)
		}
		if hasPartner {
			rec.Partner = model.Cell(row, partnerCol)
		}
		if hasCampaign {
			rec.Campaign = model.Cell(row, campaignCol)
		}
		if hasRevenue {
			rec.Revenue = model.ParseAmount(model.Cell(row, revenueCol))
		}
		if hasSKU {
			rec.SKU = model.Cell(row, skuCol)
		}
		if hasUnits {
			rec.Units = model.ParseUnits(model.Cell(row, unitsCol))
		}

		rec.TeamID, rec.MatchedRule = a.Classify(rec)
		records = append(records, rec)
	}
	return records
}
