package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

func mustRules(t *testing.T, teams []model.TeamRules) *model.RuleSet {
	t.Helper()
	rs, err := model.NewRuleSet(teams)
	require.NoError(t, err)
	return rs
}

func TestClassify_TierOrder(t *testing.T) {
	rules := mustRules(t, []model.TeamRules{
		{
			TeamID:           "alpha",
			SubIDs:           []string{"exact_99"},
			SubIDPatterns:    []string{"alpha"},
			PartnerPatterns:  []string{"acme"},
			CampaignPatterns: []string{"spring"},
		},
		{
			TeamID:          "beta",
			PartnerPatterns: []string{"exact"},
		},
	})
	a := NewAttributor(rules)

	cases := []struct {
		name     string
		rec      model.ClassifiedRecord
		wantTeam string
		wantKind model.RuleKind
	}{
		{
			// Manual exact beats every pattern tier, even a pattern that
			// would match the same value.
			name:     "manual exact wins",
			rec:      model.ClassifiedRecord{SubID: "exact_99", Partner: "exact partners"},
			wantTeam: "alpha",
			wantKind: model.RuleManualExact,
		},
		{
			name:     "subid pattern beats partner pattern",
			rec:      model.ClassifiedRecord{SubID: "alpha_77", Partner: "acme media"},
			wantTeam: "alpha",
			wantKind: model.RuleSubIDPattern,
		},
		{
			name:     "partner pattern beats campaign pattern",
			rec:      model.ClassifiedRecord{SubID: "other", Partner: "ACME Media", Campaign: "Spring Sale"},
			wantTeam: "alpha",
			wantKind: model.RulePartnerPattern,
		},
		{
			name:     "campaign pattern as last tier",
			rec:      model.ClassifiedRecord{SubID: "other", Partner: "nobody", Campaign: "SPRING promo"},
			wantTeam: "alpha",
			wantKind: model.RuleCampaignPattern,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			team, rule := a.Classify(tc.rec)
			assert.Equal(t, tc.wantTeam, team)
			require.NotNil(t, rule)
			assert.Equal(t, tc.wantKind, rule.Kind)
		})
	}
}

func TestClassify_ManualExactIsCaseSensitive(t *testing.T) {
	rules := mustRules(t, []model.TeamRules{
		{TeamID: "alpha", SubIDs: []string{"Exact_1"}},
	})
	a := NewAttributor(rules)

	team, _ := a.Classify(model.ClassifiedRecord{SubID: "Exact_1"})
	assert.Equal(t, "alpha", team)

	team, rule := a.Classify(model.ClassifiedRecord{SubID: "exact_1"})
	assert.Equal(t, "", team)
	assert.Nil(t, rule)
}

func TestClassify_FirstDeclaredTeamWins(t *testing.T) {
	// Both teams declare "tiger"; team_a is declared first so it takes every
	// SubID containing "tiger", and team_b only wins on its own patterns.
	rules := mustRules(t, []model.TeamRules{
		{TeamID: "team_a", SubIDPatterns: []string{"tiger"}},
		{TeamID: "team_b", SubIDPatterns: []string{"tiger", "war_eagle"}},
	})
	a := NewAttributor(rules)

	team, rule := a.Classify(model.ClassifiedRecord{SubID: "tigers_123"})
	assert.Equal(t, "team_a", team)
	require.NotNil(t, rule)
	assert.Equal(t, "tiger", rule.Pattern)

	team, _ = a.Classify(model.ClassifiedRecord{SubID: "war_eagle_55"})
	assert.Equal(t, "team_b", team)
}

func TestClassify_SubstringMatchIsCaseInsensitive(t *testing.T) {
	rules := mustRules(t, []model.TeamRules{
		{TeamID: "alpha", SubIDPatterns: []string{"TiGeR"}},
	})
	a := NewAttributor(rules)

	team, _ := a.Classify(model.ClassifiedRecord{SubID: "big_TIGERS_promo"})
	assert.Equal(t, "alpha", team)
}

func TestClassify_NoMatchIsUnassignedNotError(t *testing.T) {
	rules := mustRules(t, []model.TeamRules{
		{TeamID: "alpha", SubIDPatterns: []string{"alpha"}},
	})
	a := NewAttributor(rules)

	rec := model.ClassifiedRecord{SubID: "nothing", Partner: "nobody", Campaign: "none"}
	team, rule := a.Classify(rec)
	assert.Equal(t, "", team)
	assert.Nil(t, rule)
	rec.TeamID = team
	assert.Equal(t, model.UnassignedTeam, rec.Team())
}

func TestClassifyAll_Totality(t *testing.T) {
	rules := mustRules(t, []model.TeamRules{
		{TeamID: "alpha", SubIDPatterns: []string{"alpha"}},
	})
	a := NewAttributor(rules)

	rs := model.NewRecordSet(
		[]string{"SubId1", "Media Partner", "Campaign", "SKU", "Quantity", "Payout"},
		[][]string{
			{"alpha_1", "acme", "camp", "SKU-1", "2", "$1,250.50"},
			{"", "", "", "", "", ""},
			{"mystery", "nobody", "none", "SKU-2", "1", "3.25"},
		},
	)
	records := a.ClassifyAll(rs)
	require.Len(t, records, 3)

	assert.Equal(t, "alpha", records[0].TeamID)
	assert.Equal(t, 1250.50, records[0].Revenue)
	assert.Equal(t, 2, records[0].Units)
	assert.Equal(t, "SKU-1", records[0].SKU)

	// Every row classifies, including empty and unmatched ones.
	assert.Equal(t, model.UnassignedTeam, records[1].Team())
	assert.Equal(t, model.UnassignedTeam, records[2].Team())
	assert.Equal(t, 3.25, records[2].Revenue)
}

func TestClassifyAll_MissingColumns(t *testing.T) {
	rules := mustRules(t, []model.TeamRules{
		{TeamID: "alpha", PartnerPatterns: []string{"acme"}},
	})
	a := NewAttributor(rules)

	// No SubID column at all: the first column must not be misread as one.
	rs := model.NewRecordSet(
		[]string{"Media Partner", "Payout"},
		[][]string{{"Acme Media", "5.00"}},
	)
	records := a.ClassifyAll(rs)
	require.Len(t, records, 1)
	assert.Equal(t, "", records[0].SubID)
	assert.Equal(t, "alpha", records[0].TeamID)
}
