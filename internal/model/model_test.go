package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJobStatus(t *testing.T) {
	cases := map[string]JobStatus{
		"QUEUED":      JobStatusScheduled,
		"Running":     JobStatusRunning,
		" completed ": JobStatusCompleted,
		"FAILED":      JobStatusFailed,
		"cancelled":   JobStatusFailed,
		"SOMETHING":   JobStatusRunning,
		"":            JobStatusRunning,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeJobStatus(raw), "raw=%q", raw)
	}
}

func TestExportJob_AdvanceMonotonic(t *testing.T) {
	job := ExportJob{JobID: "j", Status: JobStatusScheduled}

	assert.True(t, job.Advance(ExportJob{Status: JobStatusRunning}))
	assert.Equal(t, JobStatusRunning, job.Status)

	// Backwards transitions are ignored.
	assert.False(t, job.Advance(ExportJob{Status: JobStatusScheduled}))
	assert.Equal(t, JobStatusRunning, job.Status)

	assert.True(t, job.Advance(ExportJob{Status: JobStatusCompleted, ResultLocation: "/results/j"}))
	assert.Equal(t, "/results/j", job.ResultLocation)

	// Terminal states never change again.
	assert.False(t, job.Advance(ExportJob{Status: JobStatusFailed}))
	assert.Equal(t, JobStatusCompleted, job.Status)
}

func TestExportJob_AdvanceKeepsResultLocation(t *testing.T) {
	job := ExportJob{Status: JobStatusRunning, ResultLocation: "/results/a"}
	assert.True(t, job.Advance(ExportJob{Status: JobStatusCompleted}))
	assert.Equal(t, "/results/a", job.ResultLocation)
}

func TestNewRuleSet_Validation(t *testing.T) {
	_, err := NewRuleSet([]TeamRules{{TeamID: " "}})
	assert.ErrorContains(t, err, "empty id")

	_, err = NewRuleSet([]TeamRules{{TeamID: UnassignedTeam}})
	assert.ErrorContains(t, err, "reserved bucket")

	_, err = NewRuleSet([]TeamRules{{TeamID: "a"}, {TeamID: "a"}})
	assert.ErrorContains(t, err, "declared twice")

	_, err = NewRuleSet([]TeamRules{{TeamID: "a", SubIDPatterns: []string{" "}}})
	assert.ErrorContains(t, err, "empty pattern")
}

func TestNewRuleSet_ManualFirstDeclarationWins(t *testing.T) {
	rs, err := NewRuleSet([]TeamRules{
		{TeamID: "a", SubIDs: []string{"x1"}},
		{TeamID: "b", SubIDs: []string{"x1", "x2"}},
	})
	require.NoError(t, err)

	team, ok := rs.ManualLookup("x1")
	require.True(t, ok)
	assert.Equal(t, "a", team)

	team, _ = rs.ManualLookup("x2")
	assert.Equal(t, "b", team)
}

func TestParseRuleSet(t *testing.T) {
	yaml := `
teams:
  - team: team_a
    subids: [exact_1]
    subid_patterns: [tiger]
  - team: team_b
    partner_patterns: [acme]
    campaign_patterns: [spring]
`
	rs, err := ParseRuleSet(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, []string{"team_a", "team_b"}, rs.TeamIDs())
	rules := rs.Rules()
	require.Len(t, rules, 4)
	// Flattened in evaluation order: manual tier first.
	assert.Equal(t, RuleManualExact, rules[0].Kind)
	assert.Equal(t, RuleSubIDPattern, rules[1].Kind)
	assert.Equal(t, RulePartnerPattern, rules[2].Kind)
	assert.Equal(t, RuleCampaignPattern, rules[3].Kind)
}

func TestParseRuleSet_Empty(t *testing.T) {
	_, err := ParseRuleSet(strings.NewReader("teams: []"))
	assert.ErrorContains(t, err, "no teams")
}

func TestParseAmount(t *testing.T) {
	assert.Equal(t, 1234.56, ParseAmount("$1,234.56"))
	assert.Equal(t, 10.0, ParseAmount(" 10 "))
	assert.Equal(t, 0.0, ParseAmount(""))
	assert.Equal(t, 0.0, ParseAmount("n/a"))
}

func TestRecordSet_ColumnAliases(t *testing.T) {
	rs := NewRecordSet([]string{"Sub Id", "MEDIA PARTNER", "payout"}, nil)

	col, ok := rs.Column(SubIDColumns...)
	require.True(t, ok)
	assert.Equal(t, 0, col)

	col, ok = rs.Column(PartnerColumns...)
	require.True(t, ok)
	assert.Equal(t, 1, col)

	col, ok = rs.Column(RevenueColumns...)
	require.True(t, ok)
	assert.Equal(t, 2, col)

	_, ok = rs.Column(SKUColumns...)
	assert.False(t, ok)
}

func TestRun_Resumable(t *testing.T) {
	run := Run{Status: RunStatusSuspended, Jobs: []ExportJob{{JobID: "j"}}}
	assert.True(t, run.Resumable())

	assert.False(t, Run{Status: RunStatusSuspended}.Resumable())
	assert.False(t, Run{Status: RunStatusComplete, Jobs: []ExportJob{{}}}.Resumable())
}
