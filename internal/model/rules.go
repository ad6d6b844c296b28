package model

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RuleKind identifies which attribution tier a rule belongs to.
type RuleKind string

const (
	// RuleManualExact matches the SubID verbatim, case-sensitively.
	RuleManualExact RuleKind = "manual_exact"
	// RuleSubIDPattern matches a case-insensitive substring of the SubID.
	RuleSubIDPattern RuleKind = "subid_pattern"
	// RulePartnerPattern matches a case-insensitive substring of the partner field.
	RulePartnerPattern RuleKind = "partner_pattern"
	// RuleCampaignPattern matches a case-insensitive substring of the campaign field.
	RuleCampaignPattern RuleKind = "campaign_pattern"
)

// AttributionRule is a single declared rule. PriorityRank is the rule's
// evaluation position within its tier (team declaration order first, then
// pattern declaration order within the team).
type AttributionRule struct {
	TeamID       string   `json:"team_id" yaml:"team_id"`
	Kind         RuleKind `json:"kind" yaml:"kind"`
	Pattern      string   `json:"pattern" yaml:"pattern"`
	PriorityRank int      `json:"priority_rank" yaml:"-"`
}

// TeamRules is the per-team rule declaration as it appears in the teams file.
// Declaration order of teams and of patterns within a team is significant:
// within a tier, the first declared team whose pattern matches wins.
type TeamRules struct {
	TeamID           string   `yaml:"team"`
	SubIDs           []string `yaml:"subids"`
	SubIDPatterns    []string `yaml:"subid_patterns"`
	PartnerPatterns  []string `yaml:"partner_patterns"`
	CampaignPatterns []string `yaml:"campaign_patterns"`
}

// UnassignedTeam is the reserved bucket for records no rule matches.
const UnassignedTeam = "Unassigned"

// RuleSet is the full set of attribution rules across all teams, preserving
// declaration order. Consulted tier by tier: manual exact first (across all
// teams), then subid, partner, and campaign patterns.
type RuleSet struct {
	Teams []TeamRules

	manual map[string]string // verbatim SubID -> team
}

// NewRuleSet validates the declared teams and builds the manual-exact index.
func NewRuleSet(teams []TeamRules) (*RuleSet, error) {
	manual := make(map[string]string)
	seen := make(map[string]bool, len(teams))
	for _, t := range teams {
		if strings.TrimSpace(t.TeamID) == "" {
			return nil, eris.New("rules: team with empty id")
		}
		if t.TeamID == UnassignedTeam {
			return nil, eris.Errorf("rules: %q is a reserved bucket, not a declarable team", UnassignedTeam)
		}
		if seen[t.TeamID] {
			return nil, eris.Errorf("rules: team %q declared twice", t.TeamID)
		}
		seen[t.TeamID] = true

		for _, group := range [][]string{t.SubIDs, t.SubIDPatterns, t.PartnerPatterns, t.CampaignPatterns} {
			for _, p := range group {
				if strings.TrimSpace(p) == "" {
					return nil, eris.Errorf("rules: team %q declares an empty pattern", t.TeamID)
				}
			}
		}

		for _, id := range t.SubIDs {
			// First declaration wins, matching the tier's evaluation order.
			if _, ok := manual[id]; !ok {
				manual[id] = t.TeamID
			}
		}
	}
	return &RuleSet{Teams: teams, manual: manual}, nil
}

// ManualLookup resolves a SubID through the manual exact table (case-sensitive).
func (rs *RuleSet) ManualLookup(subID string) (string, bool) {
	team, ok := rs.manual[subID]
	return team, ok
}

// Rules flattens the set into evaluation order for auditing and linting:
// all manual rules, then the three pattern tiers, teams in declaration order.
func (rs *RuleSet) Rules() []AttributionRule {
	var out []AttributionRule
	rank := 0
	add := func(team string, kind RuleKind, patterns []string) {
		for _, p := range patterns {
			out = append(out, AttributionRule{TeamID: team, Kind: kind, Pattern: p, PriorityRank: rank})
			rank++
		}
	}
	for _, t := range rs.Teams {
		add(t.TeamID, RuleManualExact, t.SubIDs)
	}
	for _, t := range rs.Teams {
		add(t.TeamID, RuleSubIDPattern, t.SubIDPatterns)
	}
	for _, t := range rs.Teams {
		add(t.TeamID, RulePartnerPattern, t.PartnerPatterns)
	}
	for _, t := range rs.Teams {
		add(t.TeamID, RuleCampaignPattern, t.CampaignPatterns)
	}
	return out
}

// TeamIDs returns the declared team ids in declaration order.
func (rs *RuleSet) TeamIDs() []string {
	ids := make([]string, 0, len(rs.Teams))
	for _, t := range rs.Teams {
		ids = append(ids, t.TeamID)
	}
	return ids
}

type rulesFile struct {
	Teams []TeamRules `yaml:"teams"`
}

// LoadRuleSet reads a teams file (YAML) and builds a validated RuleSet.
func LoadRuleSet(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: open %s", path)
	}
	defer f.Close()
	return ParseRuleSet(f)
}

// ParseRuleSet decodes a teams file from a reader.
func ParseRuleSet(r io.Reader) (*RuleSet, error) {
	var file rulesFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, eris.Wrap(err, "rules: decode teams file")
	}
	if len(file.Teams) == 0 {
		return nil, eris.New("rules: teams file declares no teams")
	}
	return NewRuleSet(file.Teams)
}
