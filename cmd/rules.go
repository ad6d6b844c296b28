package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
	"github.com/lorenzlk/impactreportingapi-sub002/internal/pipeline"
)

var rulesFile string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate and probe the team attribution rules",
}

// -- rules validate --

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the teams file and warn about shadowed patterns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rs, err := model.LoadRuleSet(rulesTeamsFile())
		if err != nil {
			return err
		}

		fmt.Printf("OK: %d teams, %d rules\n", len(rs.Teams), len(rs.Rules()))

		warnings := lintRules(rs)
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, "warning: "+w)
		}
		if len(warnings) > 0 {
			fmt.Fprintf(os.Stderr, "%d shadowed pattern(s); later declarations never match\n", len(warnings))
		}
		return nil
	},
}

// -- rules test --

var (
	probeSubID    string
	probePartner  string
	probeCampaign string
)

var rulesTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Classify a probe record against the rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rs, err := model.LoadRuleSet(rulesTeamsFile())
		if err != nil {
			return err
		}

		attributor := pipeline.NewAttributor(rs)
		rec := model.ClassifiedRecord{
			SubID:    probeSubID,
			Partner:  probePartner,
			Campaign: probeCampaign,
		}
		rec.TeamID, rec.MatchedRule = attributor.Classify(rec)

		out := struct {
			Team        string                 `json:"team"`
			MatchedRule *model.AttributionRule `json:"matched_rule,omitempty"`
		}{rec.Team(), rec.MatchedRule}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func rulesTeamsFile() string {
	if rulesFile != "" {
		return rulesFile
	}
	return cfg.Rules.TeamsFile
}

// lintRules flags patterns that can never match: within one tier, a later
// team's pattern that contains an earlier team's pattern is unreachable,
// because any value it matches already matched the earlier declaration.
func lintRules(rs *model.RuleSet) []string {
	var warnings []string

	tiers := []struct {
		kind     string
		patterns func(model.TeamRules) []string
	}{
		{"subid_patterns", func(t model.TeamRules) []string { return t.SubIDPatterns }},
		{"partner_patterns", func(t model.TeamRules) []string { return t.PartnerPatterns }},
		{"campaign_patterns", func(t model.TeamRules) []string { return t.CampaignPatterns }},
	}

	for _, tier := range tiers {
		for i, earlier := range rs.Teams {
			for _, p1 := range tier.patterns(earlier) {
				for _, later := range rs.Teams[i+1:] {
					for _, p2 := range tier.patterns(later) {
						if strings.Contains(strings.ToLower(p2), strings.ToLower(p1)) {
							warnings = append(warnings, fmt.Sprintf(
								"%s: team %q pattern %q is shadowed by team %q pattern %q",
								tier.kind, later.TeamID, p2, earlier.TeamID, p1,
							))
						}
					}
				}
			}
		}
	}
	return warnings
}

func init() {
	rulesCmd.PersistentFlags().StringVar(&rulesFile, "file", "", "teams file path (default from config)")
	rulesTestCmd.Flags().StringVar(&probeSubID, "subid", "", "SubID value to classify")
	rulesTestCmd.Flags().StringVar(&probePartner, "partner", "", "partner value to classify")
	rulesTestCmd.Flags().StringVar(&probeCampaign, "campaign", "", "campaign value to classify")
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesTestCmd)
	rootCmd.AddCommand(rulesCmd)
}
