package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Doomsbay/ContigKit/internal/classify"
)

func newRulesCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "rules",
		Short: "Validate a rule table and print it normalized (sizes in Mb, gene names as matched)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRules(a.cfg)
			if err != nil {
				return err
			}
			policies, err := classify.ParsePolicies(a.cfg.Overlaps)
			if err != nil {
				return err
			}
			engine, err := classify.New(rs, policies...)
			if err != nil {
				return err
			}
			logf("Rules: %d rows over classes %s", len(engine.Rules()), strings.Join(engine.Rules().Classes(), ", "))
			return engine.Rules().WriteTSV(cmd.OutOrStdout())
		},
	}
	c.Flags().StringP("rules", "r", "", "Rule table (.tsv or .yaml); default is the built-in table")
	return c
}
