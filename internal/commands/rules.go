package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/rules"
	"github.com/abraq/abraq-accounts/internal/app"
)

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and edit account rules",
	}
	cmd.AddCommand(newRulesResolveCommand(), newRulesSetCommand(), newRulesDeleteCommand())
	return cmd
}

func newRulesResolveCommand() *cobra.Command {
	var profile int64
	var side string
	var strict bool

	cmd := &cobra.Command{
		Use:   "resolve TYPE:ID",
		Short: "Show whether an account may be picked on a side",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(args[0])
			if err != nil {
				return err
			}
			var s accounts.Side
			if side != "" {
				parsed, ok := accounts.ParseSide(side)
				if !ok {
					return fmt.Errorf("unknown side %q", side)
				}
				s = parsed
			}
			return withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				decision, err := svc.Rules.Resolve(cmd.Context(), ref, profileFlag(profile), s, strict)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s allowed=%t source=%s\n", ref, decision.Allowed, decision.Source)
				if decision.Rule != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "rule: %s\n", decision.Rule.Value)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&profile, "profile", 0, "profile id (0 for none)")
	cmd.Flags().StringVar(&side, "side", "", "debit or credit (empty allows both)")
	cmd.Flags().BoolVar(&strict, "strict", false, "apply strict semantics")

	return cmd
}

func newRulesSetCommand() *cobra.Command {
	var profile, actor int64
	var nature string

	cmd := &cobra.Command{
		Use:   "set TYPE:ID",
		Short: "Create or replace the rule of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(args[0])
			if err != nil {
				return err
			}
			value, ok := rules.ParseNature(nature)
			if !ok {
				return fmt.Errorf("unknown nature %q", nature)
			}
			return withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				saved, err := svc.Rules.SetRule(cmd.Context(), rules.Rule{Account: ref, ProfileID: profileFlag(profile), Value: value}, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s set to %s\n", saved.Account, saved.Value)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&profile, "profile", 0, "profile id (0 for the account default)")
	cmd.Flags().StringVar(&nature, "nature", "", "rule value (required)")
	_ = cmd.MarkFlagRequired("nature")
	cmd.Flags().Int64Var(&actor, "actor", 0, "acting user id (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func newRulesDeleteCommand() *cobra.Command {
	var profile, actor int64

	cmd := &cobra.Command{
		Use:   "delete TYPE:ID",
		Short: "Remove the rule of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				return svc.Rules.DeleteRule(cmd.Context(), ref, profileFlag(profile), actor)
			})
		},
	}

	cmd.Flags().Int64Var(&profile, "profile", 0, "profile id (0 for the account default)")
	cmd.Flags().Int64Var(&actor, "actor", 0, "acting user id (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}
