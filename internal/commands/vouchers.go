package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abraq/abraq-accounts/internal/accounting/vouchers"
	"github.com/abraq/abraq-accounts/internal/app"
)

func newVoucherCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voucher",
		Short: "Approve, unapprove or delete posted vouchers",
	}
	for _, action := range []vouchers.Action{vouchers.ActionApprove, vouchers.ActionUnapprove, vouchers.ActionDelete} {
		cmd.AddCommand(newTransitionCommand(action))
	}
	return cmd
}

func newTransitionCommand(action vouchers.Action) *cobra.Command {
	var actor int64

	cmd := &cobra.Command{
		Use:   string(action) + " KIND NUMBER",
		Short: fmt.Sprintf("%s a voucher, e.g. %s journal JBK/00001", action, action),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := vouchers.ParseKind(args[0])
			if !ok {
				return fmt.Errorf("unknown voucher kind %q", args[0])
			}
			return withServices(cmd.Context(), func(_ *app.Config, svc *app.Services) error {
				state, err := svc.Vouchers.Transition(cmd.Context(), kind, args[1], action, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: status=%s active=%t\n", kind, args[1], state.Status, state.Active)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&actor, "actor", 0, "acting user id (required)")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}
