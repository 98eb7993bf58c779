// Package commands implements the abraqctl operator CLI.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/app"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "abraqctl",
		Short: "Operate the abraq ledger core",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newVoucherCommand())
	rootCmd.AddCommand(newJobsCommand())

	return rootCmd
}

// withServices loads configuration, wires the services for one command and
// releases them afterwards.
func withServices(ctx context.Context, fn func(*app.Config, *app.Services) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := app.NewLogger(cfg)
	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer services.Close(logger)
	return fn(cfg, services)
}

// parseRefArg reads an account written as TYPE:ID, e.g. Farmer:12.
func parseRefArg(raw string) (accounts.Ref, error) {
	typ, id, ok := strings.Cut(raw, ":")
	if !ok {
		return accounts.Ref{}, fmt.Errorf("account %q must be TYPE:ID", raw)
	}
	t, ok := accounts.ParseType(typ)
	if !ok {
		return accounts.Ref{}, fmt.Errorf("unknown account type %q", typ)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return accounts.Ref{}, fmt.Errorf("account id %q must be a positive integer", id)
	}
	return accounts.Ref{Type: t, ID: n}, nil
}

func profileFlag(raw int64) *int64 {
	if raw == 0 {
		return nil
	}
	return &raw
}
