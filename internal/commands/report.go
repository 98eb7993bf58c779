package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/ledger"
	"github.com/abraq/abraq-accounts/internal/app"
)

const dateLayout = "2006-01-02"

func newReportCommand() *cobra.Command {
	var account, from, to string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the ledger of one account for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRefArg(account)
			if err != nil {
				return err
			}
			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(_ *app.Config, s *app.Services) error {
				report, err := s.Ledger.BuildReport(cmd.Context(), ref, start, end)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				return printReport(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account as TYPE:ID (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: open start)")
	cmd.Flags().StringVar(&to, "to", "", "last day inclusive, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("to")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")

	return cmd
}

// parseRange converts inclusive calendar days into the half-open window the
// ledger expects.
func parseRange(from, to string) (time.Time, time.Time, error) {
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
	}
	end = end.AddDate(0, 0, 1)
	var start time.Time
	if from != "" {
		start, err = time.Parse(dateLayout, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		if !start.Before(end) {
			return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s", from, to)
		}
	}
	return start, end, nil
}

func printReport(w io.Writer, r ledger.Report) error {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "%s (%s)\n", r.AccountName, r.Account)
	p.Fprintf(w, "Opening balance: %s\n\n", formatAmount(r.OpeningBalance))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tVoucher\tParticulars\tDebit\tCredit\t")
	for _, line := range r.Lines {
		debit, credit := "", ""
		if line.OurSide == accounts.SideDebit {
			debit = formatAmount(line.Amount)
		} else {
			credit = formatAmount(line.Amount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", line.Date.Format(dateLayout), line.VoucherNo, line.OppositeLabel, debit, credit)
	}
	fmt.Fprintf(tw, "\t\tTotal\t%s\t%s\t\n", formatAmount(r.TotalDebit), formatAmount(r.TotalCredit))
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := p.Fprintf(w, "\nClosing balance: %s\n", formatAmount(r.ClosingBalance))
	return err
}

// formatAmount renders d with two decimals and comma-grouped thousands without
// leaving decimal arithmetic.
func formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
