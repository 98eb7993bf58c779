package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/ledger"
	"github.com/abraq/abraq-accounts/jobs"
)

func TestParseRefArg(t *testing.T) {
	ref, err := parseRefArg("Farmer:12")
	require.NoError(t, err)
	assert.Equal(t, accounts.Ref{Type: accounts.TypeFarmer, ID: 12}, ref)

	for _, raw := range []string{"Farmer", "Nope:1", "Farmer:0", "Farmer:x"} {
		_, err := parseRefArg(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseRangeMakesEndExclusive(t *testing.T) {
	start, end, err := parseRange("2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), end)

	start, _, err = parseRange("", "2026-03-31")
	require.NoError(t, err)
	assert.True(t, start.IsZero())

	_, _, err = parseRange("2026-04-02", "2026-03-31")
	assert.Error(t, err)
	_, _, err = parseRange("", "31/03/2026")
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	report := ledger.Report{
		Account:        accounts.Ref{Type: accounts.TypeFarmer, ID: 12},
		AccountName:    "Ramesh",
		OpeningBalance: decimal.NewFromInt(1500),
		Lines: []ledger.Line{
			{VoucherNo: "JBK/00001", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), OurSide: accounts.SideCredit, Amount: decimal.NewFromInt(2500), OppositeLabel: "Cash"},
			{VoucherNo: "PA/00003", Date: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), OurSide: accounts.SideDebit, Amount: decimal.RequireFromString("300.5"), OppositeLabel: "Bank"},
		},
		TotalDebit:     decimal.RequireFromString("300.5"),
		TotalCredit:    decimal.NewFromInt(2500),
		ClosingBalance: decimal.RequireFromString("3699.5"),
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report))
	out := buf.String()
	assert.Contains(t, out, "Ramesh")
	assert.Contains(t, out, "Opening balance: 1,500.00")
	assert.Contains(t, out, "JBK/00001")
	assert.Contains(t, out, "2,500.00")
	assert.Contains(t, out, "300.50")
	assert.Contains(t, out, "Closing balance: 3,699.50")
}

func TestFormatAmountKeepsEveryDigit(t *testing.T) {
	cases := map[string]string{
		"0":                     "0.00",
		"999.5":                 "999.50",
		"1000":                  "1,000.00",
		"-1234567.891":          "-1,234,567.89",
		"-0.4":                  "-0.40",
		"12345678901234567.89":  "12,345,678,901,234,567.89",
		"100000000000000000.01": "100,000,000,000,000,000.01",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatAmount(decimal.RequireFromString(in)), in)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"report", "rules", "voucher", "jobs"} {
		assert.True(t, names[want], want)
	}

	voucher, _, err := root.Find([]string{"voucher", "approve"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(voucher.Use, "approve"))
}

func TestReportCommandRejectsBadAccount(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"report", "--account", "Farmer", "--to", "2026-03-31"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TYPE:ID")
}

func TestJobsCLITriggerRejectsUnknownJob(t *testing.T) {
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	c := &JobsCLI{client: client}
	defer func() { _ = c.Close() }()

	_, err = c.Trigger(context.Background(), "inventory:revalue")
	require.Error(t, err)

	var missing *JobsCLI
	_, err = missing.Trigger(context.Background(), jobs.TaskRulesWarmup)
	require.Error(t, err)
}
