package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://abraq@localhost/abraq")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)

	mediator, err := cfg.Mediator()
	require.NoError(t, err)
	assert.Nil(t, mediator)
}

func TestLoadConfigParsesLedgerSettings(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://abraq@localhost/abraq")
	t.Setenv("MEDIATOR_ACCOUNT_TYPE", "MasterGroup")
	t.Setenv("MEDIATOR_ACCOUNT_ID", "12")
	t.Setenv("LEDGER_DEBIT_NORMAL_TYPES", "BankAccount,Ledger")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	mediator, err := cfg.Mediator()
	require.NoError(t, err)
	assert.Equal(t, &accounts.Ref{Type: accounts.TypeChartGroup, ID: 12}, mediator)

	types, err := cfg.DebitNormalTypes()
	require.NoError(t, err)
	assert.Equal(t, []accounts.Type{accounts.TypeBankAccount, accounts.TypeLedger}, types)
}

func TestLoadConfigRejectsInvalidLedgerSettings(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://abraq@localhost/abraq")
	t.Setenv("MEDIATOR_ACCOUNT_TYPE", "Warehouse")
	t.Setenv("MEDIATOR_ACCOUNT_ID", "1")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownDebitNormalType(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://abraq@localhost/abraq")
	t.Setenv("LEDGER_DEBIT_NORMAL_TYPES", "Ledger,Crates")
	_, err := LoadConfig()
	require.Error(t, err)
}
