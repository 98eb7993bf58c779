package ledger

import (
	"context"
	"fmt"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// SettlementStore loads every row of the approved, active settlement batches in
// which the account appears directly or, for a ledger, as the "entry for" ledger.
type SettlementStore interface {
	SettlementRows(ctx context.Context, account accounts.Ref, w Window) ([]EntryRow, error)
}

// SettlementSource adapts payment settlement batches.
type SettlementSource struct {
	store SettlementStore
}

// NewSettlementSource constructs SettlementSource.
func NewSettlementSource(store SettlementStore) *SettlementSource {
	return &SettlementSource{store: store}
}

// Kind implements Source.
func (s *SettlementSource) Kind() SourceKind { return KindSettlement }

// Fetch implements Source.
func (s *SettlementSource) Fetch(ctx context.Context, account accounts.Ref, w Window) ([]Line, error) {
	rows, err := s.store.SettlementRows(ctx, account, w)
	if err != nil {
		return nil, fmt.Errorf("ledger: settlement rows: %w", err)
	}
	ours := func(row EntryRow) bool {
		if row.Account == account {
			return true
		}
		return account.Type == accounts.TypeLedger && row.EntryFor != nil && *row.EntryFor == account
	}
	var lines []Line
	for _, batch := range groupByVoucher(rows) {
		lines = append(lines, expandVoucher(KindSettlement, batch, ours, true)...)
	}
	return lines, nil
}
