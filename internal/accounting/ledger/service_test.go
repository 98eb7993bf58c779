package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

var (
	cash    = accounts.Ref{Type: accounts.TypeBankAccount, ID: 1}
	sales   = accounts.Ref{Type: accounts.TypeLedger, ID: 2}
	freight = accounts.Ref{Type: accounts.TypeLedger, ID: 3}
	asha    = accounts.Ref{Type: accounts.TypeFarmer, ID: 4}
)

func day(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memNames struct{}

func (memNames) Names(_ context.Context, t accounts.Type, ids []int64) (map[int64]string, error) {
	known := map[accounts.Ref]string{cash: "Cash", sales: "Sales", freight: "Freight", asha: "Asha"}
	out := map[int64]string{}
	for _, id := range ids {
		if name, ok := known[accounts.Ref{Type: t, ID: id}]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (memNames) Exists(_ context.Context, ref accounts.Ref) (bool, error) {
	return ref == cash || ref == sales || ref == freight || ref == asha, nil
}

type memStore struct {
	journals    []JournalRow
	receipts    []EntryRow
	settlements []EntryRow
	debitNotes  map[int64][]NoteRow
	creditNotes map[int64][]NoteRow
	lastQuery   NoteQuery
	err         error
}

func (m *memStore) JournalRows(_ context.Context, account accounts.Ref, w Window) ([]JournalRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []JournalRow
	for _, row := range m.journals {
		if w.Contains(row.Date) && (row.Debit == account || row.Credit == account) {
			out = append(out, row)
		}
	}
	return out, nil
}

func vouchersTouching(rows []EntryRow, match func(EntryRow) bool, w Window) []EntryRow {
	hit := map[string]bool{}
	for _, row := range rows {
		if match(row) && w.Contains(row.Date) {
			hit[row.VoucherNo] = true
		}
	}
	var out []EntryRow
	for _, row := range rows {
		if hit[row.VoucherNo] {
			out = append(out, row)
		}
	}
	return out
}

func (m *memStore) ReceiptRows(_ context.Context, account accounts.Ref, w Window) ([]EntryRow, error) {
	return vouchersTouching(m.receipts, func(r EntryRow) bool { return r.Account == account }, w), nil
}

func (m *memStore) SettlementRows(_ context.Context, account accounts.Ref, w Window) ([]EntryRow, error) {
	return vouchersTouching(m.settlements, func(r EntryRow) bool {
		return r.Account == account || (r.EntryFor != nil && *r.EntryFor == account)
	}, w), nil
}

func notesIn(notes []NoteRow, w Window) []NoteRow {
	var out []NoteRow
	for _, n := range notes {
		if w.Contains(n.Date) {
			out = append(out, n)
		}
	}
	return out
}

func (m *memStore) DebitNotes(_ context.Context, q NoteQuery, w Window) ([]NoteRow, error) {
	m.lastQuery = q
	return notesIn(m.debitNotes[q.TargetID], w), nil
}

func (m *memStore) CreditNotes(_ context.Context, q NoteQuery, w Window) ([]NoteRow, error) {
	return notesIn(m.creditNotes[q.TargetID], w), nil
}

func newTestService(store *memStore, overrides TargetOverrides) *Service {
	return NewService(memNames{}, NewSignConvention(), nil,
		NewJournalSource(store),
		NewReceiptSource(store),
		NewSettlementSource(store),
		NewDebitNoteSource(store, overrides),
		NewCreditNoteSource(store),
	)
}

func receiptVoucher(no string, date time.Time, firstID int64, rows ...EntryRow) []EntryRow {
	for i := range rows {
		rows[i].ID = firstID + int64(i)
		rows[i].VoucherNo = no
		rows[i].Date = date
	}
	return rows
}

func TestReceiptSplitsAgainstSeveralOppositeRows(t *testing.T) {
	store := &memStore{receipts: receiptVoucher("RCPT/00001", day(5), 10,
		EntryRow{Account: asha, Side: accounts.SideCredit, Amount: dec("300")},
		EntryRow{Account: cash, Side: accounts.SideDebit, Amount: dec("100")},
		EntryRow{Account: sales, Side: accounts.SideDebit, Amount: dec("200")},
	)}
	svc := newTestService(store, nil)

	report, err := svc.BuildReport(context.Background(), asha, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)
	assert.True(t, dec("100").Equal(report.Lines[0].Amount))
	assert.Equal(t, "Cash", report.Lines[0].OppositeLabel)
	assert.True(t, dec("200").Equal(report.Lines[1].Amount))
	assert.Equal(t, "Sales", report.Lines[1].OppositeLabel)
	assert.NotEqual(t, report.Lines[0].ID, report.Lines[1].ID)
	assert.True(t, dec("300").Equal(report.TotalCredit))
	assert.True(t, dec("300").Equal(report.ClosingBalance))

	cashReport, err := svc.BuildReport(context.Background(), cash, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, cashReport.Lines, 1)
	assert.True(t, dec("100").Equal(cashReport.Lines[0].Amount))
	assert.Equal(t, "Asha", cashReport.Lines[0].OppositeLabel)
	assert.Equal(t, accounts.SideDebit, cashReport.Lines[0].OurSide)
}

func TestContinuityAcrossAdjacentRanges(t *testing.T) {
	store := &memStore{
		journals: []JournalRow{
			{ID: 1, VoucherNo: "JBK/00001", Date: day(3), Debit: cash, Credit: sales, Amount: dec("50.25")},
			{ID: 2, VoucherNo: "JBK/00002", Date: day(12), Debit: freight, Credit: cash, Amount: dec("10")},
			{ID: 3, VoucherNo: "JBK/00003", Date: day(20), Debit: cash, Credit: sales, Amount: dec("7.5")},
		},
		receipts: receiptVoucher("RCPT/00001", day(15), 10,
			EntryRow{Account: cash, Side: accounts.SideCredit, Amount: dec("5")},
			EntryRow{Account: asha, Side: accounts.SideDebit, Amount: dec("5")},
		),
	}
	svc := newTestService(store, nil)
	ctx := context.Background()

	first, err := svc.BuildReport(ctx, cash, day(1), day(14))
	require.NoError(t, err)
	second, err := svc.BuildReport(ctx, cash, day(14), day(31))
	require.NoError(t, err)
	whole, err := svc.BuildReport(ctx, cash, day(1), day(31))
	require.NoError(t, err)

	assert.True(t, first.ClosingBalance.Equal(second.OpeningBalance), "%s != %s", first.ClosingBalance, second.OpeningBalance)
	assert.True(t, second.ClosingBalance.Equal(whole.ClosingBalance))
	assert.True(t, dec("-42.75").Equal(whole.ClosingBalance))
}

func TestBuildReportIsIdempotent(t *testing.T) {
	store := &memStore{journals: []JournalRow{
		{ID: 2, VoucherNo: "JBK/00002", Date: day(4), Debit: cash, Credit: sales, Amount: dec("1")},
		{ID: 1, VoucherNo: "JBK/00001", Date: day(4), Debit: sales, Credit: cash, Amount: dec("2")},
	}}
	svc := newTestService(store, nil)
	a, err := svc.BuildReport(context.Background(), cash, day(1), day(10))
	require.NoError(t, err)
	b, err := svc.BuildReport(context.Background(), cash, day(1), day(10))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a.Lines, 2)
	assert.Equal(t, "J:1/1", a.Lines[0].ID.String())
}

func TestJournalRowOnBothSidesEmitsTwoLines(t *testing.T) {
	store := &memStore{journals: []JournalRow{
		{ID: 9, VoucherNo: "JBK/00009", Date: day(2), Debit: cash, Credit: cash, Amount: dec("40")},
	}}
	report, err := newTestService(store, nil).BuildReport(context.Background(), cash, day(1), day(3))
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, accounts.SideDebit, report.Lines[0].OurSide)
	assert.Equal(t, accounts.SideCredit, report.Lines[1].OurSide)
	assert.True(t, report.ClosingBalance.IsZero())
}

func TestSettlementJoinsOppositeNamesAndMatchesEntryFor(t *testing.T) {
	store := &memStore{settlements: receiptVoucher("PA/00001", day(6), 30,
		EntryRow{Account: cash, AccountName: "Cash", Side: accounts.SideCredit, Amount: dec("70"), EntryFor: &sales},
		EntryRow{Account: cash, AccountName: "Cash", Side: accounts.SideCredit, Amount: dec("30"), EntryFor: &sales},
		EntryRow{Account: asha, AccountName: "Asha", Side: accounts.SideDebit, Amount: dec("100")},
	)}
	svc := newTestService(store, nil)

	report, err := svc.BuildReport(context.Background(), cash, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, "Asha", report.Lines[0].OppositeLabel)

	byLedger, err := svc.BuildReport(context.Background(), sales, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, byLedger.Lines, 2)
	assert.True(t, dec("100").Equal(byLedger.TotalCredit))

	farmerView, err := svc.BuildReport(context.Background(), asha, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, farmerView.Lines, 2, "single farmer row against two cash rows splits")
	assert.Equal(t, "Cash", farmerView.Lines[0].OppositeLabel)
}

func TestSettlementJoinsRepeatedOppositeNamesOnce(t *testing.T) {
	store := &memStore{settlements: receiptVoucher("PA/00002", day(7), 40,
		EntryRow{Account: cash, AccountName: "Cash", Side: accounts.SideCredit, Amount: dec("70")},
		EntryRow{Account: cash, AccountName: "Cash", Side: accounts.SideCredit, Amount: dec("30")},
		EntryRow{Account: asha, AccountName: "Asha", Side: accounts.SideDebit, Amount: dec("60")},
		EntryRow{Account: asha, AccountName: "Asha", Side: accounts.SideDebit, Amount: dec("40")},
	)}
	svc := newTestService(store, nil)

	report, err := svc.BuildReport(context.Background(), cash, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)
	for _, l := range report.Lines {
		assert.Equal(t, "Asha", l.OppositeLabel)
	}
}

func TestJoinDistinctKeepsFirstOccurrence(t *testing.T) {
	assert.Equal(t, "Cash, Asha", joinDistinct([]string{"Cash", "Asha", "Cash"}))
	assert.Equal(t, "", joinDistinct(nil))
}

func TestDebitNoteDetailsAndFallback(t *testing.T) {
	store := &memStore{debitNotes: map[int64][]NoteRow{
		cash.ID: {
			{ID: 5, VoucherNo: "DN/00005", Date: day(8), Amount: dec("90"), Details: []NoteDetail{
				{ID: 3, AccountType: "Packing", Amount: dec("40")},
				{ID: 4, AccountType: "Transport", Amount: dec("50")},
			}},
			{ID: 6, VoucherNo: "DN/00006", Date: day(8), Amount: dec("15")},
		},
	}}
	overrides := accounts.NewNoteTargets(map[int64]int64{7: cash.ID, 8: 99})
	report, err := newTestService(store, overrides).BuildReport(context.Background(), cash, day(1), day(31))
	require.NoError(t, err)

	require.Len(t, report.Lines, 3)
	assert.Equal(t, "DN:5:3", report.Lines[0].ID.String())
	assert.Equal(t, "Packing", report.Lines[0].OppositeLabel)
	assert.Equal(t, "Items", report.Lines[2].OppositeLabel)
	assert.True(t, dec("105").Equal(report.TotalDebit))
	assert.Equal(t, []int64{7}, store.lastQuery.Include)
	assert.Equal(t, []int64{8}, store.lastQuery.Exclude)
}

func TestCreditNotesOnlyForFarmers(t *testing.T) {
	store := &memStore{creditNotes: map[int64][]NoteRow{
		asha.ID: {{ID: 1, VoucherNo: "CN/00001", Date: day(9), Amount: dec("12")}},
		cash.ID: {{ID: 2, VoucherNo: "CN/00002", Date: day(9), Amount: dec("99")}},
	}}
	svc := newTestService(store, nil)

	report, err := svc.BuildReport(context.Background(), asha, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, accounts.SideCredit, report.Lines[0].OurSide)

	bankReport, err := svc.BuildReport(context.Background(), cash, day(1), day(31))
	require.NoError(t, err)
	assert.Empty(t, bankReport.Lines)
}

func TestBuildReportUnknownAccount(t *testing.T) {
	svc := newTestService(&memStore{}, nil)
	_, err := svc.BuildReport(context.Background(), accounts.Ref{Type: accounts.TypeFarmer, ID: 404}, day(1), day(2))
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.BuildReport(context.Background(), cash, day(5), day(2))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEmptyLedgerIsNotAnError(t *testing.T) {
	report, err := newTestService(&memStore{}, nil).BuildReport(context.Background(), freight, day(1), day(2))
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.NotNil(t, report.Lines)
	assert.Equal(t, "Freight", report.AccountName)
	assert.True(t, report.ClosingBalance.IsZero())
}

func TestSourceErrorAbortsReport(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := newTestService(&memStore{err: boom}, nil).BuildReport(context.Background(), cash, day(1), day(2))
	require.ErrorIs(t, err, boom)
}

func TestDebitNormalConvention(t *testing.T) {
	store := &memStore{journals: []JournalRow{
		{ID: 1, VoucherNo: "JBK/00001", Date: day(3), Debit: cash, Credit: sales, Amount: dec("20")},
	}}
	svc := NewService(memNames{}, NewSignConvention(accounts.TypeBankAccount), nil, NewJournalSource(store))
	report, err := svc.BuildReport(context.Background(), cash, day(1), day(5))
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(report.ClosingBalance))
}
