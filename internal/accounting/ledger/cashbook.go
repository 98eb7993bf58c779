package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// EntryRow is one single-sided row of a multi-row voucher. Rows sharing a
// VoucherNo balance against each other.
type EntryRow struct {
	ID          int64
	VoucherNo   string
	Date        time.Time
	Account     accounts.Ref
	AccountName string
	Side        accounts.Side
	Amount      decimal.Decimal
	Narration   string
	PaymentType string
	Reference   string
	EntryFor    *accounts.Ref
}

func groupByVoucher(rows []EntryRow) [][]EntryRow {
	index := make(map[string]int)
	var groups [][]EntryRow
	for _, row := range rows {
		i, ok := index[row.VoucherNo]
		if !ok {
			i = len(groups)
			index[row.VoucherNo] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], row)
	}
	return groups
}

// expandVoucher turns the rows of one voucher into lines for the rows matched by
// ours. When the account holds the only row on its side and the other side has
// several rows, the line is split per opposite row using that row's amount.
// Otherwise each matched row pairs with the first opposite row, or with every
// opposite row when joinOpposites is set.
func expandVoucher(kind SourceKind, rows []EntryRow, ours func(EntryRow) bool, joinOpposites bool) []Line {
	var lines []Line
	for _, side := range []accounts.Side{accounts.SideDebit, accounts.SideCredit} {
		var mine, opposite []EntryRow
		for _, row := range rows {
			switch {
			case row.Side == side && ours(row):
				mine = append(mine, row)
			case row.Side == side.Opposite():
				opposite = append(opposite, row)
			}
		}
		if len(mine) == 0 {
			continue
		}
		if len(mine) == 1 && len(opposite) > 1 {
			our := mine[0]
			for i, op := range opposite {
				line := entryLine(kind, our, side, []EntryRow{op})
				line.ID.Seq = i
				line.Amount = op.Amount
				lines = append(lines, line)
			}
			continue
		}
		for _, our := range mine {
			var against []EntryRow
			switch {
			case len(opposite) == 0:
			case joinOpposites:
				against = opposite
			default:
				against = opposite[:1]
			}
			lines = append(lines, entryLine(kind, our, side, against))
		}
	}
	return lines
}

func entryLine(kind SourceKind, our EntryRow, side accounts.Side, against []EntryRow) Line {
	line := Line{
		ID:          LineID{Kind: kind, RowID: our.ID},
		VoucherNo:   our.VoucherNo,
		Date:        our.Date,
		Kind:        kind,
		OurSide:     side,
		Amount:      our.Amount,
		Narration:   our.Narration,
		PaymentType: our.PaymentType,
		Reference:   our.Reference,
	}
	names := make([]string, 0, len(against))
	for _, op := range against {
		line.Counterparts = append(line.Counterparts, op.Account)
		if op.AccountName != "" {
			names = append(names, op.AccountName)
		}
	}
	if len(names) > 0 && len(names) == len(against) {
		line.OppositeLabel = joinDistinct(names)
	}
	return line
}

// joinDistinct joins names with ", ", keeping the first occurrence of each.
func joinDistinct(names []string) string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return strings.Join(out, ", ")
}
