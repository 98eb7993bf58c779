package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

// SignConvention decides how lines move a running balance. Credit-normal
// accounts grow with credits; debit-normal accounts grow with debits.
type SignConvention struct {
	debitNormal map[accounts.Type]bool
}

// NewSignConvention returns the convention with the given debit-normal types;
// every other type is credit-normal.
func NewSignConvention(debitNormal ...accounts.Type) SignConvention {
	c := SignConvention{debitNormal: make(map[accounts.Type]bool, len(debitNormal))}
	for _, t := range debitNormal {
		c.debitNormal[t] = true
	}
	return c
}

// DebitNormal reports whether t grows with debits.
func (c SignConvention) DebitNormal(t accounts.Type) bool {
	return c.debitNormal[t]
}

// Signed returns the balance effect of l on an account of type t.
func (c SignConvention) Signed(t accounts.Type, l Line) decimal.Decimal {
	effect := l.Credit().Sub(l.Debit())
	if c.DebitNormal(t) {
		return effect.Neg()
	}
	return effect
}

// Fold sums the balance effect of lines.
func (c SignConvention) Fold(t accounts.Type, lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(c.Signed(t, l))
	}
	return total
}
