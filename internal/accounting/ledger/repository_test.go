package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostedFilterKeepsApprovedActiveRows(t *testing.T) {
	assert.Equal(t, "status = 'Approved' AND is_active", postedFilter)
}

func TestEveryTransactionQueryFiltersPostedRows(t *testing.T) {
	queries := map[string]string{
		"journal":     journalRowsSQL,
		"receipt":     receiptRowsSQL,
		"settlement":  settlementRowsSQL,
		"debit note":  debitNotesSQL,
		"credit note": creditNotesSQL,
	}
	for name, sql := range queries {
		from := strings.Count(sql, "FROM ")
		assert.Positive(t, from, name)
		assert.Equal(t, from, strings.Count(sql, "WHERE "+postedFilter), "%s: every FROM must carry the posted filter", name)
	}
}

func TestNoteDetailQueriesJoinOnPostedHeaders(t *testing.T) {
	for _, sql := range []string{debitNoteDetailsSQL, creditNoteDetailsSQL} {
		assert.Contains(t, sql, "note_id = ANY($1)")
		assert.NotContains(t, sql, "is_active")
	}
}
