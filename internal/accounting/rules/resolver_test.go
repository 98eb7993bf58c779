package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
)

func profile(id int64) *int64 { return &id }

var (
	bank   = accounts.Ref{Type: accounts.TypeBankAccount, ID: 10}
	ledger = accounts.Ref{Type: accounts.TypeLedger, ID: 4}
	farmer = accounts.Ref{Type: accounts.TypeFarmer, ID: 21}
	grower = accounts.Ref{Type: accounts.TypeGrowerGroup, ID: 2}
)

func TestResolveProfileRuleOverridesDefault(t *testing.T) {
	snap := NewSnapshot("fp", []Rule{
		{Account: bank, Value: NatureBoth},
		{Account: bank, ProfileID: profile(3), Value: NatureDebit},
	})

	d := snap.Resolve(Query{Account: bank, ProfileID: profile(3), Side: accounts.SideCredit})
	assert.False(t, d.Allowed)
	assert.Equal(t, SourceProfile, d.Source)

	d = snap.Resolve(Query{Account: bank, ProfileID: profile(3), Side: accounts.SideDebit})
	assert.True(t, d.Allowed)

	d = snap.Resolve(Query{Account: bank, ProfileID: profile(5), Side: accounts.SideCredit})
	assert.True(t, d.Allowed)
	assert.Equal(t, SourceDefault, d.Source)
}

func TestResolveNatureValues(t *testing.T) {
	cases := []struct {
		value Nature
		side  accounts.Side
		want  bool
	}{
		{NatureBoth, accounts.SideDebit, true},
		{NatureBoth, accounts.SideCredit, true},
		{NatureCancel, accounts.SideDebit, false},
		{NatureDebit, accounts.SideDebit, true},
		{NatureDebit, accounts.SideCredit, false},
		{NatureCredit, accounts.SideCredit, true},
		{NatureBlank, accounts.SideDebit, false},
	}
	for _, tc := range cases {
		snap := NewSnapshot("", []Rule{{Account: ledger, Value: tc.value}})
		d := snap.Resolve(Query{Account: ledger, Side: tc.side, Strict: true})
		assert.Equal(t, tc.want, d.Allowed, "%q on %s", tc.value, tc.side)
	}
}

func TestResolveFallsBackToNaturalGroup(t *testing.T) {
	snap := NewSnapshot("", []Rule{
		{Account: ledger, Value: NatureCredit},
		{Account: grower, ProfileID: profile(7), Value: NatureCancel},
	})

	d := snap.Resolve(Query{Account: bank, Parent: &ledger, Side: accounts.SideDebit, Strict: true})
	assert.False(t, d.Allowed)
	assert.Equal(t, SourceGroupDefault, d.Source)

	d = snap.Resolve(Query{Account: farmer, Parent: &grower, ProfileID: profile(7), Side: accounts.SideDebit})
	assert.False(t, d.Allowed)
	assert.Equal(t, SourceGroupProfile, d.Source)
}

func TestResolveWithoutRulesHonoursStrict(t *testing.T) {
	snap := NewSnapshot("", nil)
	assert.True(t, snap.Resolve(Query{Account: farmer, Side: accounts.SideDebit}).Allowed)
	d := snap.Resolve(Query{Account: farmer, Side: accounts.SideDebit, Strict: true})
	assert.False(t, d.Allowed)
	assert.Equal(t, SourceUnruled, d.Source)
}

func TestResolveWithoutSideAllows(t *testing.T) {
	snap := NewSnapshot("", []Rule{{Account: farmer, Value: NatureCancel}})
	d := snap.Resolve(Query{Account: farmer, Strict: true})
	assert.True(t, d.Allowed)
	assert.Equal(t, SourceUnfiltered, d.Source)
}

func TestFilterCandidatesPreservesOrder(t *testing.T) {
	snap := NewSnapshot("", []Rule{
		{Account: farmer, Value: NatureCredit},
		{Account: ledger, Value: NatureBoth},
	})
	list := []accounts.Candidate{
		{Ref: ledger, Name: "Sales"},
		{Ref: farmer, Name: "Asha", Parent: &grower},
		{Ref: bank, Name: "Cash", Parent: &ledger},
	}
	got := snap.FilterCandidates(list, nil, accounts.SideDebit, true)
	assert.Equal(t, []accounts.Candidate{list[0], list[2]}, got)

	assert.Empty(t, snap.FilterCandidates(nil, nil, accounts.SideDebit, true))
}
