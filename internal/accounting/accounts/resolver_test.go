package accounts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNames struct {
	mu    sync.Mutex
	names map[Type]map[int64]string
	calls map[Type]int
	err   error
}

func (s *stubNames) Names(_ context.Context, t Type, ids []int64) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[Type]int)
	}
	s.calls[t]++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[int64]string)
	for _, id := range ids {
		if name, ok := s.names[t][id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (s *stubNames) Exists(_ context.Context, ref Ref) (bool, error) {
	_, ok := s.names[ref.Type][ref.ID]
	return ok, nil
}

func TestResolverPrimeBatchesPerType(t *testing.T) {
	store := &stubNames{names: map[Type]map[int64]string{
		TypeFarmer:      {1: "Asha", 2: "Bilal"},
		TypeBankAccount: {7: "Cash"},
	}}
	r := NewResolver(store)
	ctx := context.Background()

	err := r.Prime(ctx, []Ref{{TypeFarmer, 1}, {TypeFarmer, 2}, {TypeBankAccount, 7}, {TypeFarmer, 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls[TypeFarmer])
	assert.Equal(t, 1, store.calls[TypeBankAccount])

	label, err := r.Label(ctx, Ref{TypeFarmer, 2})
	require.NoError(t, err)
	assert.Equal(t, "Bilal", label)
	assert.Equal(t, 1, store.calls[TypeFarmer], "memoised label must not hit the store")
}

func TestResolverFallbackLabels(t *testing.T) {
	store := &stubNames{names: map[Type]map[int64]string{TypeLedger: {}}}
	r := NewResolver(store)
	ctx := context.Background()

	label, err := r.Label(ctx, Ref{TypeLedger, 99})
	require.NoError(t, err)
	assert.Equal(t, "Ledger (id: 99)", label)

	label, err = r.Label(ctx, Ref{Type("Mystery"), 3})
	require.NoError(t, err)
	assert.Equal(t, "Mystery (id: 3)", label)
	assert.Zero(t, store.calls[Type("Mystery")])
}

func TestResolverPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(&stubNames{err: boom})
	_, err := r.Label(context.Background(), Ref{TypeFarmer, 1})
	require.ErrorIs(t, err, boom)
}

func TestResolverExistsRejectsUnknownType(t *testing.T) {
	store := &stubNames{names: map[Type]map[int64]string{TypeFarmer: {1: "Asha"}}}
	r := NewResolver(store)
	ok, err := r.Exists(context.Background(), Ref{TypeFarmer, 1})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Exists(context.Background(), Ref{Type("Vendor"), 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseTypeAcceptsLegacyTags(t *testing.T) {
	cases := map[string]Type{
		"BankMaster":     TypeBankAccount,
		"subgroupledger": TypeLedger,
		"MasterGroup":    TypeChartGroup,
		"MasterSubGroup": TypeChartSubGroup,
		" Farmer ":       TypeFarmer,
	}
	for raw, want := range cases {
		got, ok := ParseType(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseType("Vendor")
	assert.False(t, ok)
}

func TestParseSideAcceptsCashBookTags(t *testing.T) {
	side, ok := ParseSide("Payment")
	require.True(t, ok)
	assert.Equal(t, SideDebit, side)
	side, ok = ParseSide("receipt")
	require.True(t, ok)
	assert.Equal(t, SideCredit, side)
	assert.Equal(t, SideDebit, SideCredit.Opposite())
}

func TestLoadNoteTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"5": 2, "9": 3}`), 0o600))

	targets, err := LoadNoteTargets(path)
	require.NoError(t, err)
	bank, ok := targets.Target(5)
	require.True(t, ok)
	assert.Equal(t, int64(2), bank)

	into, away := targets.Redirected(3)
	assert.Equal(t, []int64{9}, into)
	assert.Equal(t, []int64{5}, away)

	missing, err := LoadNoteTargets(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	_, ok = missing.Target(5)
	assert.False(t, ok)
}
