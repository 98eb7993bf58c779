package rules

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abraq/abraq-accounts/internal/accounting/accounts"
	acctshared "github.com/abraq/abraq-accounts/internal/accounting/shared"
	"github.com/abraq/abraq-accounts/internal/shared"
)

type stubStore struct {
	rules       []Rule
	fingerprint string
	listCalls   int
	upserts     []Rule
}

func (s *stubStore) List(context.Context) ([]Rule, error) {
	s.listCalls++
	return append([]Rule(nil), s.rules...), nil
}

func (s *stubStore) Fingerprint(context.Context) (string, error) { return s.fingerprint, nil }

func (s *stubStore) Upsert(_ context.Context, rule Rule) error {
	s.upserts = append(s.upserts, rule)
	s.rules = append(s.rules, rule)
	return nil
}

func (s *stubStore) Delete(_ context.Context, account accounts.Ref, profileID *int64) (bool, error) {
	for i, r := range s.rules {
		if r.Account == account && samePtr(r.ProfileID, profileID) {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func samePtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type stubLookup struct {
	parents    map[accounts.Ref]accounts.Ref
	candidates []accounts.Candidate
	missing    map[accounts.Ref]bool
}

func (l *stubLookup) Exists(_ context.Context, ref accounts.Ref) (bool, error) {
	return !l.missing[ref], nil
}

func (l *stubLookup) Parent(_ context.Context, ref accounts.Ref) (*accounts.Ref, error) {
	if p, ok := l.parents[ref]; ok {
		return &p, nil
	}
	return nil, nil
}

func (l *stubLookup) Search(context.Context, string, int) ([]accounts.Candidate, error) {
	return l.candidates, nil
}

type stubAudit struct{ logs []shared.AuditLog }

func (a *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type stubObserver struct{ hits, misses int }

func (o *stubObserver) ObserveRuleCache(hit bool) {
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func newTestService(t *testing.T, store *stubStore, lookup *stubLookup) (*Service, *stubAudit, *stubObserver) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	audit := &stubAudit{}
	obs := &stubObserver{}
	svc := NewService(store, lookup, NewCache(client, time.Minute), audit, nil)
	svc.WithMetrics(obs)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) })
	return svc, audit, obs
}

func TestSnapshotServedFromCache(t *testing.T) {
	store := &stubStore{fingerprint: "1-100", rules: []Rule{{Account: farmer, Value: NatureDebit}}}
	svc, _, obs := newTestService(t, store, &stubLookup{})
	ctx := context.Background()

	first, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	second, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, store.listCalls)
	assert.Equal(t, first.Rules, second.Rules)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
}

func TestSnapshotReloadsWhenFingerprintChanges(t *testing.T) {
	store := &stubStore{fingerprint: "1-100", rules: []Rule{{Account: farmer, Value: NatureDebit}}}
	svc, _, _ := newTestService(t, store, &stubLookup{})
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	store.fingerprint = "2-200"
	store.rules = append(store.rules, Rule{Account: bank, Value: NatureCancel})

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
	assert.Equal(t, 2, snap.Len())
}

func TestSetRuleBumpsCacheAndAudits(t *testing.T) {
	store := &stubStore{fingerprint: "0-0"}
	svc, audit, _ := newTestService(t, store, &stubLookup{})
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	rule, err := svc.SetRule(ctx, Rule{Account: bank, ProfileID: profile(3), Value: NatureDebit}, 42)
	require.NoError(t, err)
	assert.False(t, rule.UpdatedAt.IsZero())

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls, "bump must invalidate the cached snapshot")
	assert.Equal(t, 1, snap.Len())

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "rule.set", audit.logs[0].Action)
	assert.Equal(t, int64(42), audit.logs[0].ActorID)
	assert.Equal(t, int64(3), audit.logs[0].Meta["profile_id"])
}

func TestBumpInvalidatesSnapshotsOfOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	readerStore := &stubStore{fingerprint: "1-100", rules: []Rule{{Account: farmer, Value: NatureDebit}}}
	reader := NewService(readerStore, &stubLookup{}, NewCache(client, time.Minute), nil, nil)
	writer := NewService(&stubStore{fingerprint: "1-100"}, &stubLookup{}, NewCache(client, time.Minute), &stubAudit{}, nil)

	_, err := reader.Snapshot(ctx)
	require.NoError(t, err)
	_, err = reader.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, readerStore.listCalls)

	_, err = writer.SetRule(ctx, Rule{Account: bank, Value: NatureCredit}, 5)
	require.NoError(t, err)
	ver, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", ver)

	_, err = reader.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, readerStore.listCalls)
}

func TestSetRuleRejectsUnknownAccount(t *testing.T) {
	store := &stubStore{}
	svc, _, _ := newTestService(t, store, &stubLookup{missing: map[accounts.Ref]bool{bank: true}})

	_, err := svc.SetRule(context.Background(), Rule{Account: bank, Value: NatureBoth}, 1)
	require.ErrorIs(t, err, acctshared.ErrNotFound)

	_, err = svc.SetRule(context.Background(), Rule{Account: farmer, Value: Nature("Sometimes")}, 1)
	require.ErrorIs(t, err, acctshared.ErrValidation)
	assert.Empty(t, store.upserts)
}

func TestDeleteRuleMissing(t *testing.T) {
	svc, _, _ := newTestService(t, &stubStore{}, &stubLookup{})
	err := svc.DeleteRule(context.Background(), farmer, nil, 1)
	require.ErrorIs(t, err, acctshared.ErrNotFound)
}

func TestResolveUsesParentLookup(t *testing.T) {
	store := &stubStore{fingerprint: "1", rules: []Rule{{Account: ledger, Value: NatureCredit}}}
	lookup := &stubLookup{parents: map[accounts.Ref]accounts.Ref{bank: ledger}}
	svc, _, _ := newTestService(t, store, lookup)

	d, err := svc.Resolve(context.Background(), bank, nil, accounts.SideDebit, true)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, SourceGroupDefault, d.Source)
}

func TestSearchFiltersCandidates(t *testing.T) {
	store := &stubStore{fingerprint: "1", rules: []Rule{{Account: farmer, Value: NatureCancel}}}
	lookup := &stubLookup{candidates: []accounts.Candidate{
		{Ref: farmer, Name: "Asha", Parent: &grower},
		{Ref: ledger, Name: "Sales"},
	}}
	svc, _, _ := newTestService(t, store, lookup)

	got, err := svc.Search(context.Background(), SearchInput{Term: "a", Side: accounts.SideCredit})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger, got[0].Ref)
}
