package accounts

import (
	"context"
	"sort"
	"sync"
)

// NameStore loads account names in bulk.
type NameStore interface {
	Names(ctx context.Context, t Type, ids []int64) (map[int64]string, error)
	Exists(ctx context.Context, ref Ref) (bool, error)
}

// Resolver turns refs into display labels. A Resolver memoises lookups and is
// meant to live for one request; it is safe for concurrent use.
type Resolver struct {
	store NameStore

	mu     sync.Mutex
	labels map[Ref]string
}

// NewResolver constructs a request-scoped Resolver.
func NewResolver(store NameStore) *Resolver {
	return &Resolver{store: store, labels: make(map[Ref]string)}
}

// Prime loads labels for every unseen ref with one query per account type.
func (r *Resolver) Prime(ctx context.Context, refs []Ref) error {
	pending := make(map[Type][]int64)
	seen := make(map[Ref]struct{}, len(refs))
	r.mu.Lock()
	for _, ref := range refs {
		if _, ok := r.labels[ref]; ok {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		if !ref.Type.Valid() || r.store == nil {
			r.labels[ref] = FallbackLabel(ref)
			continue
		}
		pending[ref.Type] = append(pending[ref.Type], ref.ID)
	}
	r.mu.Unlock()

	types := make([]Type, 0, len(pending))
	for t := range pending {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		ids := pending[t]
		names, err := r.store.Names(ctx, t, ids)
		if err != nil {
			return err
		}
		r.mu.Lock()
		for _, id := range ids {
			ref := Ref{Type: t, ID: id}
			if name := names[id]; name != "" {
				r.labels[ref] = name
			} else {
				r.labels[ref] = FallbackLabel(ref)
			}
		}
		r.mu.Unlock()
	}
	return nil
}

// Label returns the display name of ref, falling back to "Type (id: N)".
func (r *Resolver) Label(ctx context.Context, ref Ref) (string, error) {
	r.mu.Lock()
	label, ok := r.labels[ref]
	r.mu.Unlock()
	if ok {
		return label, nil
	}
	if err := r.Prime(ctx, []Ref{ref}); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if label, ok := r.labels[ref]; ok {
		return label, nil
	}
	return FallbackLabel(ref), nil
}

// Exists reports whether ref points at a stored account. Unknown types never exist.
func (r *Resolver) Exists(ctx context.Context, ref Ref) (bool, error) {
	if !ref.Type.Valid() || r.store == nil {
		return false, nil
	}
	return r.store.Exists(ctx, ref)
}
