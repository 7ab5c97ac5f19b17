package rollup

import (
	"context"

	"github.com/theirongolddev/costroll/internal/store"
)

type storeSource struct {
	s *store.Store
}

// FromStore reads ledgers from one SQLite read transaction, so every
// source observes the same committed state.
func FromStore(s *store.Store) Source {
	return storeSource{s: s}
}

func (src storeSource) Snapshot(ctx context.Context, fn func(Ledgers) error) error {
	return src.s.Snapshot(ctx, func(tx *store.Tx) error { return fn(tx) })
}

var _ Ledgers = (*store.Tx)(nil)
