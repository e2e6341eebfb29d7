package dedup

import (
	"context"
	"time"

	"courtclip/internal/ledger"
)

// SQLiteRegistry stores ids in the seen_clips table of the ledger database.
type SQLiteRegistry struct {
	store *ledger.Store
	owned bool
	now   func() time.Time
}

// OpenSQLite opens the ledger database at path and owns it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRegistry, error) {
	store, err := ledger.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &SQLiteRegistry{store: store, owned: true, now: time.Now}, nil
}

// NewSQLite wraps an already open ledger. Close leaves it open.
func NewSQLite(store *ledger.Store) *SQLiteRegistry {
	return &SQLiteRegistry{store: store, now: time.Now}
}

func (r *SQLiteRegistry) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range uniqueIDs(ids) {
		ok, err := r.store.HasClip(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = true
		}
	}
	return out, nil
}

func (r *SQLiteRegistry) Record(ctx context.Context, ids []string) (int, error) {
	return r.store.AddClips(ctx, uniqueIDs(ids), r.now())
}

func (r *SQLiteRegistry) Count(ctx context.Context) (int, error) {
	return r.store.ClipCount(ctx)
}

func (r *SQLiteRegistry) Close() error {
	if !r.owned {
		return nil
	}
	return r.store.Close()
}
