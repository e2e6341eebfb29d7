package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// HasClip reports whether id was already recorded.
func (s *Store) HasClip(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var found int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT 1 FROM seen_clips WHERE id = ?", id).Scan(&found)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup clip id: %w", err)
	}
	return true, nil
}

// AddClips inserts ids inside one transaction and returns how many were new.
// Existing ids are left untouched.
func (s *Store) AddClips(ctx context.Context, ids []string, now time.Time) (int, error) {
	ctx = ensureContext(ctx)
	if len(ids) == 0 {
		return 0, nil
	}
	stamp := now.UTC().Format(timeLayout)
	added := 0
	err := retryOnBusy(ctx, func() error {
		added = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO seen_clips (id, recorded_at) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id, stamp)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("insert clip ids: %w", err)
	}
	return added, nil
}

// ClipCount returns the number of recorded clip ids.
func (s *Store) ClipCount(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen_clips").Scan(&count); err != nil {
		return 0, fmt.Errorf("count clip ids: %w", err)
	}
	return count, nil
}
