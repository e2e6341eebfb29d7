package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"courtclip/internal/services"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seen_clips (
    id TEXT PRIMARY KEY,
    recorded_at TIMESTAMPTZ NOT NULL
)`

// PostgresRegistry shares the id set between hosts through one table.
type PostgresRegistry struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects to dsn and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "dedup", "connect", "invalid postgres dsn", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, services.Wrap(services.ErrTransientIO, "dedup", "connect", "postgres unreachable", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create seen_clips table: %w", err)
	}
	return &PostgresRegistry{pool: pool, now: time.Now}, nil
}

func (r *PostgresRegistry) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, "SELECT id FROM seen_clips WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("query seen clips: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *PostgresRegistry) Record(ctx context.Context, ids []string) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO seen_clips (id, recorded_at)
		 SELECT unnest($1::text[]), $2
		 ON CONFLICT (id) DO NOTHING`,
		ids, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert seen clips: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRegistry) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM seen_clips").Scan(&count); err != nil {
		return 0, fmt.Errorf("count seen clips: %w", err)
	}
	return count, nil
}

func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}
