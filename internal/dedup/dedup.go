// Package dedup keeps the append-only set of clips already counted by the
// metrics collector.
//
// Clips are identified by StableID, a short digest of the clip's cell and
// filename. Three backends share the Registry contract: the local SQLite
// ledger, a shared Postgres table, and a versioned JSON document kept next to
// the metrics in object storage.
package dedup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"courtclip/internal/assetname"
	"courtclip/internal/config"
	"courtclip/internal/retry"
	"courtclip/internal/storage"
)

// IDLength is the number of hex characters kept from the digest.
const IDLength = 16

// StableID returns the identifier of a clip. The key is NFC-normalized and
// lower-cased before hashing so that the same clip listed with different
// Unicode forms or casing maps to one id.
func StableID(cell assetname.Cell, name string) string {
	key := strings.Join([]string{cell.Venue, cell.Court, cell.Side, name}, "|")
	key = strings.ToLower(norm.NFC.String(key))
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// Registry is an append-only set of clip ids.
type Registry interface {
	// Seen reports which of ids are already recorded.
	Seen(ctx context.Context, ids []string) (map[string]bool, error)
	// Record adds ids and returns how many were not yet present.
	Record(ctx context.Context, ids []string) (int, error)
	// Count returns the number of recorded ids.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open selects the backend named by cfg.Registry.Backend. store is only used
// by the object backend.
func Open(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger) (Registry, error) {
	switch cfg.Registry.Backend {
	case config.RegistrySQLite, "":
		return OpenSQLite(ctx, cfg.LedgerPath())
	case config.RegistryPostgres:
		return OpenPostgres(ctx, cfg.Registry.PostgresDSN)
	case config.RegistryObject:
		if store == nil {
			return nil, fmt.Errorf("object registry requires a storage backend")
		}
		return NewDocumentRegistry(store, cfg.SeenIDsKey(), cfg.LockPath("dedup"), retry.FromConfig(cfg.Retry), logger), nil
	default:
		return nil, fmt.Errorf("registry backend %q is not supported", cfg.Registry.Backend)
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
