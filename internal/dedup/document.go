package dedup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"courtclip/internal/logging"
	"courtclip/internal/retry"
	"courtclip/internal/services"
	"courtclip/internal/storage"
)

// DocumentVersion is the only registry document version read and written.
const DocumentVersion = 1

type document struct {
	V       int      `json:"v"`
	Updated string   `json:"updated"`
	IDs     []string `json:"ids"`
}

// DecodeDocument parses a registry document into a set. An empty payload is
// an empty set. A payload that does not start with "{" is read as the legacy
// newline-separated id list. Unknown versions and malformed JSON wrap
// services.ErrRegistryCorruption.
func DecodeDocument(data []byte) (map[string]struct{}, error) {
	trimmed := bytes.TrimSpace(data)
	set := make(map[string]struct{})
	if len(trimmed) == 0 {
		return set, nil
	}
	if trimmed[0] != '{' {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		for scanner.Scan() {
			if id := strings.TrimSpace(scanner.Text()); id != "" {
				set[id] = struct{}{}
			}
		}
		return set, scanner.Err()
	}
	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return set, services.Wrap(services.ErrRegistryCorruption, "dedup", "decode", "malformed registry document", err)
	}
	if doc.V != DocumentVersion {
		return set, services.Wrap(services.ErrRegistryCorruption, "dedup", "decode", fmt.Sprintf("unsupported document version %d", doc.V), nil)
	}
	for _, id := range doc.IDs {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set, nil
}

// EncodeDocument renders set with ids sorted.
func EncodeDocument(set map[string]struct{}, now time.Time) ([]byte, error) {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return json.MarshalIndent(document{
		V:       DocumentVersion,
		Updated: now.UTC().Format(time.RFC3339),
		IDs:     ids,
	}, "", "  ")
}

// DocumentRegistry keeps the set as one JSON document in object storage.
// Updates from one host are serialized with a file lock; writers on
// different hosts follow last-writer-wins, so an id may be counted twice but
// is never lost from a writer's own update.
type DocumentRegistry struct {
	store    storage.Store
	key      string
	lockPath string
	retry    retry.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewDocumentRegistry constructs a DocumentRegistry. lockPath may be empty.
func NewDocumentRegistry(store storage.Store, key, lockPath string, policy retry.Policy, logger *slog.Logger) *DocumentRegistry {
	if policy.MaxAttempts <= 0 {
		policy = retry.Once()
	}
	return &DocumentRegistry{
		store:    store,
		key:      key,
		lockPath: lockPath,
		retry:    policy,
		logger:   logging.NewComponentLogger(logger, "dedup"),
		now:      time.Now,
	}
}

func (r *DocumentRegistry) load(ctx context.Context) (map[string]struct{}, error) {
	var data []byte
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var readErr error
		data, readErr = r.store.ReadObject(ctx, r.key)
		if errors.Is(readErr, services.ErrNotFound) {
			return retry.Permanent(readErr)
		}
		return readErr
	})
	if errors.Is(err, services.ErrNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	set, err := DecodeDocument(data)
	if err != nil {
		logging.WarnWithContext(r.logger, "dedup registry is corrupt", "registry_corruption",
			logging.String("key", r.key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next update rewrites the document"),
			logging.String(logging.FieldImpact, "previously counted clips may be counted again"),
		)
		return map[string]struct{}{}, nil
	}
	return set, nil
}

func (r *DocumentRegistry) Seen(ctx context.Context, ids []string) (map[string]bool, error) {
	set, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (r *DocumentRegistry) Record(ctx context.Context, ids []string) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	if r.lockPath != "" {
		lock := flock.New(r.lockPath)
		locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
		if err != nil {
			return 0, services.Wrap(services.ErrTransientIO, "dedup", "lock", r.lockPath, err)
		}
		if !locked {
			return 0, services.Wrap(services.ErrTimeout, "dedup", "lock", r.lockPath, nil)
		}
		defer func() { _ = lock.Unlock() }()
	}

	set, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, id := range ids {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		added++
	}
	if added == 0 {
		return 0, nil
	}
	payload, err := EncodeDocument(set, r.now())
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "dedup", "encode", "", err)
	}
	err = r.retry.Do(ctx, func(ctx context.Context) error {
		return r.store.WriteObject(ctx, r.key, payload, "application/json")
	})
	if err != nil {
		return 0, services.Wrap(services.ErrTransientIO, "dedup", "write", r.key, err)
	}
	return added, nil
}

func (r *DocumentRegistry) Count(ctx context.Context) (int, error) {
	set, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(set), nil
}

func (r *DocumentRegistry) Close() error { return nil }
