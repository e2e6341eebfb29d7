// Package heartbeat reads and writes the device heartbeat document and
// answers which cells are live.
package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"courtclip/internal/assetname"
	"courtclip/internal/logging"
	"courtclip/internal/retry"
	"courtclip/internal/services"
	"courtclip/internal/storage"
)

// Store reads and updates the heartbeat document at a storage key.
type Store struct {
	store    storage.Store
	key      string
	lockPath string
	retry    retry.Policy
	logger   *slog.Logger
}

// NewStore constructs a Store. lockPath guards read-merge-write updates made
// from this host; it may be empty when the caller never writes.
func NewStore(store storage.Store, key, lockPath string, policy retry.Policy, logger *slog.Logger) *Store {
	if policy.MaxAttempts <= 0 {
		policy = retry.Once()
	}
	return &Store{
		store:    store,
		key:      key,
		lockPath: lockPath,
		retry:    policy,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
	}
}

// Read fetches and decodes the document. A missing document is an empty
// registry. A corrupt document is logged and treated as empty; only storage
// failures that survive the retry policy are returned.
func (s *Store) Read(ctx context.Context) (Registry, error) {
	var data []byte
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var readErr error
		data, readErr = s.store.ReadObject(ctx, s.key)
		if errors.Is(readErr, services.ErrNotFound) {
			return retry.Permanent(readErr)
		}
		return readErr
	})
	if errors.Is(err, services.ErrNotFound) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), err
	}
	reg, err := Decode(data)
	if err != nil {
		logging.WarnWithContext(s.logger, "heartbeat document is corrupt", "registry_corruption",
			logging.String("key", s.key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next device beat rewrites the document"),
			logging.String(logging.FieldImpact, "no devices are considered live"),
		)
		return Empty(), nil
	}
	return reg, nil
}

// LiveCells reads the document and returns the cells live at now.
func (s *Store) LiveCells(ctx context.Context, now time.Time, ttl time.Duration) ([]assetname.Cell, error) {
	reg, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Live(now, ttl), nil
}

// Beat records a heartbeat for device. The update holds the host lock across
// read, merge and write; concurrent writers on other hosts follow
// last-writer-wins.
func (s *Store) Beat(ctx context.Context, device string, cell assetname.Cell, now time.Time) (Registry, error) {
	if device == "" || !cell.Valid() {
		return Registry{}, services.Wrap(services.ErrValidation, "heartbeat", "beat", "device id and loc/can/lado are required", nil)
	}
	if s.lockPath != "" {
		lock := flock.New(s.lockPath)
		locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
		if err != nil {
			return Registry{}, services.Wrap(services.ErrTransientIO, "heartbeat", "lock", s.lockPath, err)
		}
		if !locked {
			return Registry{}, services.Wrap(services.ErrTimeout, "heartbeat", "lock", s.lockPath, nil)
		}
		defer func() { _ = lock.Unlock() }()
	}

	reg, err := s.Read(ctx)
	if err != nil {
		return Registry{}, err
	}
	reg.Beat(device, cell, now.UTC())
	payload, err := Encode(reg)
	if err != nil {
		return Registry{}, services.Wrap(services.ErrValidation, "heartbeat", "encode", "", err)
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.WriteObject(ctx, s.key, payload, "application/json")
	})
	if err != nil {
		return Registry{}, services.Wrap(services.ErrTransientIO, "heartbeat", "write", s.key, err)
	}
	return reg, nil
}
