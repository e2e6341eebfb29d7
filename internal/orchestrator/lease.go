package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"courtclip/internal/logging"
	"courtclip/internal/services"
	"courtclip/internal/storage"
)

const (
	runStateVersion = 1
	defaultLeaseTTL = 5 * time.Minute
)

// runState is the document a worker keeps in storage while it executes a
// run request.
type runState struct {
	Version   int       `json:"v"`
	RequestID string    `json:"request_id"`
	Host      string    `json:"host"`
	Started   time.Time `json:"started"`
	Expires   time.Time `json:"expires"`
}

// Lease marks a run request as executing. The broker only counts ready
// messages, so a delivered request that is not yet acknowledged needs its own
// record. A worker that dies stops refreshing and the lease lapses after ttl.
type Lease struct {
	store  storage.Store
	key    string
	ttl    time.Duration
	host   string
	logger *slog.Logger
	now    func() time.Time
}

// NewLease returns a lease stored at key.
func NewLease(store storage.Store, key string, ttl time.Duration, logger *slog.Logger) *Lease {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	host, _ := os.Hostname()
	return &Lease{store: store, key: key, ttl: ttl, host: host, logger: logger, now: time.Now}
}

// Active reports whether a worker holds an unexpired lease. A missing or
// unreadable document means no run is executing.
func (l *Lease) Active(ctx context.Context) (bool, error) {
	data, err := l.store.ReadObject(ctx, l.key)
	if errors.Is(err, services.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrOrchestratorQuery, "orchestrator", "read run state", l.key, err)
	}
	var state runState
	if err := json.Unmarshal(data, &state); err != nil {
		logging.WarnWithContext(l.logger, "ignoring unreadable run state", "run_state_corrupt",
			logging.String("key", l.key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no run is considered executing"),
		)
		return false, nil
	}
	return l.now().Before(state.Expires), nil
}

// Hold writes the lease, refreshes it every third of the ttl while fn runs
// and removes it once fn returns. Failing to write the lease does not stop
// fn; the runner's own lock still keeps runs exclusive.
func (l *Lease) Hold(ctx context.Context, requestID string, fn func(context.Context) error) error {
	state := runState{Version: runStateVersion, RequestID: requestID, Host: l.host, Started: l.now().UTC()}
	if err := l.write(ctx, &state); err != nil {
		l.warn(ctx, "could not write run state", err)
	}

	refreshCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if err := l.write(refreshCtx, &state); err != nil && refreshCtx.Err() == nil {
					l.warn(ctx, "could not refresh run state", err)
				}
			}
		}
	}()

	err := fn(ctx)
	stop()
	<-done

	if delErr := l.store.Delete(context.WithoutCancel(ctx), l.key); delErr != nil && !errors.Is(delErr, services.ErrNotFound) {
		l.warn(ctx, "could not clear run state", delErr)
	}
	return err
}

func (l *Lease) write(ctx context.Context, state *runState) error {
	state.Expires = l.now().Add(l.ttl).UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return l.store.WriteObject(ctx, l.key, data, "application/json")
}

func (l *Lease) warn(ctx context.Context, msg string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, l.logger), msg, "run_state_write_failed",
		logging.String("key", l.key),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the supervisor may request a run while this one executes"),
	)
}
