// Package supervisor runs the heartbeat-gated control loop. Each tick it
// reads device liveness, requests a finishing run when none is underway and
// refreshes the recency index of every live cell. The loop stops when no
// device is live or when the runtime ceiling is reached.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"courtclip/internal/assetname"
	"courtclip/internal/config"
	"courtclip/internal/logging"
	"courtclip/internal/notifications"
	"courtclip/internal/orchestrator"
	"courtclip/internal/recency"
	"courtclip/internal/services"
	"courtclip/internal/telemetry"
)

// StopReason explains why Run returned.
type StopReason string

const (
	StopNoHeartbeats StopReason = "no-heartbeats"
	StopMaxRuntime   StopReason = "max-runtime"
	StopCancelled    StopReason = "cancelled"
)

// ErrAlreadyRunning is returned when another supervisor on this host holds
// the supervisor lock.
var ErrAlreadyRunning = errors.New("another supervisor is running")

// Tick decisions, also used as the metrics label.
const (
	DecisionStopped        = "stopped"
	DecisionHeartbeatError = "heartbeat-error"
	DecisionQueryFailed    = "query-failed"
	DecisionInProgress     = "in-progress"
	DecisionTriggered      = "triggered"
	DecisionTriggerFailed  = "trigger-failed"
)

// HeartbeatSource reports which cells have a live device.
type HeartbeatSource interface {
	LiveCells(ctx context.Context, now time.Time, ttl time.Duration) ([]assetname.Cell, error)
}

// IndexPublisher regenerates the recency index of one cell.
type IndexPublisher interface {
	Publish(ctx context.Context, cell assetname.Cell) (recency.Index, error)
}

// Deps are the collaborators of a Supervisor. Now and Sleep default to the
// wall clock.
type Deps struct {
	Heartbeats   HeartbeatSource
	Orchestrator orchestrator.Orchestrator
	Publisher    IndexPublisher
	Notifier     notifications.Service
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
}

// TickResult records what one tick observed and did.
type TickResult struct {
	LiveCells  []assetname.Cell
	InProgress bool
	Triggered  bool
	Decision   string
	Published  int
}

// Supervisor is the control loop. It is not safe for concurrent use.
type Supervisor struct {
	ttl        time.Duration
	interval   time.Duration
	maxRuntime time.Duration
	lockPath   string

	heartbeats   HeartbeatSource
	orchestrator orchestrator.Orchestrator
	publisher    IndexPublisher
	notifier     notifications.Service
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	triggers int
}

// New validates deps and captures the supervisor settings from cfg.
func New(cfg *config.Config, deps Deps) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("supervisor: config is required")
	}
	if deps.Heartbeats == nil {
		return nil, errors.New("supervisor: heartbeat source is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("supervisor: index publisher is required")
	}
	if deps.Orchestrator == nil {
		deps.Orchestrator = orchestrator.None{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewNoop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	return &Supervisor{
		ttl:          cfg.HeartbeatTTL(),
		interval:     cfg.TickInterval(),
		maxRuntime:   cfg.MaxRuntime(),
		lockPath:     cfg.LockPath("supervisor"),
		heartbeats:   deps.Heartbeats,
		orchestrator: deps.Orchestrator,
		publisher:    deps.Publisher,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		logger:       logging.NewComponentLogger(deps.Logger, "supervisor"),
		now:          deps.Now,
		sleep:        deps.Sleep,
	}, nil
}

// Run ticks until no device is live, the runtime ceiling passes or ctx is
// cancelled. Single tick failures are logged and never end the loop. The
// error is non-nil only when the supervisor lock cannot be taken.
func (s *Supervisor) Run(ctx context.Context) (StopReason, error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "supervisor", "lock", "create state directory", err)
	}
	lock := flock.New(s.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return "", services.Wrap(services.ErrTransientIO, "supervisor", "lock", lock.Path(), err)
	}
	if !locked {
		return "", ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	start := s.now()
	s.triggers = 0
	s.logger.Info("supervisor started",
		logging.Duration("heartbeat_ttl", s.ttl),
		logging.Duration("tick_interval", s.interval),
		logging.Duration("max_runtime", s.maxRuntime),
	)

	reason := s.loop(ctx, start)
	elapsed := s.now().Sub(start)
	s.logger.Info("supervisor stopped",
		logging.String("reason", string(reason)),
		logging.Int("triggers", s.triggers),
		logging.Duration("elapsed", elapsed),
	)
	if reason != StopCancelled {
		if err := s.notifier.NotifySupervisorStopped(context.WithoutCancel(ctx), string(reason), s.triggers, elapsed); err != nil {
			logging.WarnWithContext(s.logger, "supervisor notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stop was not announced"),
			)
		}
	}
	return reason, nil
}

func (s *Supervisor) loop(ctx context.Context, start time.Time) StopReason {
	for {
		if ctx.Err() != nil {
			return StopCancelled
		}
		if s.now().Sub(start) > s.maxRuntime {
			return StopMaxRuntime
		}
		result := s.Tick(ctx)
		if result.Decision == DecisionStopped {
			return StopNoHeartbeats
		}
		if err := s.sleep(ctx, s.interval); err != nil {
			return StopCancelled
		}
	}
}

// Tick performs one pass of the loop. Decision is DecisionStopped when no
// cell is live.
func (s *Supervisor) Tick(ctx context.Context) TickResult {
	var result TickResult
	defer func() { s.metrics.Tick(result.Decision) }()

	cells, err := s.heartbeats.LiveCells(ctx, s.now(), s.ttl)
	if err != nil {
		logging.ErrorWithContext(s.logger, "heartbeat read failed", "heartbeat_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage connectivity and credentials"),
			logging.String(logging.FieldImpact, "no trigger this tick"),
		)
		result.Decision = DecisionHeartbeatError
		return result
	}
	result.LiveCells = cells
	s.metrics.SetLiveCells(len(cells))
	if len(cells) == 0 {
		s.logger.Info("no live heartbeats", logging.Duration("heartbeat_ttl", s.ttl))
		result.Decision = DecisionStopped
		return result
	}
	s.logger.Info("live cells", logging.Int("count", len(cells)), logging.Any("cells", cellNames(cells)))

	result.Decision = s.maybeTrigger(ctx, &result)

	for _, cell := range cells {
		cellCtx := services.WithStage(ctx, "index")
		index, err := s.publisher.Publish(cellCtx, cell)
		if err != nil {
			logging.WarnWithContext(s.logger, "index publish failed", "index_publish_failed",
				logging.Cell(cell.Path()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "index keeps its previous contents until the next tick"),
			)
			continue
		}
		result.Published++
		s.logger.Debug("index published",
			logging.Cell(cell.Path()),
			logging.Int("entries", len(index.Videos)),
		)
	}
	return result
}

func (s *Supervisor) maybeTrigger(ctx context.Context, result *TickResult) string {
	busy, err := s.orchestrator.InProgress(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "run state query failed", "orchestrator_query_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check orchestrator credentials and connectivity"),
			logging.String(logging.FieldImpact, "no trigger this tick"),
		)
		return DecisionQueryFailed
	}
	if busy {
		result.InProgress = true
		s.logger.Info("finishing run already in progress")
		return DecisionInProgress
	}
	if err := s.orchestrator.Trigger(ctx); err != nil {
		logging.ErrorWithContext(s.logger, "run trigger failed", "orchestrator_trigger_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next tick retries the trigger"),
		)
		return DecisionTriggerFailed
	}
	result.Triggered = true
	s.triggers++
	s.metrics.Triggered()
	s.logger.Info("finishing run triggered", logging.Int("triggers", s.triggers))
	return DecisionTriggered
}

func cellNames(cells []assetname.Cell) []string {
	names := make([]string, 0, len(cells))
	for _, c := range cells {
		names = append(names, c.String())
	}
	return names
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("supervisor sleep: %w", ctx.Err())
	}
}
