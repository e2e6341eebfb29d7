package finishing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"courtclip/internal/assetname"
	"courtclip/internal/branding"
	"courtclip/internal/config"
	"courtclip/internal/engine"
	"courtclip/internal/ledger"
	"courtclip/internal/logging"
	"courtclip/internal/notifications"
	"courtclip/internal/retry"
	"courtclip/internal/services"
	"courtclip/internal/stageexec"
	"courtclip/internal/staging"
	"courtclip/internal/storage"
	"courtclip/internal/telemetry"
)

// Deps are the collaborators of a Runner. Ledger, Notifier and Metrics are
// optional.
type Deps struct {
	Store    storage.Store
	Engine   engine.Engine
	Branding *branding.Resolver
	Ledger   *ledger.Store
	Notifier notifications.Service
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Runner finishes clips. It is safe for concurrent use; every job works in
// its own workspace.
type Runner struct {
	cfg      *config.Config
	store    storage.Store
	engine   engine.Engine
	branding *branding.Resolver
	ledger   *ledger.Store
	notifier notifications.Service
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	retry    retry.Policy
	poll     retry.Policy
	now      func() time.Time
	newID    func() string
}

// NewRunner validates deps and returns a Runner bound to cfg.
func NewRunner(cfg *config.Config, deps Deps) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "finishing", "init", "config is required", nil)
	}
	if deps.Store == nil || deps.Engine == nil || deps.Branding == nil {
		return nil, services.Wrap(services.ErrConfiguration, "finishing", "init", "storage, engine and branding are required", nil)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	return &Runner{
		cfg:      cfg,
		store:    deps.Store,
		engine:   deps.Engine,
		branding: deps.Branding,
		ledger:   deps.Ledger,
		notifier: notifier,
		metrics:  deps.Metrics,
		logger:   logging.NewComponentLogger(deps.Logger, "finishing"),
		retry:    retry.FromConfig(cfg.Retry),
		poll:     retry.PollPolicy(cfg.Retry),
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// WithRetryPolicies replaces the operation and polling policies.
func (r *Runner) WithRetryPolicies(op, poll retry.Policy) *Runner {
	clone := *r
	clone.retry = op
	clone.poll = poll
	return &clone
}

// Finish runs one asset through every stage. It never returns an error: the
// outcome, including failures, is reported in the Result. When ctx carries
// no run id a fresh one is assigned.
func (r *Runner) Finish(ctx context.Context, filename string) (result Result) {
	ownRun := false
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		runID = r.newID()
		ownRun = true
		ctx = services.WithRunID(ctx, runID)
	}
	jobID := r.newID()
	ctx = services.WithAsset(ctx, filename)
	ctx = services.WithRequestID(ctx, jobID)

	start := r.now()
	result = Result{JobID: jobID, RunID: runID, Filename: filename}
	defer func() {
		result.Duration = r.now().Sub(start)
		r.record(ctx, result)
		if ownRun {
			_ = staging.RemoveRun(r.cfg.Paths.StagingDir, runID)
		}
	}()

	name, err := assetname.Parse(filename)
	if err != nil {
		result.Status = StatusInvalidName
		result.Err = err
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "skipping asset with invalid name", "asset_skipped",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rename to venue_court_side_YYYYMMDD_HHMMSS.mp4"),
			logging.String(logging.FieldImpact, "asset left in inbound"),
		)
		return result
	}

	job := Job{
		ID:             jobID,
		RunID:          runID,
		Asset:          name,
		SourceKey:      storage.Join(r.cfg.Storage.InboundPrefix, name.Filename),
		DestinationKey: storage.Join(r.cfg.Storage.ArchivePrefix, name.Venue, name.Court, name.Side, name.Filename),
	}
	result.Cell = name.Cell().Path()
	result.DestinationKey = job.DestinationKey

	ctx, span := telemetry.Tracer().Start(ctx, "finish",
		trace.WithAttributes(
			attribute.String("asset", name.Filename),
			attribute.String("cell", result.Cell),
			attribute.String("run_id", runID),
		))
	defer span.End()

	r.metrics.JobStarted()
	defer r.metrics.JobDone()

	r.execute(ctx, &job, &result)
	span.SetAttributes(attribute.String("status", string(result.Status)))
	return result
}

func (r *Runner) execute(ctx context.Context, job *Job, result *Result) {
	logger := logging.WithContext(ctx, r.logger)

	if r.alreadyPublished(ctx, logger, job) {
		result.Status = StatusOK
		result.Skipped = true
		result.Warning = r.removeSource(ctx, logger, job)
		logger.Info("destination already exists; skipping",
			logging.String(logging.FieldEventType, "asset_already_published"),
			logging.String("destination", job.DestinationKey),
		)
		return
	}

	ws, err := staging.Create(r.cfg.Paths.StagingDir, job.RunID, job.ID)
	if err != nil {
		r.fail(result, StageFetch, services.Wrap(services.ErrTransientIO, StageFetch, "workspace", "create workspace", err))
		logging.ErrorWithContext(logger, "workspace unavailable", "workspace_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions and free space"),
		)
		return
	}
	job.Workspace = ws.Dir()
	defer r.cleanup(ctx, logger, ws)

	bundle := r.branding.Resolve(job.Asset.Venue)
	input := ws.Path(job.Asset.Filename)
	branded := ws.Path("branded.mp4")
	final := branded

	steps := []struct {
		stage  string
		skip   bool
		fields []logging.Attr
		run    func(ctx context.Context) error
	}{
		{
			stage:  StageFetch,
			fields: []logging.Attr{logging.String("source", job.SourceKey)},
			run: func(ctx context.Context) error {
				return r.retried(ctx, "download", func(ctx context.Context) error {
					return r.store.Download(ctx, job.SourceKey, input)
				})
			},
		},
		{
			stage:  StageBrand,
			fields: []logging.Attr{logging.Int("overlays", len(bundle.Overlays()))},
			run: func(ctx context.Context) error {
				return r.engine.ApplyOverlays(ctx, input, bundle, branded)
			},
		},
		{
			stage: StageSplice,
			skip:  !bundle.NeedsSplice(),
			fields: []logging.Attr{
				logging.Bool("intro", bundle.Intro != ""),
				logging.Bool("outro", bundle.Outro != ""),
			},
			run: func(ctx context.Context) error {
				spliced := ws.Path("final.mp4")
				if err := r.engine.Concatenate(ctx, spliceSegments(bundle, branded), spliced); err != nil {
					return err
				}
				final = spliced
				return nil
			},
		},
		{
			stage:  StagePublish,
			fields: []logging.Attr{logging.String("destination", job.DestinationKey)},
			run: func(ctx context.Context) error {
				return r.publish(ctx, job, final)
			},
		},
	}

	for _, step := range steps {
		if step.skip {
			continue
		}
		job.Stage = step.stage
		err := stageexec.Run(ctx, stageexec.Options{
			Logger:  r.logger,
			Metrics: r.metrics,
			Stage:   step.stage,
			Fields:  step.fields,
		}, step.run)
		if err != nil {
			r.fail(result, step.stage, err)
			return
		}
	}

	result.Status = StatusOK
	result.Warning = r.removeSource(ctx, logger, job)
}

func spliceSegments(bundle branding.Bundle, body string) []engine.Segment {
	segments := make([]engine.Segment, 0, 3)
	if bundle.Intro != "" {
		segments = append(segments, engine.Segment{Path: bundle.Intro})
	}
	segments = append(segments, engine.Segment{Path: body, Reference: true})
	if bundle.Outro != "" {
		segments = append(segments, engine.Segment{Path: bundle.Outro})
	}
	return segments
}

// publish uploads the finished clip and waits until the destination is
// visible.
func (r *Runner) publish(ctx context.Context, job *Job, final string) error {
	err := r.retried(ctx, "upload", func(ctx context.Context) error {
		return r.store.Upload(ctx, final, job.DestinationKey)
	})
	if err != nil {
		return err
	}
	err = r.poll.Poll(ctx, func(ctx context.Context) (bool, error) {
		return r.store.Exists(ctx, job.DestinationKey)
	})
	if err != nil {
		return services.Wrap(services.ErrTimeout, StagePublish, "confirm", job.DestinationKey, err)
	}
	return nil
}

func (r *Runner) alreadyPublished(ctx context.Context, logger *slog.Logger, job *Job) bool {
	var exists bool
	err := r.retried(ctx, "exists", func(ctx context.Context) error {
		var existsErr error
		exists, existsErr = r.store.Exists(ctx, job.DestinationKey)
		return existsErr
	})
	if err != nil {
		logger.Warn("could not check destination; continuing",
			logging.String(logging.FieldEventType, "destination_check_failed"),
			logging.String("destination", job.DestinationKey),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "storage may be degraded"),
			logging.String(logging.FieldImpact, "the clip is reprocessed and the destination overwritten"),
		)
		return false
	}
	return exists
}

// removeSource deletes the inbound original. A failure is reported as a
// PublishPartial warning; the job still counts as ok.
func (r *Runner) removeSource(ctx context.Context, logger *slog.Logger, job *Job) error {
	err := r.retried(ctx, "delete", func(ctx context.Context) error {
		err := r.store.Delete(ctx, job.SourceKey)
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		return err
	})
	if err == nil {
		return nil
	}
	warning := services.Wrap(services.ErrPublishPartial, StagePublish, "delete source", job.SourceKey, err)
	logging.WarnWithContext(logger, "published but could not remove inbound original", "publish_partial",
		logging.String("source", job.SourceKey),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the next run skips it because the destination exists"),
		logging.String(logging.FieldImpact, "original remains in inbound"),
	)
	return warning
}

func (r *Runner) cleanup(ctx context.Context, logger *slog.Logger, ws staging.Workspace) {
	if err := ws.Remove(); err != nil {
		logging.WarnWithContext(logger, "failed to remove workspace", "workspace_cleanup_failed",
			logging.String(logging.FieldStage, StageCleanup),
			logging.String("path", ws.Dir()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stale workspaces are removed on the next run"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
	}
}

// retried runs op through the operation policy and counts every extra
// attempt.
func (r *Runner) retried(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	attempt := 0
	return r.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.metrics.Retried(operation)
		}
		return op(ctx)
	})
}

func (r *Runner) fail(result *Result, stage string, err error) {
	result.Stage = stage
	result.Status = failureStatus[stage]
	result.Err = err
}

func (r *Runner) record(ctx context.Context, result Result) {
	r.metrics.JobFinished(string(result.Status))
	if r.ledger == nil {
		return
	}
	outcome := ledger.Outcome{
		RunID:      result.RunID,
		JobID:      result.JobID,
		Asset:      result.Filename,
		Cell:       result.Cell,
		Status:     string(result.Status),
		Stage:      result.Stage,
		Skipped:    result.Skipped,
		Duration:   result.Duration,
		FinishedAt: r.now(),
	}
	if result.Err != nil {
		outcome.Error = result.Err.Error()
	}
	if result.Warning != nil {
		outcome.Warning = result.Warning.Error()
	}
	if _, err := r.ledger.Record(context.WithoutCancel(ctx), outcome); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to record job outcome", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.String(logging.FieldImpact, "status output misses this job"),
		)
	}
}
