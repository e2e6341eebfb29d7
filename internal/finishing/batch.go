package finishing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"courtclip/internal/assetname"
	"courtclip/internal/logging"
	"courtclip/internal/notifications"
	"courtclip/internal/planner"
	"courtclip/internal/pool"
	"courtclip/internal/services"
	"courtclip/internal/staging"
	"courtclip/internal/storage"
)

// ErrRunInProgress is returned when another finishing run on this host holds
// the run lock.
var ErrRunInProgress = errors.New("another finishing run is in progress")

// Summary describes one batch run.
type Summary struct {
	RunID    string
	Plan     planner.Plan
	Results  []Result
	Tally    pool.Tally
	Duration time.Duration
}

// Skipped counts jobs that found their destination already published.
func (s Summary) Skipped() int {
	n := 0
	for _, r := range s.Results {
		if r.Skipped {
			n++
		}
	}
	return n
}

// Run plans and executes one batch. The returned error is non-nil only when
// the batch could not start or when every selected job failed
// (pool.ErrAllFailed); per-job failures are reported in Summary.Results.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := r.now()
	lockPath := r.cfg.LockPath("finishing")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return Summary{}, services.Wrap(services.ErrConfiguration, "finishing", "lock", "create state directory", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Summary{}, services.Wrap(services.ErrTransientIO, "finishing", "lock", lock.Path(), err)
	}
	if !locked {
		return Summary{}, ErrRunInProgress
	}
	defer func() { _ = lock.Unlock() }()

	runID := r.newID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	maxAge := time.Duration(r.cfg.Finishing.StaleWorkspaceHours) * time.Hour
	staging.Sweep(ctx, r.cfg.Paths.StagingDir, maxAge, started, logger)

	pending, err := r.pending(ctx)
	if err != nil {
		r.notifyError(ctx, err, "listing inbound clips")
		return Summary{RunID: runID}, err
	}

	plan := planner.Build(pending, planner.Order(r.cfg.Finishing.Order), r.cfg.Finishing.BatchLimit, logger)
	summary := Summary{RunID: runID, Plan: plan}
	logger.Info("batch planned",
		logging.String(logging.FieldEventType, "batch_planned"),
		logging.Int("selected", len(plan.Selected)),
		logging.Int("deferred", len(plan.Deferred)),
		logging.Int("skipped", len(plan.Skipped)),
		logging.Int("max_parallel", r.cfg.Finishing.MaxParallel),
		logging.Int("threads_per_job", r.cfg.Finishing.ThreadsPerJob),
	)

	if len(plan.Selected) > 0 {
		type slot struct {
			index int
			name  assetname.Name
		}
		jobs := make([]slot, len(plan.Selected))
		for i, name := range plan.Selected {
			jobs[i] = slot{index: i, name: name}
		}
		results := make([]Result, len(plan.Selected))
		done := make([]bool, len(plan.Selected))
		summary.Tally = pool.Run(ctx, jobs, r.cfg.Finishing.MaxParallel, func(ctx context.Context, job slot) bool {
			res := r.Finish(ctx, job.name.Filename)
			results[job.index] = res
			done[job.index] = true
			return res.OK()
		})
		for i, res := range results {
			if done[i] {
				summary.Results = append(summary.Results, res)
			}
		}
	}
	if err := staging.RemoveRun(r.cfg.Paths.StagingDir, runID); err != nil {
		logger.Debug("run directory not removed", logging.Error(err))
	}

	summary.Duration = r.now().Sub(started)
	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("ok", summary.Tally.OK),
		logging.Int("failed", summary.Tally.Failed),
		logging.Int("already_published", summary.Skipped()),
		logging.Duration("duration", summary.Duration),
	)

	if err := r.notifier.NotifyRunCompleted(ctx, notifications.RunSummary{
		RunID:    runID,
		OK:       summary.Tally.OK,
		Failed:   summary.Tally.Failed,
		Skipped:  summary.Skipped(),
		Duration: summary.Duration,
	}); err != nil {
		logger.Debug("run summary notification failed", logging.Error(err))
	}

	if err := summary.Tally.Err(); err != nil {
		logging.ErrorWithContext(logger, "every job in the batch failed", "batch_failed",
			logging.Int("failed", summary.Tally.Failed),
			logging.String(logging.FieldErrorHint, "inspect stage_failure events; check ffmpeg and storage"),
			logging.String(logging.FieldImpact, "no clips were published"),
		)
		r.notifyError(ctx, err, "finishing run "+runID)
		return summary, err
	}
	return summary, nil
}

// pending returns the candidate filenames: the configured single file, or
// every clip directly under the inbound prefix.
func (r *Runner) pending(ctx context.Context) ([]string, error) {
	if single := r.cfg.Finishing.SingleFile; single != "" {
		return []string{single}, nil
	}
	var objects []storage.Object
	err := r.retried(ctx, "list", func(ctx context.Context) error {
		var listErr error
		objects, listErr = r.store.List(ctx, r.cfg.Storage.InboundPrefix, false)
		return listErr
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "finishing", "list", r.cfg.Storage.InboundPrefix, err)
	}
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		if name := obj.Name(); assetname.IsVideo(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (r *Runner) notifyError(ctx context.Context, err error, label string) {
	if nerr := r.notifier.NotifyError(ctx, err, label); nerr != nil {
		logging.WithContext(ctx, r.logger).Debug("error notification failed", logging.Error(nerr))
	}
}
