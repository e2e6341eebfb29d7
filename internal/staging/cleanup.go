package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"courtclip/internal/logging"
)

// SweepResult lists the run directories a sweep removed or failed to remove.
type SweepResult struct {
	Removed []string
	Failed  map[string]error
}

// Sweep removes run directories under stagingDir last modified before
// now-maxAge. Such directories only survive when a run was killed before its
// jobs cleaned up. A zero maxAge disables the sweep.
func Sweep(ctx context.Context, stagingDir string, maxAge time.Duration, now time.Time, logger *slog.Logger) SweepResult {
	result := SweepResult{}
	runs, err := ListRuns(stagingDir)
	if err != nil {
		result.Failed = map[string]error{stagingDir: err}
		return result
	}
	if maxAge <= 0 {
		return result
	}
	cutoff := now.Add(-maxAge)
	for _, run := range runs {
		if ctx.Err() != nil {
			break
		}
		if !run.Modified.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(run.Path); err != nil {
			if result.Failed == nil {
				result.Failed = map[string]error{}
			}
			result.Failed[run.Path] = err
			logging.WarnWithContext(logger, "stale staging run not removed", "staging_cleanup_failed",
				logging.String("run", run.RunID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, run.Path)
		if logger != nil {
			logger.Info("removed stale staging run",
				logging.String(logging.FieldEventType, "staging_cleanup"),
				logging.String("run", run.RunID),
				logging.Int("jobs", run.Jobs),
				logging.Duration("age", now.Sub(run.Modified)),
			)
		}
	}
	return result
}

// RunDir describes one run directory under the staging root.
type RunDir struct {
	RunID    string
	Path     string
	Modified time.Time
	Jobs     int
	Bytes    int64
}

// ListRuns returns the run directories under stagingDir. A missing or unset
// staging root has no runs.
func ListRuns(stagingDir string) ([]RunDir, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		run := RunDir{RunID: entry.Name(), Path: filepath.Join(stagingDir, entry.Name()), Modified: info.ModTime()}
		measure(&run)
		runs = append(runs, run)
	}
	return runs, nil
}

// measure counts job workspaces and the bytes they hold. Entries that vanish
// mid-walk are ignored.
func measure(run *RunDir) {
	_ = filepath.WalkDir(run.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if filepath.Dir(p) == run.Path {
				run.Jobs++
			}
			return nil
		}
		if info, err := d.Info(); err == nil {
			run.Bytes += info.Size()
		}
		return nil
	})
}
