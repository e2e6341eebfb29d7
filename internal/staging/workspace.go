// Package staging manages the local scratch directories used by finishing
// jobs.
//
// Every job owns {staging_dir}/{run id}/{job id} exclusively. The directory is
// created on entry and removed when the job ends, whatever the outcome.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is a directory owned by exactly one job.
type Workspace struct {
	dir string
}

// Create makes a fresh workspace for jobID inside the run directory. It fails
// when the directory already exists so that two jobs never share one.
func Create(stagingDir, runID, jobID string) (Workspace, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return Workspace{}, fmt.Errorf("staging directory is not configured")
	}
	if runID == "" || jobID == "" {
		return Workspace{}, fmt.Errorf("run id and job id are required")
	}
	runDir := filepath.Join(stagingDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create run directory: %w", err)
	}
	dir := filepath.Join(runDir, jobID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	return Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w Workspace) Dir() string { return w.dir }

// Path returns name inside the workspace.
func (w Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Remove deletes the workspace and everything in it.
func (w Workspace) Remove() error {
	if w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}

// RemoveRun deletes the run directory once all jobs have released their
// workspaces. A non-empty run directory is left in place.
func RemoveRun(stagingDir, runID string) error {
	if strings.TrimSpace(stagingDir) == "" || runID == "" {
		return nil
	}
	err := os.Remove(filepath.Join(stagingDir, runID))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return err
}
