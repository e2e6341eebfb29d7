// Package finishing runs the per-clip finishing state machine
// (fetch, brand, splice, publish, cleanup) and drives whole batches of it
// through the worker pool.
package finishing

import (
	"time"

	"courtclip/internal/assetname"
)

// Status is the terminal outcome of one job.
type Status string

const (
	StatusOK            Status = "ok"
	StatusInvalidName   Status = "invalid-name"
	StatusFetchFailed   Status = "fetch-failed"
	StatusBrandFailed   Status = "brand-failed"
	StatusSpliceFailed  Status = "splice-failed"
	StatusPublishFailed Status = "publish-failed"
)

// Stage names, used in logs, metrics and the ledger.
const (
	StageFetch   = "fetch"
	StageBrand   = "brand"
	StageSplice  = "splice"
	StagePublish = "publish"
	StageCleanup = "cleanup"
)

var failureStatus = map[string]Status{
	StageFetch:   StatusFetchFailed,
	StageBrand:   StatusBrandFailed,
	StageSplice:  StatusSpliceFailed,
	StagePublish: StatusPublishFailed,
}

// Job is the state of one asset moving through the stages.
type Job struct {
	ID             string
	RunID          string
	Asset          assetname.Name
	SourceKey      string
	DestinationKey string
	Workspace      string
	Stage          string
}

// Result reports how a job ended.
type Result struct {
	JobID          string
	RunID          string
	Filename       string
	Cell           string
	DestinationKey string
	Status         Status
	// Stage is the stage that failed, empty on success.
	Stage string
	// Skipped is set when the destination already existed.
	Skipped bool
	// Err is the failure cause for non-ok statuses.
	Err error
	// Warning is set for ok jobs whose source could not be removed.
	Warning  error
	Duration time.Duration
}

// OK reports whether the job counts as a success.
func (r Result) OK() bool { return r.Status == StatusOK }
