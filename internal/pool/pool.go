// Package pool runs independent jobs with bounded parallelism and tallies
// their outcomes.
package pool

import (
	"context"
	"errors"
	"sync"
)

// ErrAllFailed is returned by Tally.Err when a non-empty batch produced no
// success.
var ErrAllFailed = errors.New("every job in the batch failed")

// Tally counts job outcomes.
type Tally struct {
	OK     int
	Failed int
}

// Total returns the number of jobs that ran.
func (t Tally) Total() int { return t.OK + t.Failed }

// Err reports the run-level result: only a non-empty batch with zero
// successes is an error.
func (t Tally) Err() error {
	if t.OK == 0 && t.Failed > 0 {
		return ErrAllFailed
	}
	return nil
}

// Run executes work for every job using at most maxParallel goroutines and
// returns once all of them have finished. A job's failure never cancels its
// siblings. When ctx is cancelled, jobs not yet started are counted as
// failed without running.
func Run[J any](ctx context.Context, jobs []J, maxParallel int, work func(ctx context.Context, job J) bool) Tally {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	if maxParallel > len(jobs) {
		maxParallel = len(jobs)
	}

	queue := make(chan J)
	var (
		mu    sync.Mutex
		tally Tally
		wg    sync.WaitGroup
	)
	record := func(ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			tally.OK++
		} else {
			tally.Failed++
		}
	}

	for i := 0; i < maxParallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if ctx.Err() != nil {
					record(false)
					continue
				}
				record(work(ctx, job))
			}
		}()
	}

	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()
	return tally
}
