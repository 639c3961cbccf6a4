// Package worker fans profile generation out over a bounded pool, used by
// batch mode to profile a whole dataset.
package worker

import (
	"context"
	"sync"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/profile"
)

// Runner executes one profile request; satisfied by *profile.Workflow.
type Runner interface {
	Run(ctx context.Context, req profile.Request) (*profile.Result, error)
}

// Job is one system to profile.
type Job struct {
	SystemID string
	Row      dataset.Row
}

// Outcome is the result of one job, successful or not.
type Outcome struct {
	SystemID string
	Result   *profile.Result
	Err      error
}

// Pool profiles jobs concurrently with a fixed number of workers. The
// per-key critical section inside the workflow still guarantees one
// synthesis per key, so a duplicate job costs nothing extra.
type Pool struct {
	workers int
	runner  Runner
}

// NewPool creates a pool.
func NewPool(workers int, runner Runner) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, runner: runner}
}

// Run profiles every job against the given dataset version and returns the
// outcomes in job order. Cancelling ctx stops dispatch; in-flight jobs
// report their context error.
func (p *Pool) Run(ctx context.Context, datasetVersion string, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				job := jobs[idx]
				res, err := p.runner.Run(ctx, profile.Request{
					SystemID:       job.SystemID,
					DatasetVersion: datasetVersion,
					Row:            job.Row,
				})
				outcomes[idx] = Outcome{SystemID: job.SystemID, Result: res, Err: err}
			}
		}()
	}

	for i := range jobs {
		select {
		case <-ctx.Done():
			outcomes[i] = Outcome{SystemID: jobs[i].SystemID, Err: ctx.Err()}
			continue
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	return outcomes
}
