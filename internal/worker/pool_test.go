package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/profile"
)

type countingRunner struct {
	mu         sync.Mutex
	inFlight   int32
	maxSeen    int32
	failFor    map[string]error
	seenOrders []string
}

func (r *countingRunner) Run(ctx context.Context, req profile.Request) (*profile.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur := atomic.AddInt32(&r.inFlight, 1)
	defer atomic.AddInt32(&r.inFlight, -1)
	for {
		max := atomic.LoadInt32(&r.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&r.maxSeen, max, cur) {
			break
		}
	}

	r.mu.Lock()
	r.seenOrders = append(r.seenOrders, req.SystemID)
	r.mu.Unlock()

	if err, ok := r.failFor[req.SystemID]; ok {
		return nil, err
	}
	return &profile.Result{RunID: req.SystemID}, nil
}

func jobsFor(ids ...string) []Job {
	jobs := make([]Job, len(ids))
	for i, id := range ids {
		jobs[i] = Job{SystemID: id, Row: dataset.Row{dataset.ColSystemID: id}}
	}
	return jobs
}

func TestPoolPreservesJobOrder(t *testing.T) {
	runner := &countingRunner{}
	pool := NewPool(3, runner)

	jobs := jobsFor("a", "b", "c", "d", "e")
	outcomes := pool.Run(context.Background(), "v1", jobs)

	if len(outcomes) != len(jobs) {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), len(jobs))
	}
	for i, outcome := range outcomes {
		if outcome.SystemID != jobs[i].SystemID {
			t.Errorf("outcome %d is for %q, want %q", i, outcome.SystemID, jobs[i].SystemID)
		}
		if outcome.Err != nil {
			t.Errorf("job %q failed: %v", outcome.SystemID, outcome.Err)
		}
	}
}

func TestPoolIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	runner := &countingRunner{failFor: map[string]error{"b": boom}}
	pool := NewPool(2, runner)

	outcomes := pool.Run(context.Background(), "v1", jobsFor("a", "b", "c"))

	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Error("failures must not leak into other jobs")
	}
	if !errors.Is(outcomes[1].Err, boom) {
		t.Errorf("outcome[1].Err = %v, want boom", outcomes[1].Err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	runner := &countingRunner{}
	pool := NewPool(2, runner)

	pool.Run(context.Background(), "v1", jobsFor("a", "b", "c", "d", "e", "f"))

	if max := atomic.LoadInt32(&runner.maxSeen); max > 2 {
		t.Errorf("observed %d concurrent runs, want at most 2", max)
	}
}

func TestPoolDefaultsToOneWorker(t *testing.T) {
	pool := NewPool(0, &countingRunner{})
	outcomes := pool.Run(context.Background(), "v1", jobsFor("a"))
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &countingRunner{}
	pool := NewPool(2, runner)
	outcomes := pool.Run(ctx, "v1", jobsFor("a", "b"))

	for _, outcome := range outcomes {
		if outcome.Err == nil {
			t.Errorf("job %q should report the context error", outcome.SystemID)
		}
	}
}
