package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orbitrack/internal/tle"
)

// Outcome is one object's propagation result within a batch.
type Outcome struct {
	Elements tle.OrbitalElements
	State    State
	Err      error
}

// WorkerPool manages a fixed number of goroutines for parallel propagation.
// Records are immutable once built, so fan-out across objects needs no
// coordination beyond the service's memo lock.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates entries to t using p. Outcomes come back in input
// order. If ctx ends first the partial outcomes are discarded and ctx.Err()
// is returned.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, p Propagator, entries []tle.OrbitalElements, t time.Time) ([]Outcome, error) {
	if len(entries) == 0 {
		return nil, ctx.Err()
	}

	outcomes := make([]Outcome, len(entries))
	jobs := make(chan int, wp.workers*2)

	// Start workers. Each index is written by exactly one worker.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					return
				}
				el := entries[idx]
				st, err := p.Propagate(el, t)
				outcomes[idx] = Outcome{Elements: el, State: st, Err: err}
			}
		}()
	}

	// Feed jobs.
	func() {
		defer close(jobs)
		for i := range entries {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		wp.logger.Debug("batch propagation gaps",
			"total", len(entries),
			"failed", failed,
			"target_time", t.UTC().Format(time.RFC3339),
		)
	}
	return outcomes, nil
}
