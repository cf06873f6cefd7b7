package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/duckserve/duckserve/internal/observability"
	"github.com/duckserve/duckserve/internal/tasks"
)

type Func func(ctx context.Context) error

// Runner executes jobs in the background and is the only writer of their
// ledger entries after creation. A started job is never cancelled.
type Runner struct {
	ledger *tasks.Ledger
	logger *slog.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

func NewRunner(ledger *tasks.Ledger, logger *slog.Logger, maxConcurrent int) (*Runner, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent jobs must be > 0")
	}
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Runner{
		ledger: ledger,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

// Submit records the task as queued and returns immediately; fn runs on its
// own goroutine once a slot frees up.
func (r *Runner) Submit(taskID string, kind tasks.Kind, targetID string, fn Func) (tasks.Task, error) {
	if fn == nil {
		return tasks.Task{}, fmt.Errorf("job function is required")
	}
	task, err := r.ledger.Create(taskID, kind, targetID)
	if err != nil {
		return tasks.Task{}, err
	}
	observability.ObserveJobSubmitted(string(kind))
	r.logger.Info("job queued", "task_id", taskID, "kind", string(kind), "target_id", targetID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(task, fn)
	}()
	return task, nil
}

// Wait blocks until every submitted job has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

func (r *Runner) run(task tasks.Task, fn Func) {
	ctx := context.Background()
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.finish(task, time.Now(), fmt.Errorf("acquire job slot: %w", err))
		return
	}
	defer r.sem.Release(1)

	logger := r.logger.With("task_id", task.ID, "kind", string(task.Kind), "target_id", task.TargetID)
	if _, err := r.ledger.Transition(task.ID, tasks.StateProcessing, ""); err != nil {
		logger.Error("job transition failed", "error", err)
		return
	}
	observability.ObserveJobStarted(string(task.Kind))
	logger.Info("job started")

	start := time.Now()
	r.finish(task, start, invoke(ctx, fn))
}

func (r *Runner) finish(task tasks.Task, start time.Time, jobErr error) {
	logger := r.logger.With("task_id", task.ID, "kind", string(task.Kind), "target_id", task.TargetID)
	elapsed := time.Since(start)

	if jobErr == nil {
		if _, err := r.ledger.Transition(task.ID, tasks.StateCompleted, ""); err != nil {
			logger.Error("job transition failed", "error", err)
			return
		}
		observability.ObserveJobFinished(string(task.Kind), true, elapsed)
		logger.Info("job completed", "duration", elapsed)
		return
	}

	current, _ := r.ledger.Get(task.ID)
	if current.State == tasks.StateQueued {
		if _, err := r.ledger.Transition(task.ID, tasks.StateProcessing, ""); err != nil {
			logger.Error("job transition failed", "error", err)
			return
		}
		observability.ObserveJobStarted(string(task.Kind))
	}
	if _, err := r.ledger.Transition(task.ID, tasks.StateFailed, jobErr.Error()); err != nil {
		logger.Error("job transition failed", "error", err)
		return
	}
	observability.ObserveJobFinished(string(task.Kind), false, elapsed)
	logger.Warn("job failed", "duration", elapsed, "error", jobErr)
}

func invoke(ctx context.Context, fn Func) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("job panicked: %v", recovered)
		}
	}()
	return fn(ctx)
}
