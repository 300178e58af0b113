package jobs

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/notedeck/notedeck/pkg/types"
)

// TaskFunc is one unit of background work. It reports progress (0-100)
// through report and returns a structured result or an error. A returned
// non-nil result alongside an error is recorded as a partial result.
type TaskFunc func(ctx context.Context, report func(progress int)) (map[string]any, error)

// Runner executes tasks in the background, recording their lifecycle
// through a Tracker. Each submitted task gets a durable command record the
// caller can poll while the work runs.
type Runner struct {
	tracker *Tracker
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner returns a Runner recording through tracker.
func NewRunner(tracker *Tracker, opts ...RunnerOption) *Runner {
	r := &Runner{tracker: tracker, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit records a queued job and starts task in the background, returning
// the job id immediately. The record moves to running when the task starts
// and terminates in completed or failed.
func (r *Runner) Submit(ctx context.Context, app, command string, input map[string]any, task TaskFunc) (string, error) {
	id, err := r.tracker.Create(ctx, app, command, input)
	if err != nil {
		return "", err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, id, task)
	}()
	return id, nil
}

// Wait blocks until every submitted task has terminated.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, id string, task TaskFunc) {
	if err := r.tracker.UpdateStatus(ctx, id, types.JobRunning); err != nil {
		r.logger.Error("could not mark command running", zap.String("id", id), zap.Error(err))
		return
	}

	report := func(progress int) {
		if err := r.tracker.UpdateStatus(ctx, id, types.JobRunning, WithProgress(progress)); err != nil {
			r.logger.Warn("progress update failed", zap.String("id", id), zap.Error(err))
		}
	}

	result, err := runTask(ctx, task, report)
	if err != nil {
		opts := []UpdateOption{WithError(err.Error())}
		if result != nil {
			opts = append(opts, WithResult(result))
		}
		if uerr := r.tracker.UpdateStatus(ctx, id, types.JobFailed, opts...); uerr != nil {
			r.logger.Error("could not mark command failed", zap.String("id", id), zap.Error(uerr))
		}
		r.logger.Warn("command failed", zap.String("id", id), zap.Error(err))
		return
	}

	opts := []UpdateOption{WithProgress(100)}
	if result != nil {
		opts = append(opts, WithResult(result))
	}
	if uerr := r.tracker.UpdateStatus(ctx, id, types.JobCompleted, opts...); uerr != nil {
		r.logger.Error("could not mark command completed", zap.String("id", id), zap.Error(uerr))
		return
	}
	r.logger.Info("command completed", zap.String("id", id))
}

// runTask executes the task, converting a panic into a failure so a bad
// task cannot crash the process.
func runTask(ctx context.Context, task TaskFunc, report func(int)) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return task(ctx, report)
}
