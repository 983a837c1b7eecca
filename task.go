package encpack

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// RunnerConfig controls background execution of packer operations
type RunnerConfig struct {
	// MaxWorkers is the maximum number of operations running at once
	// If 0, defaults to runtime.NumCPU()
	MaxWorkers int
}

// Validate checks if the runner configuration is valid
func (c *RunnerConfig) Validate() error {
	if c.MaxWorkers < 0 {
		return errors.New("runner max workers cannot be negative")
	}
	if c.MaxWorkers > 1024 {
		return errors.New("runner max workers must not exceed 1024")
	}
	return nil
}

// DefaultRunnerConfig returns the default runner configuration
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxWorkers: runtime.NumCPU(),
	}
}

// Runner executes operations on a bounded number of goroutines
type Runner struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewRunner creates a runner
func NewRunner(config RunnerConfig) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("max_workers", config.MaxWorkers, err.Error())
	}
	workers := config.MaxWorkers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{slots: make(chan struct{}, workers)}, nil
}

// Wait blocks until every submitted task has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Task is the pending result of an operation submitted to a Runner
type Task[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Done is closed once the task has a result
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait returns the task result, or ctx.Err() if ctx ends first. The task
// itself keeps running.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on r. If ctx is cancelled before fn starts, fn never
// runs and the task fails with the context error. A panic in fn is
// returned as the task error.
func Submit[T any](ctx context.Context, r *Runner, fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(t.done)

		select {
		case r.slots <- struct{}{}:
		case <-ctx.Done():
			t.err = ctx.Err()
			return
		}
		defer func() { <-r.slots }()

		if err := ctx.Err(); err != nil {
			t.err = err
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				// Convert panic to error
				var zero T
				t.result = zero
				t.err = fmt.Errorf("panic in packer task: %v", rec)
			}
		}()
		t.result, t.err = fn()
	}()

	return t
}

// BuildAsync runs Build on r
func (p *Packer) BuildAsync(ctx context.Context, r *Runner, entries []Entry, password []byte, outputPath string, params KDFParams) *Task[struct{}] {
	return Submit(ctx, r, func() (struct{}, error) {
		return struct{}{}, p.Build(entries, password, outputPath, params)
	})
}

// InspectAsync runs Inspect on r
func (p *Packer) InspectAsync(ctx context.Context, r *Runner, packagePath string) *Task[*PackageInfo] {
	return Submit(ctx, r, func() (*PackageInfo, error) {
		return p.Inspect(packagePath)
	})
}

// ExtractAsync runs Extract on r
func (p *Packer) ExtractAsync(ctx context.Context, r *Runner, packagePath string, password []byte, outputDir string) *Task[string] {
	return Submit(ctx, r, func() (string, error) {
		return p.Extract(packagePath, password, outputDir)
	})
}

// VerifyAsync runs Verify on r
func (p *Packer) VerifyAsync(ctx context.Context, r *Runner, packagePath string, password []byte) *Task[*VerifyReport] {
	return Submit(ctx, r, func() (*VerifyReport, error) {
		return p.Verify(packagePath, password)
	})
}
