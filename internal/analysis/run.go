package analysis

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// processFunc analyzes one file and returns the values to publish for it.
// Values are published only when the whole file succeeded.
type processFunc[T any] func(ctx context.Context, path string) ([]T, error)

// finishFunc runs once after every worker returned. aborted is true when
// the run was canceled before all files were handled.
type finishFunc func(aborted bool) error

// Run is a handle on an analysis running in the background.
//
// Results streams per-file values as files complete. Failures, Skipped and
// Err wait for the run to end, discarding any values not yet consumed.
type Run[T any] struct {
	results chan T
	done    chan struct{}
	parent  context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	failures  []FileError
	skipped   []string
	finishErr error
}

// start launches the worker pool over files.
func start[T any](parent context.Context, files []string, workers int, process processFunc[T], finish finishFunc) *Run[T] {
	ctx, cancel := context.WithCancel(parent)
	r := &Run[T]{
		results: make(chan T),
		done:    make(chan struct{}),
		parent:  parent,
		cancel:  cancel,
	}

	go func() {
		defer close(r.done)
		defer close(r.results)
		defer cancel()

		g := new(errgroup.Group)
		g.SetLimit(max(workers, 1))

		for _, path := range files {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				r.handle(ctx, path, process)
				return nil
			})
		}
		_ = g.Wait()

		if finish != nil {
			if err := finish(ctx.Err() != nil); err != nil {
				r.mu.Lock()
				r.finishErr = err
				r.mu.Unlock()
			}
		}
	}()
	return r
}

func (r *Run[T]) handle(ctx context.Context, path string, process processFunc[T]) {
	if ctx.Err() != nil {
		return
	}
	log := GetLogger().With(logger.String("file", path))

	values, err := process(ctx, path)
	switch {
	case errors.Is(err, errSkipped):
		log.Info("skipping file, results exist")
		r.mu.Lock()
		r.skipped = append(r.skipped, path)
		r.mu.Unlock()
		return
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		log.Debug("file analysis canceled")
		return
	case err != nil:
		fe := newFileError(path, err)
		log.Error("file analysis failed",
			logger.String("reason", fe.Reason),
			logger.Error(err))
		r.mu.Lock()
		r.failures = append(r.failures, *fe)
		r.mu.Unlock()
		return
	}

	for _, v := range values {
		select {
		case r.results <- v:
		case <-ctx.Done():
			return
		}
	}
}

// Results streams values as files complete. Breaking out of the loop
// cancels the remaining work and waits for the workers to exit.
func (r *Run[T]) Results() iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range r.results {
			if !yield(v) {
				r.Stop()
				return
			}
		}
	}
}

// Stop cancels the run and waits for it to end.
func (r *Run[T]) Stop() {
	r.cancel()
	r.Wait()
}

// Wait blocks until the run ends, discarding unconsumed results.
func (r *Run[T]) Wait() {
	for range r.results {
	}
	<-r.done
}

// Failures lists the files that could not be analyzed.
func (r *Run[T]) Failures() []FileError {
	r.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FileError(nil), r.failures...)
}

// Skipped lists the files whose results already existed.
func (r *Run[T]) Skipped() []string {
	r.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.skipped...)
}

// Err joins every file failure, a failure to finalize run-wide outputs and
// the cancellation of the parent context. It is nil when every file was
// analyzed or skipped.
func (r *Run[T]) Err() error {
	r.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := range r.failures {
		errs = append(errs, &r.failures[i])
	}
	if r.finishErr != nil {
		errs = append(errs, r.finishErr)
	}
	if err := r.parent.Err(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", errors.ErrAnalysisCanceled, err))
	}
	return errors.Join(errs...)
}
