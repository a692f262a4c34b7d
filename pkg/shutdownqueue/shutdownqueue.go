// Package shutdownqueue is a process-wide LIFO queue of named cleanup tasks.
//
// Components register their own teardown next to where they start:
//
//	shutdownqueue.Add("http server", srv.Shutdown)
//
// and main drains the queue once on exit:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
//	defer cancel()
//	err := shutdownqueue.Shutdown(ctx)
//
// Tasks run once, newest first. Panics are recovered and reported as errors.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task releases one resource. It should give up when ctx is done.
type Task func(ctx context.Context) error

type entry struct {
	name string
	run  Task
}

type queue struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

var q = &queue{entries: make([]entry, 0, 8)}

// Add registers t under name. Nil tasks and tasks added once Shutdown has
// started are ignored.
func Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		slog.Warn("shutdown task registered too late, ignoring", "task", name)
		return
	}

	q.entries = append(q.entries, entry{name: name, run: t})
}

// Shutdown runs every registered task in reverse order of registration.
// Only the first call does any work.
//
// When ctx ends mid-drain the remaining tasks are skipped and the context
// error is joined with the task errors collected so far.
func Shutdown(ctx context.Context) error {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.closed = true
	q.mu.Unlock()

	var errs []error

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]

		if ctx.Err() != nil {
			slog.Warn("shutdown interrupted", "pending", i+1, "error", ctx.Err())
			errs = append(errs, fmt.Errorf("shutdown canceled: %w", ctx.Err()))

			break
		}

		start := time.Now()

		err := runTask(ctx, e)
		if err != nil {
			slog.Error("shutdown task failed", "task", e.name, "duration", time.Since(start), "error", err)
			errs = append(errs, err)

			continue
		}

		slog.Info("shutdown task done", "task", e.name, "duration", time.Since(start))
	}

	return errors.Join(errs...)
}

func runTask(ctx context.Context, e entry) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("%s: panic in shutdown task: %v", e.name, r)
		}
	}()

	err = e.run(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}

	return nil
}
