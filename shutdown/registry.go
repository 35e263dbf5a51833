// Package shutdown runs named cleanup steps in priority order when the
// server stops.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"pixelbatch/logging"
)

// Func is a cleanup step. It should return promptly once ctx is done.
type Func func(ctx context.Context) error

// Priorities used by the serve command. Lower runs first.
const (
	PriorityListener = 10
	PriorityRuns     = 20
	PriorityHub      = 30
	PriorityStorage  = 40
)

type entry struct {
	name     string
	fn       Func
	priority int
}

// Registry holds cleanup steps and runs them once.
//
//	registry := shutdown.NewRegistry(logger)
//	registry.Register("http server", shutdown.PriorityListener, server.Shutdown)
//	registry.Register("database", shutdown.PriorityStorage, func(context.Context) error {
//	    return database.Close()
//	})
//	err := registry.Shutdown(ctx)
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
	log     *logging.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{log: log.Named("shutdown")}
}

// Register adds a step. Steps with equal priority run in registration
// order. Registering after Shutdown is a no-op.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, fn: fn, priority: priority})
}

// Names returns the registered step names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	sorted := r.sorted()
	r.mu.Unlock()

	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Shutdown runs every step, even after failures, and joins their errors.
// Later calls return nil.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, e := range sorted {
		start := time.Now()
		err := e.fn(ctx)
		if err != nil {
			r.log.Error("shutdown step failed", zap.String("step", e.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		r.log.Debug("shutdown step done", zap.String("step", e.name), zap.Duration("duration", time.Since(start)))
	}
	return errors.Join(errs...)
}

// sorted copies the entries in priority order. Callers hold mu.
func (r *Registry) sorted() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// WaitFunc adapts a blocking wait, such as sync.WaitGroup.Wait, into a
// step that gives up when ctx is done.
func WaitFunc(wait func()) Func {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
