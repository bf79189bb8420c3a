// Package taskgroup supervises the dispatch engine's goroutines -- one
// per worker, plus the queuer, poller and housekeeping loop. It stands in for the teacher's go.gazette.dev/core/task.Group,
// which isn't part of this module's dependency surface: a Group here is a
// shared cancellation context plus a WaitGroup, with named tasks so a
// failure can be attributed to the goroutine that caused it.
package taskgroup

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Group runs named tasks under one cancellation context. The first task
// to return a non-nil error cancels the rest; Wait blocks for every
// queued task to finish and returns that first error, if any.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	mu      sync.Mutex
	err     error
	errName string
}

// NewGroup derives a cancellable context from parent for the group's tasks.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Context is cancelled once any queued task returns an error, or Cancel
// is called directly.
func (g *Group) Context() context.Context { return g.ctx }

// Queue runs fn in its own goroutine under name. fn should observe
// Context().Done() and return promptly once it fires.
func (g *Group) Queue(name string, fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.mu.Lock()
			if g.err == nil {
				g.err = err
				g.errName = name
			}
			g.mu.Unlock()
			g.cancel()
		}
	}()
}

// Cancel stops the group's context without recording an error.
func (g *Group) Cancel() { g.cancel() }

// Wait blocks until every queued task has returned, then returns the
// first error encountered (wrapped with the task's name), or nil.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		return nil
	}
	return errors.WithMessage(g.err, g.errName)
}
