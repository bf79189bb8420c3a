// Package worker implements the bounded drain loop of spec §4.6: pop a
// reactor class, hand it to the Router up to max_drain_rounds times, and
// re-enqueue only if every round in the batch was productive.
package worker

import (
	"context"

	log "github.com/sirupsen/logrus"

	"go.eventlog.dev/core/internal/workqueue"
)

// Router is the subset of *router.Router a Worker needs.
type Router interface {
	HandleNextFor(ctx context.Context, groupID, workerID string) (bool, error)
}

type Worker struct {
	Name           string
	Queue          *workqueue.Queue
	Router         Router
	MaxDrainRounds int

	ctx context.Context
}

// New returns a Worker named name, draining q via rt under ctx.
func New(ctx context.Context, name string, q *workqueue.Queue, rt Router, maxDrainRounds int) *Worker {
	if maxDrainRounds <= 0 {
		maxDrainRounds = 10
	}
	return &Worker{Name: name, Queue: q, Router: rt, MaxDrainRounds: maxDrainRounds, ctx: ctx}
}

// Run pops reactor classes until the queue closes. It never returns an
// error: handler failures are handled per-message inside HandleNextFor
// (via the reactor's OnException), and an error HandleNextFor itself
// returns (such as a failed reservation) is logged and ends that drain.
func (w *Worker) Run() error {
	for {
		groupID, ok := w.Queue.Pop()
		if !ok {
			return nil
		}
		if w.drain(groupID) {
			w.Queue.Push(groupID)
		}
	}
}

// drain calls HandleNextFor up to MaxDrainRounds times, returning true
// iff every round was productive (there is probably more work for this
// reactor right now).
func (w *Worker) drain(groupID string) bool {
	for i := 0; i < w.MaxDrainRounds; i++ {
		processed, err := w.Router.HandleNextFor(w.ctx, groupID, w.Name)
		if err != nil {
			log.WithFields(log.Fields{"worker": w.Name, "group": groupID}).
				WithError(err).Error("handle_next_for failed")
			return false
		}
		if !processed {
			return false
		}
	}
	return true
}
