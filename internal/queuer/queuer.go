// Package queuer implements the Notification Queuer of spec §4.4:
// subscribes to the Notifier and translates its two signal kinds into
// Work Queue pushes, fanning a messages_appended signal out to every
// reactor whose handled_types intersect it.
package queuer

import (
	"context"

	log "github.com/sirupsen/logrus"

	"go.eventlog.dev/core/internal/notifier"
	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/workqueue"
)

type Queuer struct {
	notifier notifier.Notifier
	reactors *reactor.Registry
	queue    *workqueue.Queue
}

func New(n notifier.Notifier, reactors *reactor.Registry, q *workqueue.Queue) *Queuer {
	return &Queuer{notifier: n, reactors: reactors, queue: q}
}

// Run subscribes to the Notifier and pushes reactors onto the Work
// Queue until ctx is done or the signal channel closes.
func (qr *Queuer) Run(ctx context.Context) error {
	signals, err := qr.notifier.Listen(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			qr.dispatch(sig)
		}
	}
}

func (qr *Queuer) dispatch(sig notifier.Signal) {
	switch sig.Kind {
	case notifier.MessagesAppended:
		seen := make(map[string]struct{})
		for _, t := range sig.Types {
			for _, rc := range qr.reactors.ForType(t) {
				if _, ok := seen[rc.GroupID()]; ok {
					continue
				}
				seen[rc.GroupID()] = struct{}{}
				qr.queue.Push(rc.GroupID())
			}
		}
	case notifier.ReactorResumed:
		if _, ok := qr.reactors.Get(sig.GroupID); ok {
			qr.queue.Push(sig.GroupID)
		}
	default:
		log.WithField("kind", sig.Kind).Warn("unrecognised notifier signal kind")
	}
}
