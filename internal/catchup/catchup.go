// Package catchup implements the Catch-Up Poller of spec §4.5: every
// interval, push every eligible reactor onto the Work Queue,
// compensating for missed notifications (restart, network glitch,
// LISTEN connection loss).
package catchup

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/store"
	"go.eventlog.dev/core/internal/workqueue"
)

type Poller struct {
	store    store.Store
	reactors *reactor.Registry
	queue    *workqueue.Queue
	interval time.Duration
}

func New(s store.Store, reactors *reactor.Registry, q *workqueue.Queue, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{store: s, reactors: reactors, queue: q, interval: interval}
}

// Run ticks every p.interval, pushing every registered reactor whose
// group is currently eligible (active, and not waiting out a retry_at).
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	eligible, err := p.store.EligibleConsumerGroupIDs(ctx)
	if err != nil {
		log.WithError(err).Error("catch-up poller: listing eligible groups")
		return
	}
	eligibleSet := make(map[string]struct{}, len(eligible))
	for _, id := range eligible {
		eligibleSet[id] = struct{}{}
	}
	for _, groupID := range p.reactors.AllGroupIDs() {
		if _, ok := eligibleSet[groupID]; ok {
			p.queue.Push(groupID)
		}
	}
}
