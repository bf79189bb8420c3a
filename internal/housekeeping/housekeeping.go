// Package housekeeping implements spec §4.8: one goroutine per process,
// ticking heartbeats for this process's local workers, reaping claims
// left stale by a previously killed process, and promoting scheduled
// messages whose available_at has passed into the log.
package housekeeping

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"go.eventlog.dev/core/internal/store"
)

type Loop struct {
	store     store.Store
	workerIDs []string
	interval  time.Duration
	claimTTL  time.Duration
}

func New(s store.Store, workerIDs []string, interval, claimTTL time.Duration) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if claimTTL <= 0 {
		claimTTL = 120 * time.Second
	}
	return &Loop{store: s, workerIDs: workerIDs, interval: interval, claimTTL: claimTTL}
}

// Run performs one reap immediately -- required to recover claims held
// by a process that was killed before it could release them -- then
// repeats every interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if _, err := l.store.RecordWorkerHeartbeat(ctx, l.workerIDs); err != nil {
		log.WithError(err).Error("recording worker heartbeats")
	}

	if n, err := l.store.ReleaseStaleClaims(ctx, l.claimTTL); err != nil {
		log.WithError(err).Error("releasing stale claims")
	} else if n > 0 {
		log.WithField("count", n).Info("released stale claims")
	}

	if n, err := l.store.PromoteDueScheduledMessages(ctx); err != nil {
		log.WithError(err).Error("promoting due scheduled messages")
	} else if n > 0 {
		log.WithField("count", n).Info("promoted scheduled messages")
	}
}
