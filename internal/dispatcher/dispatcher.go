// Package dispatcher assembles the Work Queue, workers, Notification
// Queuer, Catch-Up Poller and Housekeeping loop into one supervised
// process, the way consumer.Service.QueueTasks assembled a Resolver's
// watch loop and gRPC drain into one task.Group -- here with
// internal/taskgroup standing in for the gazette task package.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.eventlog.dev/core/internal/catchup"
	"go.eventlog.dev/core/internal/housekeeping"
	"go.eventlog.dev/core/internal/notifier"
	"go.eventlog.dev/core/internal/queuer"
	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/router"
	"go.eventlog.dev/core/internal/store"
	"go.eventlog.dev/core/internal/taskgroup"
	"go.eventlog.dev/core/internal/worker"
	"go.eventlog.dev/core/internal/workqueue"
)

// Config is the subset of spec §6's recognised configuration that
// shapes a Dispatcher's topology.
type Config struct {
	WorkerCount         int
	MaxDrainRounds      int
	MaxPerReactor       int
	CatchupInterval     time.Duration
	HousekeepingInterval time.Duration
	ClaimTTL            time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.MaxDrainRounds <= 0 {
		c.MaxDrainRounds = 10
	}
	if c.MaxPerReactor <= 0 {
		c.MaxPerReactor = 1
	}
	if c.CatchupInterval <= 0 {
		c.CatchupInterval = 5 * time.Second
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = 30 * time.Second
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 120 * time.Second
	}
	return c
}

// Dispatcher is the top-level runtime process: it owns the queue,
// workers, queuer, poller and housekeeping loop for one eventlogd
// process.
type Dispatcher struct {
	cfg      Config
	store    store.Store
	notifier notifier.Notifier
	reactors *reactor.Registry

	queue     *workqueue.Queue
	router    *router.Router
	workers   []*worker.Worker
	workerIDs []string
	queuer    *queuer.Queuer
	poller    *catchup.Poller
	house     *housekeeping.Loop

	group *taskgroup.Group
}

// New wires a Dispatcher's subsystems but starts nothing; call Run to
// start it.
func New(s store.Store, n notifier.Notifier, reactors *reactor.Registry, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()

	q := workqueue.New(cfg.MaxPerReactor)
	rt := router.New(s, reactors)

	// Per-process token, so two cooperating processes (spec §5) never
	// mint the same worker id and shadow each other in the shared
	// workers table -- the stale-claim reaper's liveness cross-check
	// (pgstore.go ReleaseStaleClaims) depends on worker ids being
	// globally unique, not just unique within one process.
	processID := uuid.New().String()[:8]
	workerIDs := make([]string, cfg.WorkerCount)
	for i := range workerIDs {
		workerIDs[i] = fmt.Sprintf("worker-%s-%d", processID, i)
	}

	return &Dispatcher{
		cfg:       cfg,
		store:     s,
		notifier:  n,
		reactors:  reactors,
		queue:     q,
		router:    rt,
		workerIDs: workerIDs,
		queuer:    queuer.New(n, reactors, q),
		poller:    catchup.New(s, reactors, q, cfg.CatchupInterval),
		house:     housekeeping.New(s, workerIDs, cfg.HousekeepingInterval, cfg.ClaimTTL),
	}
}

// Run starts every subsystem under ctx and blocks until Stop is called
// or a subsystem returns an unrecoverable error.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.group = taskgroup.NewGroup(ctx)

	for _, id := range d.workerIDs {
		w := worker.New(d.group.Context(), id, d.queue, d.router, d.cfg.MaxDrainRounds)
		d.workers = append(d.workers, w)
		d.group.Queue(w.Name, w.Run)
	}

	d.group.Queue("queuer", func() error { return d.queuer.Run(d.group.Context()) })
	d.group.Queue("catchup-poller", func() error { return d.poller.Run(d.group.Context()) })
	d.group.Queue("housekeeping", func() error { return d.house.Run(d.group.Context()) })

	// Prime the queue once at startup, so workers have something to do
	// before the first notification or catch-up tick arrives.
	for _, groupID := range d.reactors.AllGroupIDs() {
		d.queue.Push(groupID)
	}

	<-d.group.Context().Done()
	d.queue.Close()
	return d.group.Wait()
}

// Stop closes the notifier, then cancels the context every subsystem
// shares, then closes the queue. The queuer, catch-up poller and
// housekeeping loop all stop on that one cancellation, at the same time
// as the workers see it; Stop does not wait for workers to finish a
// turn in flight before cancelling, and the cancelled context reaches
// that turn's store calls. Workers return once the closed queue's
// backlog is empty. Stop itself returns without waiting for any
// subsystem to exit; Run returns once they all have.
func (d *Dispatcher) Stop() error {
	if err := d.notifier.Close(); err != nil {
		log.WithError(err).Warn("closing notifier during shutdown")
	}
	if d.group != nil {
		d.group.Cancel()
	}
	d.queue.Close()
	return nil
}
