// Command eventlogd runs the event log dispatch engine: it migrates the
// schema, registers the built-in reactors, and serves worker/queuer/
// poller/housekeeping subsystems until signalled to stop. Adapted from
// wordcountctl/main.go's go-flags command layout.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/jackc/pgx/v5/pgxpool"

	"go.eventlog.dev/core/internal/dispatcher"
	"go.eventlog.dev/core/internal/mbp"
	"go.eventlog.dev/core/internal/notifier"
	"go.eventlog.dev/core/internal/operator"
	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/reactor/examplecart"
	"go.eventlog.dev/core/internal/store"
)

var Config = new(struct {
	DB  dbConfig      `group:"Database" namespace:"db" env-namespace:"DB"`
	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

type dbConfig struct {
	DSN         string `long:"dsn" env:"DSN" required:"true" description:"PostgreSQL connection string"`
	TablePrefix string `long:"table-prefix" env:"TABLE_PREFIX" default:"eventlog_" description:"Prefix applied to all reserved table names"`
}

type cmdServe struct {
	WorkerCount          int `long:"worker-count" env:"WORKER_COUNT" default:"2"`
	MaxDrainRounds       int `long:"max-drain-rounds" env:"MAX_DRAIN_ROUNDS" default:"10"`
	CatchupIntervalSec   int `long:"catchup-interval" env:"CATCHUP_INTERVAL" default:"5"`
	HousekeepingIntervalSec int `long:"housekeeping-interval" env:"HOUSEKEEPING_INTERVAL" default:"30"`
	ClaimTTLSec          int `long:"claim-ttl" env:"CLAIM_TTL" default:"120"`
}

func (cmd *cmdServe) Execute([]string) error {
	Config.Log.MustConfigure()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, Config.DB.DSN)
	mbp.Must(err, "connecting to database")
	defer pool.Close()

	n := notifier.NewPG(pool)
	s := store.New(pool, n, store.Config{TablePrefix: Config.DB.TablePrefix})
	mbp.Must(s.Migrate(ctx), "applying schema migrations")

	reactors := reactor.NewRegistry()
	cart := examplecart.New("examplecart")
	reactors.Register(cart)
	for _, r := range reactors.All() {
		mbp.Must(s.RegisterConsumerGroup(ctx, r.GroupID()), "registering consumer group", "group", r.GroupID())
	}

	d := dispatcher.New(s, n, reactors, dispatcher.Config{
		WorkerCount:          cmd.WorkerCount,
		MaxDrainRounds:       cmd.MaxDrainRounds,
		CatchupInterval:      time.Duration(cmd.CatchupIntervalSec) * time.Second,
		HousekeepingInterval: time.Duration(cmd.HousekeepingIntervalSec) * time.Second,
		ClaimTTL:             time.Duration(cmd.ClaimTTLSec) * time.Second,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, stopping dispatcher")
		mbp.Must(d.Stop(), "stopping dispatcher")
	}()

	log.Info("eventlogd serving")
	return d.Run(ctx)
}

type groupArg struct {
	GroupID string `long:"group" required:"true" description:"Consumer group id"`
}

type cmdStop struct {
	groupArg
	Reason string `long:"reason" description:"Recorded as the group's error_context"`
}

func (cmd *cmdStop) Execute([]string) error {
	return withOperator(func(op *operator.Operator, ctx context.Context) error {
		return op.Stop(ctx, cmd.GroupID, cmd.Reason)
	})
}

type cmdStart struct{ groupArg }

func (cmd *cmdStart) Execute([]string) error {
	return withOperator(func(op *operator.Operator, ctx context.Context) error {
		return op.Start(ctx, cmd.GroupID)
	})
}

type cmdReset struct{ groupArg }

func (cmd *cmdReset) Execute([]string) error {
	return withOperator(func(op *operator.Operator, ctx context.Context) error {
		return op.Reset(ctx, cmd.GroupID)
	})
}

type cmdStats struct{ groupArg }

func (cmd *cmdStats) Execute([]string) error {
	return withOperator(func(op *operator.Operator, ctx context.Context) error {
		stats, err := op.Stats(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"group":           stats.GroupID,
			"status":          stats.Status,
			"oldest_seq":      stats.OldestGlobalSeq,
			"newest_seq":      stats.NewestGlobalSeq,
			"streams":         stats.StreamCount,
			"highest_seq":     stats.HighestGlobalSeq,
		}).Info("stats")
		return nil
	})
}

func withOperator(fn func(op *operator.Operator, ctx context.Context) error) error {
	Config.Log.MustConfigure()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, Config.DB.DSN)
	mbp.Must(err, "connecting to database")
	defer pool.Close()

	n := notifier.NewPG(pool)
	s := store.New(pool, n, store.Config{TablePrefix: Config.DB.TablePrefix})
	return fn(operator.New(s), ctx)
}

func main() {
	parser := flags.NewParser(Config, flags.Default)

	_, err := parser.AddCommand("serve", "Run the dispatch engine",
		"Migrate the schema, register reactors, and serve workers until signalled to stop.", &cmdServe{})
	mbp.Must(err, "failed to add serve command")

	_, err = parser.AddCommand("stop", "Stop a consumer group", "", &cmdStop{})
	mbp.Must(err, "failed to add stop command")

	_, err = parser.AddCommand("start", "Start a consumer group", "", &cmdStart{})
	mbp.Must(err, "failed to add start command")

	_, err = parser.AddCommand("reset", "Reset a consumer group's offsets", "", &cmdReset{})
	mbp.Must(err, "failed to add reset command")

	_, err = parser.AddCommand("stats", "Report consumer group stats", "", &cmdStats{})
	mbp.Must(err, "failed to add stats command")

	mbp.MustParseArgs(parser)
}
