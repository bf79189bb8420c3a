// Package reactor defines the contract the dispatch engine consumes: a
// Reactor handles messages of declared types for one consumer group and
// returns a list of explicit Actions for the Router to execute inside a
// transaction. Reactors never perform side effects directly -- the same
// separation the teacher's Message/Framing/Mappable trio draws between
// a user type and how the runtime transports it, applied here to what a
// handler may *do* rather than how a message is framed.
package reactor

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"go.eventlog.dev/core/internal/store"
)

// Reactor is implemented by both actors (command handlers with
// reactions) and projectors (event folders). Evolve may be a no-op
// (returning state unchanged) for reactors that don't fold history.
type Reactor interface {
	// GroupID names this reactor's consumer group; one row in
	// consumer_groups per distinct GroupID.
	GroupID() string
	// HandledTypes lists the message types this reactor's Handle
	// accepts. The Notification Queuer and Router both consult it.
	HandledTypes() []string
	// NeedsHistory reports whether the Router must fold the stream's
	// prior messages through Evolve before calling Handle. Projectors
	// and actors with reactions typically need this; simple one-shot
	// handlers may not.
	NeedsHistory() bool
	// InitialState returns the zero state Evolve starts folding from.
	InitialState() any
	// Evolve folds one historical message into state. Called once per
	// message in stream order, oldest first, when NeedsHistory is true.
	Evolve(state any, msg store.Message) any
	// Handle processes one message against the folded state and
	// returns the Actions to execute. replaying is true when this
	// message has already been seen by this group (global_seq <=
	// group high-water mark); side-effectful reactors should consult
	// it to suppress re-firing reactions during a replay.
	Handle(ctx context.Context, msg store.Message, state any, history []store.Message, replaying bool) ([]Action, error)
	// OnException decides what happens after Handle (or action
	// execution) returns an error.
	OnException(err error, msg store.Message, groupID string) ExceptionDecision
}

// Action is the sum type Handle returns instead of performing side
// effects itself. The Router executes the list transactionally.
type Action interface{ isAction() }

// AppendNext appends Messages now, auto-correlated to the message that
// triggered this turn: CausationID is the trigger's id, CorrelationID is
// the trigger's correlation (or the trigger's own id if it's a root).
type AppendNext struct{ Messages []store.NewMessage }

// AppendAfter is AppendNext, but CausationID chains from the last
// message this turn already produced rather than from the trigger --
// for reactions produced after an Evolve-visible event.
type AppendAfter struct{ Messages []store.NewMessage }

// Sync runs Fn as an in-transaction side effect (e.g. updating a
// denormalised read-model row in the same database).
type Sync struct{ Fn func(ctx context.Context, tx pgx.Tx) error }

// Schedule writes Messages to the scheduled table; they become eligible
// for delivery once At has passed.
type Schedule struct {
	Messages []store.NewMessage
	At       time.Time
}

func (AppendNext) isAction()  {}
func (AppendAfter) isAction() {}
func (Sync) isAction()        {}
func (Schedule) isAction()    {}

// ExceptionKind enumerates the outcomes OnException may choose.
type ExceptionKind int

const (
	// Retry writes RetryAt on the group; the Catch-Up Poller will make
	// it re-eligible at that time.
	Retry ExceptionKind = iota
	// Stop sets the group's status to stopped and records Reason as
	// error_context; dispatching halts until an explicit
	// StartConsumerGroup.
	Stop
	// Continue acks the failing message and moves on. Dangerous,
	// opt-in only: the message is treated as successfully handled.
	Continue
)

// ExceptionDecision is OnException's return value.
type ExceptionDecision struct {
	Kind    ExceptionKind
	At      time.Time // for Retry
	Reason  string     // for Stop
}

func RetryAt(at time.Time) ExceptionDecision { return ExceptionDecision{Kind: Retry, At: at} }
func StopWith(reason string) ExceptionDecision {
	return ExceptionDecision{Kind: Stop, Reason: reason}
}
func ContinuePast() ExceptionDecision { return ExceptionDecision{Kind: Continue} }
