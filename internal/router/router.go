// Package router implements the single-turn dispatch contract: reserve
// one message for a reactor's consumer group, fold state, invoke the
// reactor, execute its actions transactionally, and ack. It plays the
// role the teacher's Resolver played for a shard -- the one place that
// turns "a reactor class and a worker id" into "the next unit of real
// work" -- except resolution here is a database claim, not an Etcd
// keyspace lookup.
//
// A turn's appended messages, its messages_appended signal and its ack
// commit in one transaction before HandleNextFor returns. If the process
// dies after that commit but before a listener has acted on the signal,
// the Catch-Up Poller re-enqueues the group on its next tick.
package router

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/store"
)

// Router resolves reactor classes to claimed messages and drives one
// turn of processing per call to HandleNextFor.
type Router struct {
	store    store.Store
	reactors *reactor.Registry
}

func New(s store.Store, reactors *reactor.Registry) *Router {
	return &Router{store: s, reactors: reactors}
}

// HandleNextFor is spec §4.7's handle_next_for: true means a turn was
// consumed (productively or not -- an error still counts, since a claim
// was reserved and released); false means there was nothing to claim.
func (rt *Router) HandleNextFor(ctx context.Context, groupID, workerID string) (bool, error) {
	rc, ok := rt.reactors.Get(groupID)
	if !ok {
		return false, errors.Errorf("no reactor registered for group %q", groupID)
	}

	claim, err := rt.store.ReserveNextForWorker(ctx, groupID, rc.HandledTypes(), workerID)
	if err != nil {
		return false, errors.WithMessage(err, "reserving next message")
	}
	if claim == nil {
		return false, nil
	}

	if err := rt.runTurn(ctx, rc, claim); err != nil {
		var lost *store.ClaimLostError
		if errors.As(err, &lost) {
			rt.handleClaimLost(ctx, claim, lost)
		} else {
			// The claim is always released before the reactor's
			// OnException is consulted, so the stream is never left
			// claimed while the group waits out a retry or sits stopped.
			rt.release(ctx, claim)
			rt.handleException(ctx, rc, err, claim)
		}
	}
	return true, nil
}

func (rt *Router) runTurn(ctx context.Context, rc reactor.Reactor, claim *store.Claim) error {
	msg := claim.Message

	var history []store.Message
	state := rc.InitialState()
	if rc.NeedsHistory() {
		var err error
		history, err = rt.store.ReadStream(ctx, claim.StreamID, nil, seqBefore(msg.Seq))
		if err != nil {
			return errors.WithMessage(err, "loading stream history")
		}
		for _, h := range history {
			state = rc.Evolve(state, h)
		}
	}

	actions, err := rc.Handle(ctx, msg, state, history, claim.Replaying)
	if err != nil {
		return err
	}

	return rt.store.RunTurn(ctx, claim, func(t *store.Turn) error {
		last := msg
		for _, a := range actions {
			switch act := a.(type) {
			case reactor.AppendNext:
				attachLineage(act.Messages, msg, msg)
				appended, err := t.Append(act.Messages)
				if err != nil {
					return err
				}
				if len(appended) > 0 {
					last = appended[len(appended)-1]
				}
			case reactor.AppendAfter:
				attachLineage(act.Messages, last, msg)
				appended, err := t.Append(act.Messages)
				if err != nil {
					return err
				}
				if len(appended) > 0 {
					last = appended[len(appended)-1]
				}
			case reactor.Sync:
				if err := t.Sync(act.Fn); err != nil {
					return err
				}
			case reactor.Schedule:
				attachLineage(act.Messages, msg, msg)
				if err := t.Schedule(act.Messages, act.At); err != nil {
					return err
				}
			default:
				return errors.Errorf("unknown action type %T", a)
			}
		}
		return t.Ack(msg.GlobalSeq)
	})
}

func (rt *Router) release(ctx context.Context, claim *store.Claim) {
	if err := rt.store.Release(ctx, claim); err != nil {
		log.WithFields(log.Fields{
			"group":  claim.GroupID,
			"stream": claim.StreamID,
		}).WithError(err).Error("releasing claim after failed turn")
	}
}

// handleClaimLost responds to a claim the stale-claim reaper released out
// from under an in-flight turn (spec §7: release + requeue) -- the
// turn's transaction never committed, so nothing it did is visible, and
// there is no reactor business decision to make here, only an infra
// race. Release is still called (harmless if the claim row has already
// moved on to another worker: Release no-ops unless it still matches
// this claim's owner) and the group is scheduled for a short retry so
// the message is picked back up.
func (rt *Router) handleClaimLost(ctx context.Context, claim *store.Claim, cause error) {
	logger := log.WithFields(log.Fields{
		"group":  claim.GroupID,
		"stream": claim.StreamID,
		"seq":    claim.Message.GlobalSeq,
	}).WithError(cause)

	rt.release(ctx, claim)

	at := time.Now().Add(time.Second)
	if err := rt.store.SetGroupRetry(ctx, claim.GroupID, at); err != nil {
		logger.WithError(err).Error("recording retry_at after claim lost")
		return
	}
	logger.Warn("claim lost to stale-claim reaper, group scheduled for retry")
}

// handleException implements spec §7's HandlerError routing: ask the
// reactor what to do, then carry out its decision against the store.
func (rt *Router) handleException(ctx context.Context, rc reactor.Reactor, cause error, claim *store.Claim) {
	decision := rc.OnException(cause, claim.Message, claim.GroupID)

	logger := log.WithFields(log.Fields{
		"group":  claim.GroupID,
		"stream": claim.StreamID,
		"seq":    claim.Message.GlobalSeq,
	}).WithError(errors.Cause(cause))

	switch decision.Kind {
	case reactor.Retry:
		at := decision.At
		if at.IsZero() {
			at = time.Now().Add(time.Second)
		}
		if err := rt.store.SetGroupRetry(ctx, claim.GroupID, at); err != nil {
			logger.WithError(err).Error("recording retry_at after handler error")
		}
		logger.Warn("handler error, group scheduled for retry")
	case reactor.Stop:
		if err := rt.store.StopConsumerGroup(ctx, claim.GroupID, decision.Reason); err != nil {
			logger.WithError(err).Error("stopping group after handler error")
		}
		logger.Error("handler error, group stopped")
	case reactor.Continue:
		if err := rt.ackPast(ctx, claim); err != nil {
			logger.WithError(err).Error("acking past failing message")
		}
		logger.Warn("handler error, continuing past failing message")
	default:
		if err := rt.store.StopConsumerGroup(ctx, claim.GroupID, cause.Error()); err != nil {
			logger.WithError(err).Error("stopping group (default strategy)")
		}
		logger.Error("unhandled exception kind, stopping group")
	}
}

// ackPast implements the opt-in Continue decision: the failing message
// is acked without any action being executed, moving the group past it.
func (rt *Router) ackPast(ctx context.Context, claim *store.Claim) error {
	return rt.store.RunTurn(ctx, claim, func(t *store.Turn) error {
		return t.Ack(claim.Message.GlobalSeq)
	})
}

func seqBefore(seq int64) *int64 {
	upto := seq - 1
	return &upto
}

// attachLineage assigns CausationID from source and CorrelationID from
// root, stamping every message in msgs and defaulting StreamID to the
// triggering message's stream when the reactor left it blank.
func attachLineage(msgs []store.NewMessage, source, root store.Message) {
	corr := root.CorrelationID
	if corr == nil {
		id := root.ID
		corr = &id
	}
	causeID := source.ID
	for i := range msgs {
		if msgs[i].StreamID == "" {
			msgs[i].StreamID = source.StreamID
		}
		msgs[i].CausationID = &causeID
		msgs[i].CorrelationID = corr
	}
}

