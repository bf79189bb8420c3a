package store

// Turn is the transactional context a Router action executes within: one
// call to Append, Schedule or Sync per returned Action, followed by
// exactly one Ack, all inside the single transaction the Router opened
// for this worker turn. It plays the role the teacher's ConsumerContext
// played for a local RocksDB transaction -- Publish/Transaction/Cache --
// except writes land in the shared log instead of a per-shard local
// store, and there's no in-memory Cache: reactor state is rebuilt by
// folding history, not cached across turns.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

type Turn struct {
	ctx    context.Context
	tx     pgx.Tx
	prefix string
	claim  *Claim

	appendedTypes map[string]struct{}
	streamSeq     map[string]int64
}

func newTurn(ctx context.Context, tx pgx.Tx, prefix string, claim *Claim) *Turn {
	return &Turn{
		ctx:           ctx,
		tx:            tx,
		prefix:        prefix,
		claim:         claim,
		appendedTypes: make(map[string]struct{}),
		streamSeq:     make(map[string]int64),
	}
}

// Append inserts msgs, each into its own NewMessage.StreamID, assigning
// each the next seq for its stream in the order given. All messages
// must already carry CausationID/CorrelationID; the Router is
// responsible for that auto-assignment (see router.attachLineage).
func (t *Turn) Append(msgs []NewMessage) ([]Message, error) {
	out := make([]Message, 0, len(msgs))
	for _, nm := range msgs {
		m, err := t.appendOne(nm)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		t.appendedTypes[m.Type] = struct{}{}
	}
	return out, nil
}

func (t *Turn) appendOne(nm NewMessage) (Message, error) {
	seq, ok := t.streamSeq[nm.StreamID]
	if !ok {
		// Streams are created on demand (spec: "append-on-demand"), so
		// the row may not exist yet. Upsert it into existence and lock
		// it in the same statement -- the messages.stream_id FK is
		// immediate, so the parent row must exist before the message
		// INSERT below, not after.
		row := t.tx.QueryRow(t.ctx, `
			INSERT INTO `+t.prefix+`streams (stream_id, seq, updated_at)
			VALUES ($1, 0, now())
			ON CONFLICT (stream_id) DO UPDATE SET updated_at = `+t.prefix+`streams.updated_at
			RETURNING seq`,
			nm.StreamID,
		)
		if err := row.Scan(&seq); err != nil {
			return Message{}, errors.WithMessage(err, "locking stream row")
		}
	}
	nextSeq := seq + 1

	if _, err := t.tx.Exec(t.ctx, `
		UPDATE `+t.prefix+`streams SET seq = $2, updated_at = now() WHERE stream_id = $1`,
		nm.StreamID, nextSeq,
	); err != nil {
		return Message{}, errors.WithMessage(err, "advancing stream seq")
	}

	id := uuid.New()
	var globalSeq int64
	var createdAt time.Time
	row := t.tx.QueryRow(t.ctx, `
		INSERT INTO `+t.prefix+`messages
			(id, stream_id, seq, type, payload, metadata, causation_id, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING global_seq, created_at`,
		id, nm.StreamID, nextSeq, nm.Type, nm.Payload, nm.Metadata, nm.CausationID, nm.CorrelationID,
	)
	if err := row.Scan(&globalSeq, &createdAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Message{}, &ConcurrentAppendError{StreamID: nm.StreamID, Seq: nextSeq}
		}
		return Message{}, errors.WithMessage(err, "inserting message")
	}

	t.streamSeq[nm.StreamID] = nextSeq

	return Message{
		GlobalSeq:     globalSeq,
		ID:            id,
		StreamID:      nm.StreamID,
		Seq:           nextSeq,
		Type:          nm.Type,
		Payload:       nm.Payload,
		Metadata:      nm.Metadata,
		CausationID:   nm.CausationID,
		CorrelationID: nm.CorrelationID,
		CreatedAt:     createdAt,
	}, nil
}

// Schedule writes msgs to the scheduled_messages table, to be promoted
// into the log once availableAt has passed.
func (t *Turn) Schedule(msgs []NewMessage, availableAt time.Time) error {
	for _, nm := range msgs {
		raw, err := json.Marshal(nm)
		if err != nil {
			return errors.WithMessage(err, "marshalling scheduled message")
		}
		if _, err := t.tx.Exec(t.ctx, `
			INSERT INTO `+t.prefix+`scheduled_messages (id, available_at, message)
			VALUES ($1, $2, $3)`,
			uuid.New(), availableAt, raw,
		); err != nil {
			return errors.WithMessage(err, "inserting scheduled message")
		}
	}
	return nil
}

// Sync runs fn as an in-transaction side effect, with access to the same
// transaction every Append and Schedule in this turn used.
func (t *Turn) Sync(fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(t.ctx, t.tx)
}

// Ack advances the group's offset for the claimed stream to globalSeq,
// clears the claim, and advances the group's high-water mark. Returns
// *ClaimLostError if the row is no longer claimed by this claim's owner
// by the time the turn tries to ack -- normally because the stale-claim
// reaper released it (and possibly another worker re-claimed it) while
// this turn was still running.
func (t *Turn) Ack(globalSeq int64) error {
	var claimedBy *string
	if t.claim.ClaimedBy != "" {
		claimedBy = &t.claim.ClaimedBy
	}

	tag, err := t.tx.Exec(t.ctx, `
		UPDATE `+t.prefix+`offsets
		SET global_seq = $3, claimed = false, claimed_at = NULL, claimed_by = NULL
		WHERE group_id = $1 AND stream_id = $2
			AND claimed = true AND claimed_by IS NOT DISTINCT FROM $4`,
		t.claim.GroupID, t.claim.StreamID, globalSeq, claimedBy,
	)
	if err != nil {
		return errors.WithMessage(err, "advancing offset")
	}
	if tag.RowsAffected() == 0 {
		return &ClaimLostError{GroupID: t.claim.GroupID, StreamID: t.claim.StreamID}
	}
	if _, err := t.tx.Exec(t.ctx, `
		UPDATE `+t.prefix+`consumer_groups
		SET highest_global_seq = GREATEST(highest_global_seq, $2)
		WHERE group_id = $1`,
		t.claim.GroupID, globalSeq,
	); err != nil {
		return errors.WithMessage(err, "advancing high-water mark")
	}
	return nil
}

// AppendedTypes returns the de-duplicated set of message types appended
// during this turn so far, for the Notifier's messages_appended signal.
func (t *Turn) AppendedTypes() []string {
	out := make([]string, 0, len(t.appendedTypes))
	for ty := range t.appendedTypes {
		out = append(out, ty)
	}
	return out
}

func unmarshalScheduled(raw []byte) (NewMessage, error) {
	var nm NewMessage
	err := json.Unmarshal(raw, &nm)
	return nm, err
}
