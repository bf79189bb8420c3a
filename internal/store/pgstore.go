package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"go.eventlog.dev/core/internal/notifier"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore is the PostgreSQL-backed Log Store: the mainline, stream-based
// implementation of Store. The CCC variant (aggregate-less, attribute-
// indexed log) is a structurally equivalent second implementation of the
// same interface, not provided here.
type PGStore struct {
	pool      *pgxpool.Pool
	notifier  notifier.Notifier
	prefix    string
	batchSize int
}

// Config configures a PGStore.
type Config struct {
	TablePrefix string
	BatchSize   int // default 50, per spec's reserved bounded scan limit
}

func New(pool *pgxpool.Pool, n notifier.Notifier, cfg Config) *PGStore {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &PGStore{pool: pool, notifier: n, prefix: cfg.TablePrefix, batchSize: batch}
}

func (s *PGStore) Append(ctx context.Context, streamID string, msgs []NewMessage) ([]Message, error) {
	for i := range msgs {
		msgs[i].StreamID = streamID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	turn := newTurn(ctx, tx, s.prefix, nil)
	out, err := turn.Append(msgs)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.EmitMessagesAppended(ctx, tx, turn.AppendedTypes()); err != nil {
		return nil, errors.WithMessage(err, "emitting messages_appended")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.WithMessage(err, "commit append")
	}
	return out, nil
}

func (s *PGStore) ReadStream(ctx context.Context, streamID string, after, upto *int64) ([]Message, error) {
	q := psql.Select(
		"global_seq", "id", "stream_id", "seq", "type", "payload", "metadata",
		"causation_id", "correlation_id", "created_at",
	).From(s.prefix + "messages").Where(sq.Eq{"stream_id": streamID}).OrderBy("seq ASC")
	if after != nil {
		q = q.Where(sq.Gt{"seq": *after})
	}
	if upto != nil {
		q = q.Where(sq.LtOrEq{"seq": *upto})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, errors.WithMessage(err, "building read stream query")
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.WithMessage(err, "reading stream")
	}
	return scanMessages(rows)
}

func (s *PGStore) ReadCorrelationBatch(ctx context.Context, correlationID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT global_seq, id, stream_id, seq, type, payload, metadata, causation_id, correlation_id, created_at
		FROM `+s.prefix+`messages WHERE correlation_id = $1 ORDER BY global_seq ASC`, correlationID)
	if err != nil {
		return nil, errors.WithMessage(err, "reading correlation batch")
	}
	return scanMessages(rows)
}

// ReserveNextFor is the hot-path claim query (spec §4.1, §6): a CTE picks
// the oldest eligible message per candidate stream, then the caller
// attempts a try-lock per candidate, in ascending global_seq order,
// until one succeeds.
func (s *PGStore) ReserveNextFor(ctx context.Context, groupID string, handledTypes []string) (*Claim, error) {
	return s.reserveNextFor(ctx, groupID, handledTypes, "")
}

// ReserveNextForWorker is ReserveNextFor, additionally recording the
// claiming worker id so the stale-claim reaper can cross-check it
// against the live workers table.
func (s *PGStore) ReserveNextForWorker(ctx context.Context, groupID string, handledTypes []string, workerID string) (*Claim, error) {
	return s.reserveNextFor(ctx, groupID, handledTypes, workerID)
}

func (s *PGStore) reserveNextFor(ctx context.Context, groupID string, handledTypes []string, workerID string) (*Claim, error) {
	if len(handledTypes) == 0 {
		return nil, nil
	}

	var status string
	var retryAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT status, retry_at FROM `+s.prefix+`consumer_groups WHERE group_id = $1`, groupID,
	).Scan(&status, &retryAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // group must be registered before it can reserve
		}
		return nil, errors.WithMessage(err, "reading group status")
	}
	if status != string(ConsumerGroupActive) || (retryAt != nil && retryAt.After(time.Now())) {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		WITH per_stream AS (
			SELECT DISTINCT ON (m.stream_id) m.global_seq, m.stream_id
			FROM `+s.prefix+`messages m
			LEFT JOIN `+s.prefix+`offsets o ON o.group_id = $1 AND o.stream_id = m.stream_id
			WHERE m.type = ANY($2)
				AND m.global_seq > COALESCE(o.global_seq, 0)
				AND COALESCE(o.claimed, false) = false
			ORDER BY m.stream_id, m.global_seq
		)
		SELECT global_seq, stream_id FROM per_stream ORDER BY global_seq LIMIT $3`,
		groupID, handledTypes, s.batchSize,
	)
	if err != nil {
		return nil, errors.WithMessage(err, "scanning claim candidates")
	}

	type candidate struct {
		globalSeq int64
		streamID  string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.globalSeq, &c.streamID); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range candidates {
		var claimedBy *string
		if workerID != "" {
			claimedBy = &workerID
		}

		// global_seq < $4 guards against a concurrent ack advancing past
		// this candidate between the SELECT above and this claim attempt.
		var returnedSeq int64
		row := s.pool.QueryRow(ctx, `
			INSERT INTO `+s.prefix+`offsets (group_id, stream_id, global_seq, claimed, claimed_at, claimed_by)
			VALUES ($1, $2, 0, true, now(), $3)
			ON CONFLICT (group_id, stream_id) DO UPDATE
				SET claimed = true, claimed_at = now(), claimed_by = $3
				WHERE `+s.prefix+`offsets.claimed = false AND `+s.prefix+`offsets.global_seq < $4
			RETURNING global_seq`,
			groupID, c.streamID, claimedBy, c.globalSeq,
		)
		if err := row.Scan(&returnedSeq); err != nil {
			if err == pgx.ErrNoRows {
				continue // lost the race for this stream; try the next candidate
			}
			return nil, errors.WithMessage(err, "claiming stream")
		}

		msgRow := s.pool.QueryRow(ctx, `
			SELECT global_seq, id, stream_id, seq, type, payload, metadata, causation_id, correlation_id, created_at
			FROM `+s.prefix+`messages WHERE stream_id = $1 AND global_seq = $2`, c.streamID, c.globalSeq)
		msg, err := scanMessage(msgRow)
		if err != nil {
			return nil, errors.WithMessage(err, "loading claimed message")
		}

		var highest int64
		if err := s.pool.QueryRow(ctx, `
			SELECT highest_global_seq FROM `+s.prefix+`consumer_groups WHERE group_id = $1`, groupID,
		).Scan(&highest); err != nil && err != pgx.ErrNoRows {
			return nil, errors.WithMessage(err, "reading group high-water mark")
		}

		return &Claim{
			GroupID:   groupID,
			StreamID:  c.streamID,
			ClaimedBy: workerID,
			Message:   msg,
			Replaying: msg.GlobalSeq <= highest,
		}, nil
	}

	return nil, nil
}

// RunTurn opens one transaction for the Router's action-execution step
// (spec §4.7 step 4): every Append/Schedule/Sync the caller issues
// through the Turn lands in this transaction, which commits (firing
// messages_appended) iff fn returns nil.
func (s *PGStore) RunTurn(ctx context.Context, claim *Claim, fn func(*Turn) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.WithMessage(err, "begin turn")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	turn := newTurn(ctx, tx, s.prefix, claim)
	if err := fn(turn); err != nil {
		return err
	}
	if err := s.notifier.EmitMessagesAppended(ctx, tx, turn.AppendedTypes()); err != nil {
		return errors.WithMessage(err, "emitting messages_appended")
	}
	return errors.WithMessage(tx.Commit(ctx), "commit turn")
}

// Release clears claim's hold on (group_id, stream_id). Guarded by
// claimed_by so that releasing a claim this process no longer actually
// holds (already released by the reaper, and possibly re-claimed by
// another worker since) never clobbers that other worker's live claim.
func (s *PGStore) Release(ctx context.Context, claim *Claim) error {
	var claimedBy *string
	if claim.ClaimedBy != "" {
		claimedBy = &claim.ClaimedBy
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.prefix+`offsets SET claimed = false, claimed_at = NULL, claimed_by = NULL
		WHERE group_id = $1 AND stream_id = $2 AND claimed = true AND claimed_by IS NOT DISTINCT FROM $3`,
		claim.GroupID, claim.StreamID, claimedBy)
	return err // idempotent against a missing row: 0 rows affected is not an error
}

func (s *PGStore) ReleaseStaleClaims(ctx context.Context, ttl time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.prefix+`offsets o SET claimed = false, claimed_at = NULL, claimed_by = NULL
		WHERE o.claimed = true
			AND (o.claimed_at < now() - $1::interval
				OR o.claimed_by IS NULL
				OR NOT EXISTS (SELECT 1 FROM `+s.prefix+`workers w WHERE w.id = o.claimed_by))`,
		ttl)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) RecordWorkerHeartbeat(ctx context.Context, workerIDs []string) (int, error) {
	n := 0
	for _, id := range workerIDs {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO `+s.prefix+`workers (id, last_seen) VALUES ($1, now())
			ON CONFLICT (id) DO UPDATE SET last_seen = now()`, id)
		if err != nil {
			return n, err
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}

func (s *PGStore) ScheduleMessages(ctx context.Context, msgs []NewMessage, availableAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	turn := newTurn(ctx, tx, s.prefix, nil)
	if err := turn.Schedule(msgs, availableAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) PromoteDueScheduledMessages(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		SELECT id, message FROM `+s.prefix+`scheduled_messages WHERE available_at <= now()
		ORDER BY available_at FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return 0, err
	}
	type due struct {
		id  uuid.UUID
		raw []byte
	}
	var dues []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.id, &d.raw); err != nil {
			rows.Close()
			return 0, err
		}
		dues = append(dues, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	turn := newTurn(ctx, tx, s.prefix, nil)
	n := 0
	for _, d := range dues {
		nm, err := unmarshalScheduled(d.raw)
		if err != nil {
			return n, errors.WithMessagef(err, "unmarshalling scheduled message %s", d.id)
		}
		if _, err := turn.Append([]NewMessage{nm}); err != nil {
			return n, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+s.prefix+`scheduled_messages WHERE id = $1`, d.id); err != nil {
			return n, err
		}
		n++
	}

	if n > 0 {
		if err := s.notifier.EmitMessagesAppended(ctx, tx, turn.AppendedTypes()); err != nil {
			return n, err
		}
	}
	return n, errors.WithMessage(tx.Commit(ctx), "commit promote")
}

func (s *PGStore) RegisterConsumerGroup(ctx context.Context, groupID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.prefix+`consumer_groups (group_id, status) VALUES ($1, $2)
		ON CONFLICT (group_id) DO NOTHING`, groupID, ConsumerGroupActive)
	return err
}

func (s *PGStore) StopConsumerGroup(ctx context.Context, groupID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.prefix+`consumer_groups SET status = $2, error_context = $3 WHERE group_id = $1`,
		groupID, ConsumerGroupStopped, []byte(reason))
	return err
}

// SetGroupRetry leaves the group active but records a retry_at in the
// future; EligibleConsumerGroupIDs (and the claim query itself) treat
// the group as unreservable until that time passes.
func (s *PGStore) SetGroupRetry(ctx context.Context, groupID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.prefix+`consumer_groups SET retry_at = $2 WHERE group_id = $1`,
		groupID, at)
	return err
}

func (s *PGStore) StartConsumerGroup(ctx context.Context, groupID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		UPDATE `+s.prefix+`consumer_groups SET status = $2, error_context = NULL, retry_at = NULL
		WHERE group_id = $1`, groupID, ConsumerGroupActive); err != nil {
		return err
	}
	if err := s.notifier.EmitReactorResumed(ctx, tx, groupID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) ResetConsumerGroup(ctx context.Context, groupID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.prefix+`offsets WHERE group_id = $1`, groupID)
	return err
}

func (s *PGStore) GetConsumerGroup(ctx context.Context, groupID string) (*ConsumerGroup, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT group_id, status, highest_global_seq, error_context, retry_at
		FROM `+s.prefix+`consumer_groups WHERE group_id = $1`, groupID)
	g, err := scanConsumerGroup(groupID, row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (s *PGStore) AllConsumerGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_id FROM `+s.prefix+`consumer_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGStore) EligibleConsumerGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT group_id FROM `+s.prefix+`consumer_groups
		WHERE status = $1 AND (retry_at IS NULL OR retry_at <= now())`, ConsumerGroupActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGStore) Stats(ctx context.Context, groupID string) (*GroupStats, error) {
	g, err := s.GetConsumerGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.Errorf("no such consumer group %q", groupID)
	}

	var stats GroupStats
	stats.GroupID = g.GroupID
	stats.Status = g.Status
	stats.HighestGlobalSeq = g.HighestGlobalSeq

	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MIN(global_seq), 0), COALESCE(MAX(global_seq), 0), COUNT(*)
		FROM `+s.prefix+`offsets WHERE group_id = $1`, groupID)
	if err := row.Scan(&stats.OldestGlobalSeq, &stats.NewestGlobalSeq, &stats.StreamCount); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Migrate applies the reserved schema using this store's table prefix.
func (s *PGStore) Migrate(ctx context.Context) error { return Migrate(ctx, s.pool, s.prefix) }
