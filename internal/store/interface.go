package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the Log Store contract (spec §4.1): durable append-only
// message log, per-stream sequencing, consumer-group claim protocol,
// and consumer-group lifecycle.
type Store interface {
	// Append inserts msgs transactionally, all sharing streamID, and
	// upserts the stream's high-water seq. Fires a messages_appended
	// Notifier signal inside the same transaction.
	Append(ctx context.Context, streamID string, msgs []NewMessage) ([]Message, error)
	ReadStream(ctx context.Context, streamID string, after, upto *int64) ([]Message, error)
	ReadCorrelationBatch(ctx context.Context, correlationID uuid.UUID) ([]Message, error)

	// ReserveNextFor atomically finds and claims the next eligible
	// message for groupID among handledTypes. Returns (nil, nil) when
	// there is no candidate.
	ReserveNextFor(ctx context.Context, groupID string, handledTypes []string) (*Claim, error)
	// ReserveNextForWorker is ReserveNextFor, additionally recording the
	// claiming worker id so the stale-claim reaper can cross-check it
	// against the live workers table.
	ReserveNextForWorker(ctx context.Context, groupID string, handledTypes []string, workerID string) (*Claim, error)

	// RunTurn opens one transaction bound to claim and passes a Turn to
	// fn; fn must call Turn.Ack exactly once on success. The transaction
	// commits (firing any messages_appended signal) iff fn returns nil,
	// otherwise it rolls back and the claim is left untouched for the
	// caller to Release.
	RunTurn(ctx context.Context, claim *Claim, fn func(*Turn) error) error
	Release(ctx context.Context, claim *Claim) error

	ReleaseStaleClaims(ctx context.Context, ttl time.Duration) (int, error)
	RecordWorkerHeartbeat(ctx context.Context, workerIDs []string) (int, error)

	ScheduleMessages(ctx context.Context, msgs []NewMessage, availableAt time.Time) error
	PromoteDueScheduledMessages(ctx context.Context) (int, error)

	RegisterConsumerGroup(ctx context.Context, groupID string) error
	StopConsumerGroup(ctx context.Context, groupID, reason string) error
	StartConsumerGroup(ctx context.Context, groupID string) error
	ResetConsumerGroup(ctx context.Context, groupID string) error
	// SetGroupRetry records at as groupID's retry_at, making the group
	// ineligible for reservation until at has passed -- the Retry
	// exception decision's effect. The group's status is not changed.
	SetGroupRetry(ctx context.Context, groupID string, at time.Time) error
	GetConsumerGroup(ctx context.Context, groupID string) (*ConsumerGroup, error)
	AllConsumerGroupIDs(ctx context.Context) ([]string, error)
	// EligibleConsumerGroupIDs returns active groups whose retry_at is
	// either unset or already past -- what the Catch-Up Poller enqueues.
	EligibleConsumerGroupIDs(ctx context.Context) ([]string, error)

	Stats(ctx context.Context, groupID string) (*GroupStats, error)
}
