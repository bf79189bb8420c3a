package catchup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/reactor/examplecart"
	"go.eventlog.dev/core/internal/store"
	"go.eventlog.dev/core/internal/workqueue"
)

// fakeStore reports a fixed eligible set; every other Store method is
// unreachable from Poller.tick and panics if the wiring ever changes.
type fakeStore struct {
	eligible []string
}

func (f *fakeStore) Append(ctx context.Context, streamID string, msgs []store.NewMessage) ([]store.Message, error) {
	panic("not used")
}
func (f *fakeStore) ReadStream(ctx context.Context, streamID string, after, upto *int64) ([]store.Message, error) {
	panic("not used")
}
func (f *fakeStore) ReadCorrelationBatch(ctx context.Context, correlationID uuid.UUID) ([]store.Message, error) {
	panic("not used")
}
func (f *fakeStore) ReserveNextFor(ctx context.Context, groupID string, handledTypes []string) (*store.Claim, error) {
	panic("not used")
}
func (f *fakeStore) ReserveNextForWorker(ctx context.Context, groupID string, handledTypes []string, workerID string) (*store.Claim, error) {
	panic("not used")
}
func (f *fakeStore) RunTurn(ctx context.Context, claim *store.Claim, fn func(*store.Turn) error) error {
	panic("not used")
}
func (f *fakeStore) Release(ctx context.Context, claim *store.Claim) error { panic("not used") }
func (f *fakeStore) ReleaseStaleClaims(ctx context.Context, ttl time.Duration) (int, error) {
	panic("not used")
}
func (f *fakeStore) RecordWorkerHeartbeat(ctx context.Context, workerIDs []string) (int, error) {
	panic("not used")
}
func (f *fakeStore) ScheduleMessages(ctx context.Context, msgs []store.NewMessage, availableAt time.Time) error {
	panic("not used")
}
func (f *fakeStore) PromoteDueScheduledMessages(ctx context.Context) (int, error) {
	panic("not used")
}
func (f *fakeStore) RegisterConsumerGroup(ctx context.Context, groupID string) error {
	panic("not used")
}
func (f *fakeStore) StopConsumerGroup(ctx context.Context, groupID, reason string) error {
	panic("not used")
}
func (f *fakeStore) StartConsumerGroup(ctx context.Context, groupID string) error {
	panic("not used")
}
func (f *fakeStore) ResetConsumerGroup(ctx context.Context, groupID string) error {
	panic("not used")
}
func (f *fakeStore) SetGroupRetry(ctx context.Context, groupID string, at time.Time) error {
	panic("not used")
}
func (f *fakeStore) GetConsumerGroup(ctx context.Context, groupID string) (*store.ConsumerGroup, error) {
	panic("not used")
}
func (f *fakeStore) AllConsumerGroupIDs(ctx context.Context) ([]string, error) { panic("not used") }
func (f *fakeStore) EligibleConsumerGroupIDs(ctx context.Context) ([]string, error) {
	return f.eligible, nil
}
func (f *fakeStore) Stats(ctx context.Context, groupID string) (*store.GroupStats, error) {
	panic("not used")
}

func TestTickPushesOnlyEligibleRegisteredGroups(t *testing.T) {
	reactors := reactor.NewRegistry()
	reactors.Register(examplecart.New("cart-a"))
	reactors.Register(examplecart.New("cart-b"))

	s := &fakeStore{eligible: []string{"cart-b", "some-other-group"}}
	q := workqueue.New(1)
	p := New(s, reactors, q, time.Second)

	p.tick(context.Background())
	q.Close()

	g, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "cart-b", g)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestTickPushesNothingWhenNoneEligible(t *testing.T) {
	reactors := reactor.NewRegistry()
	reactors.Register(examplecart.New("cart-a"))

	s := &fakeStore{}
	q := workqueue.New(1)
	p := New(s, reactors, q, time.Second)

	p.tick(context.Background())
	q.Close()

	_, ok := q.Pop()
	assert.False(t, ok)
}
