package router

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/store"
)

// fakeStore implements store.Store with just enough behavior to drive
// Router.HandleNextFor's top-level branching; methods the exercised
// paths never reach panic if called, so a wiring mistake fails loudly.
type fakeStore struct {
	claim *store.Claim

	runTurnErr error // error RunTurn's callback-independent return should surface

	releaseCalled      bool
	setGroupRetryCalls int
}

func (f *fakeStore) Append(ctx context.Context, streamID string, msgs []store.NewMessage) ([]store.Message, error) {
	panic("not used")
}
func (f *fakeStore) ReadStream(ctx context.Context, streamID string, after, upto *int64) ([]store.Message, error) {
	return nil, nil
}
func (f *fakeStore) ReadCorrelationBatch(ctx context.Context, correlationID uuid.UUID) ([]store.Message, error) {
	panic("not used")
}
func (f *fakeStore) ReserveNextFor(ctx context.Context, groupID string, handledTypes []string) (*store.Claim, error) {
	return f.claim, nil
}
func (f *fakeStore) ReserveNextForWorker(ctx context.Context, groupID string, handledTypes []string, workerID string) (*store.Claim, error) {
	return f.claim, nil
}
func (f *fakeStore) RunTurn(ctx context.Context, claim *store.Claim, fn func(*store.Turn) error) error {
	if f.runTurnErr != nil {
		return f.runTurnErr
	}
	panic("not used")
}
func (f *fakeStore) Release(ctx context.Context, claim *store.Claim) error {
	f.releaseCalled = true
	return nil
}
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
	f.setGroupRetryCalls++
	return nil
}
func (f *fakeStore) GetConsumerGroup(ctx context.Context, groupID string) (*store.ConsumerGroup, error) {
	panic("not used")
}
func (f *fakeStore) AllConsumerGroupIDs(ctx context.Context) ([]string, error) { panic("not used") }
func (f *fakeStore) EligibleConsumerGroupIDs(ctx context.Context) ([]string, error) {
	panic("not used")
}
func (f *fakeStore) Stats(ctx context.Context, groupID string) (*store.GroupStats, error) {
	panic("not used")
}

type stubReactor struct{ groupID string }

func (s *stubReactor) GroupID() string        { return s.groupID }
func (s *stubReactor) HandledTypes() []string { return []string{"AddItem"} }
func (s *stubReactor) NeedsHistory() bool      { return false }
func (s *stubReactor) InitialState() any       { return nil }
func (s *stubReactor) Evolve(state any, msg store.Message) any { return state }
func (s *stubReactor) Handle(ctx context.Context, msg store.Message, state any, history []store.Message, replaying bool) ([]reactor.Action, error) {
	return nil, nil
}
func (s *stubReactor) OnException(err error, msg store.Message, groupID string) reactor.ExceptionDecision {
	return reactor.StopWith(err.Error())
}

func TestHandleNextForReturnsFalseWhenNoCandidate(t *testing.T) {
	reactors := reactor.NewRegistry()
	reactors.Register(&stubReactor{groupID: "cart"})

	rt := New(&fakeStore{claim: nil}, reactors)
	processed, err := rt.HandleNextFor(context.Background(), "cart", "worker-0")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestHandleNextForReleasesAndRetriesOnClaimLost(t *testing.T) {
	reactors := reactor.NewRegistry()
	reactors.Register(&stubReactor{groupID: "cart"})

	claim := &store.Claim{GroupID: "cart", StreamID: "s1", Message: store.Message{GlobalSeq: 1}}
	s := &fakeStore{
		claim:      claim,
		runTurnErr: &store.ClaimLostError{GroupID: "cart", StreamID: "s1"},
	}
	rt := New(s, reactors)

	processed, err := rt.HandleNextFor(context.Background(), "cart", "worker-0")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.True(t, s.releaseCalled)
	assert.Equal(t, 1, s.setGroupRetryCalls)
}

func TestHandleNextForErrorsOnUnknownGroup(t *testing.T) {
	reactors := reactor.NewRegistry()
	rt := New(&fakeStore{}, reactors)

	_, err := rt.HandleNextFor(context.Background(), "missing", "worker-0")
	require.Error(t, err)
}

func TestAttachLineageFromRoot(t *testing.T) {
	rootID := uuid.New()
	root := store.Message{ID: rootID, StreamID: "s1"}

	msgs := []store.NewMessage{{Type: "ItemAdded"}}
	attachLineage(msgs, root, root)

	require.NotNil(t, msgs[0].CausationID)
	assert.Equal(t, rootID, *msgs[0].CausationID)
	require.NotNil(t, msgs[0].CorrelationID)
	assert.Equal(t, rootID, *msgs[0].CorrelationID)
	assert.Equal(t, "s1", msgs[0].StreamID)
}

func TestAttachLineagePreservesExplicitStreamAndCorrelation(t *testing.T) {
	corrID := uuid.New()
	source := store.Message{ID: uuid.New(), StreamID: "s1"}
	root := store.Message{ID: uuid.New(), StreamID: "s1", CorrelationID: &corrID}

	msgs := []store.NewMessage{{Type: "SendAdminEmail", StreamID: "s2"}}
	attachLineage(msgs, source, root)

	assert.Equal(t, "s2", msgs[0].StreamID)
	assert.Equal(t, source.ID, *msgs[0].CausationID)
	assert.Equal(t, corrID, *msgs[0].CorrelationID)
}
