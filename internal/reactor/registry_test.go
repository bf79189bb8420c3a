package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eventlog.dev/core/internal/store"
)

type stubReactor struct {
	groupID string
	types   []string
}

func (s *stubReactor) GroupID() string        { return s.groupID }
func (s *stubReactor) HandledTypes() []string { return s.types }
func (s *stubReactor) NeedsHistory() bool      { return false }
func (s *stubReactor) InitialState() any       { return nil }
func (s *stubReactor) Evolve(state any, msg store.Message) any { return state }
func (s *stubReactor) Handle(ctx context.Context, msg store.Message, state any, history []store.Message, replaying bool) ([]Action, error) {
	return nil, nil
}
func (s *stubReactor) OnException(err error, msg store.Message, groupID string) ExceptionDecision {
	return StopWith(err.Error())
}

func TestRegistryForType(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubReactor{groupID: "cart", types: []string{"AddItem", "ItemAdded"}})
	reg.Register(&stubReactor{groupID: "billing", types: []string{"ItemAdded"}})

	matches := reg.ForType("ItemAdded")
	require.Len(t, matches, 2)
	assert.ElementsMatch(t, []string{"cart", "billing"}, []string{matches[0].GroupID(), matches[1].GroupID()})

	assert.Len(t, reg.ForType("Unrelated"), 0)
}

func TestRegisterReplacesByGroupID(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubReactor{groupID: "cart", types: []string{"AddItem"}})
	reg.Register(&stubReactor{groupID: "cart", types: []string{"ItemAdded"}})

	r, ok := reg.Get("cart")
	require.True(t, ok)
	assert.Equal(t, []string{"ItemAdded"}, r.HandledTypes())
	assert.Equal(t, []string{"cart"}, reg.AllGroupIDs())
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubReactor{groupID: "first"})
	reg.Register(&stubReactor{groupID: "second"})
	reg.Register(&stubReactor{groupID: "third"})

	assert.Equal(t, []string{"first", "second", "third"}, reg.AllGroupIDs())
}
