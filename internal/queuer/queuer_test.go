package queuer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.eventlog.dev/core/internal/notifier"
	"go.eventlog.dev/core/internal/reactor"
	"go.eventlog.dev/core/internal/reactor/examplecart"
	"go.eventlog.dev/core/internal/workqueue"
)

func TestDispatchMessagesAppendedPushesMatchingReactorsOnce(t *testing.T) {
	reactors := reactor.NewRegistry()
	reactors.Register(examplecart.New("cart-a"))
	reactors.Register(examplecart.New("cart-b"))

	q := workqueue.New(1)
	qr := New(nil, reactors, q)

	qr.dispatch(notifier.Signal{
		Kind:  notifier.MessagesAppended,
		Types: []string{examplecart.TypeAddItem, examplecart.TypeAddItem},
	})
	q.Close()

	var popped []string
	for {
		g, ok := q.Pop()
		if !ok {
			break
		}
		popped = append(popped, g)
	}
	assert.ElementsMatch(t, []string{"cart-a", "cart-b"}, popped)
}

func TestDispatchReactorResumedPushesOnlyRegisteredGroup(t *testing.T) {
	reactors := reactor.NewRegistry()
	reactors.Register(examplecart.New("cart-a"))

	q := workqueue.New(1)
	qr := New(nil, reactors, q)

	qr.dispatch(notifier.Signal{Kind: notifier.ReactorResumed, GroupID: "unregistered"})
	qr.dispatch(notifier.Signal{Kind: notifier.ReactorResumed, GroupID: "cart-a"})
	q.Close()

	g, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "cart-a", g)

	_, ok = q.Pop()
	assert.False(t, ok)
}
