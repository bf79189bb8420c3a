package notifier

import (
	"context"
	"sync"
)

// Inprocess is a pub/sub hub for single-process deployments and tests:
// deliveries are synchronous on the publisher's call, matching the
// teacher's KeySpace Observers list (a slice of callbacks invoked
// directly from the mutating call, under the same lock).
type Inprocess struct {
	mu     sync.Mutex
	subs   []chan Signal
	closed bool
}

func NewInprocess() *Inprocess {
	return &Inprocess{}
}

func (n *Inprocess) Listen(ctx context.Context) (<-chan Signal, error) {
	ch := make(chan Signal, 64)

	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.closed {
			return // Close already closed every subscriber channel.
		}
		for i, sub := range n.subs {
			if sub == ch {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

func (n *Inprocess) EmitMessagesAppended(ctx context.Context, _ Execer, types []string) error {
	if len(types) == 0 {
		return nil
	}
	n.publish(Signal{Kind: MessagesAppended, Types: dedupe(types)})
	return nil
}

func (n *Inprocess) EmitReactorResumed(ctx context.Context, _ Execer, groupID string) error {
	n.publish(Signal{Kind: ReactorResumed, GroupID: groupID})
	return nil
}

func (n *Inprocess) publish(s Signal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		select {
		case sub <- s:
		default:
			// A slow subscriber misses a push-based wakeup; the catch-up
			// poller covers it. Never block the appending transaction.
		}
	}
}

func (n *Inprocess) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, sub := range n.subs {
		close(sub)
	}
	n.subs = nil
	return nil
}
