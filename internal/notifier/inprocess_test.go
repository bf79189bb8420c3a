package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInprocessDeliversMessagesAppended(t *testing.T) {
	n := NewInprocess()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals, err := n.Listen(ctx)
	require.NoError(t, err)

	require.NoError(t, n.EmitMessagesAppended(ctx, nil, []string{"AddItem"}))

	select {
	case sig := <-signals:
		assert.Equal(t, MessagesAppended, sig.Kind)
		assert.Equal(t, []string{"AddItem"}, sig.Types)
	case <-time.After(time.Second):
		t.Fatal("signal never delivered")
	}
}

func TestInprocessListenChannelClosesOnContextCancel(t *testing.T) {
	n := NewInprocess()
	ctx, cancel := context.WithCancel(context.Background())

	signals, err := n.Listen(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-signals:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel never closed after cancel")
	}
}

func TestInprocessCloseThenContextCancelDoesNotPanic(t *testing.T) {
	n := NewInprocess()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := n.Listen(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Close())
	assert.NotPanics(t, cancel)
}
