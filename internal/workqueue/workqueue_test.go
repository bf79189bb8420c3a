package workqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDedup(t *testing.T) {
	q := New(2)
	q.Push("a")
	q.Push("a")
	q.Push("a") // exceeds maxPerReactor=2, dropped

	id, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", id)

	id, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", id)

	// Third push was dropped; nothing left to pop without a further Push.
	q.Push("b")
	id, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", id)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(1)
	done := make(chan string, 1)
	go func() {
		id, ok := q.Pop()
		if ok {
			done <- id
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("late")
	select {
	case id := <-done:
		assert.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Push")
	}
}

func TestCloseUnblocksPop(t *testing.T) {
	q := New(1)
	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		result <- ok
	}()

	q.Close()
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop never unblocked after Close")
	}
}

func TestPushAfterCloseIsNoop(t *testing.T) {
	q := New(1)
	q.Close()
	q.Push("x") // must not panic or block

	_, ok := q.Pop()
	assert.False(t, ok)
}
