package taskgroup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsNilWhenAllTasksSucceed(t *testing.T) {
	g := NewGroup(context.Background())
	g.Queue("a", func() error { return nil })
	g.Queue("b", func() error { return nil })
	assert.NoError(t, g.Wait())
}

func TestFirstErrorCancelsContextAndIsReturned(t *testing.T) {
	g := NewGroup(context.Background())
	boom := errors.New("boom")

	g.Queue("failer", func() error { return boom })
	g.Queue("watcher", func() error {
		<-g.Context().Done()
		return nil
	})

	err := g.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failer")
	assert.Contains(t, err.Error(), "boom")
}

func TestCancelStopsTasksWithoutError(t *testing.T) {
	g := NewGroup(context.Background())
	g.Queue("watcher", func() error {
		<-g.Context().Done()
		return nil
	})

	g.Cancel()

	select {
	case <-doneCh(g):
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after Cancel")
	}
	assert.NoError(t, g.Wait())
}

func doneCh(g *Group) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		g.Wait()
		close(ch)
	}()
	return ch
}
