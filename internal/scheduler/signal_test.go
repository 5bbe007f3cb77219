package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEdgeSignal_SetWakesWaiter(t *testing.T) {
	s := newEdgeSignal()
	done := make(chan bool, 1)
	go func() {
		done <- s.waitOrStop(func() bool { return false })
	}()

	select {
	case <-done:
		t.Fatal("waitOrStop returned before set() was called")
	case <-time.After(30 * time.Millisecond):
	}

	s.set()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waitOrStop never woke after set()")
	}
}

func TestEdgeSignal_AlreadySetReturnsImmediately(t *testing.T) {
	s := newEdgeSignal()
	s.set()
	ok := s.waitOrStop(func() bool { return false })
	assert.True(t, ok)
}

func TestEdgeSignal_ClearRequiresAnotherSet(t *testing.T) {
	s := newEdgeSignal()
	s.set()
	s.clear()

	done := make(chan bool, 1)
	go func() { done <- s.waitOrStop(func() bool { return false }) }()

	select {
	case <-done:
		t.Fatal("waitOrStop should still block after clear()")
	case <-time.After(30 * time.Millisecond):
	}

	s.set()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waitOrStop never woke after re-set()")
	}
}

func TestEdgeSignal_StopPredicateWinsWithoutSet(t *testing.T) {
	s := newEdgeSignal()
	var stopped atomic.Bool
	done := make(chan bool, 1)
	go func() { done <- s.waitOrStop(func() bool { return stopped.Load() }) }()

	time.Sleep(30 * time.Millisecond)
	stopped.Store(true)
	s.broadcastStop()

	select {
	case ok := <-done:
		assert.False(t, ok, "waitOrStop must report false when stop wins the race, not set")
	case <-time.After(time.Second):
		t.Fatal("waitOrStop never woke after broadcastStop")
	}
}
