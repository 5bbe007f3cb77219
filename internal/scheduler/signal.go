package scheduler

import "sync"

// edgeSignal is a level-triggered, manually-rearmed condition: exactly
// the shape spec.md's layer-requested and plc-layer-ready predicates
// need. set() raises the level and wakes every waiter; wait() blocks
// until the level is set (or stop fires); the caller clears it again
// once consumed ("rearm").
type edgeSignal struct {
	mu   sync.Mutex
	cond *sync.Cond
	set_ bool
}

func newEdgeSignal() *edgeSignal {
	s := &edgeSignal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *edgeSignal) set() {
	s.mu.Lock()
	s.set_ = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *edgeSignal) clear() {
	s.mu.Lock()
	s.set_ = false
	s.mu.Unlock()
}

// waitOrStop blocks until set() has been called, or stop reports true,
// whichever comes first. It returns false if stop won the race.
func (s *edgeSignal) waitOrStop(stop func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.set_ && !stop() {
		s.cond.Wait()
	}
	return s.set_
}

// broadcastStop wakes any goroutine blocked in waitOrStop so it can
// re-check the stop predicate.
func (s *edgeSignal) broadcastStop() {
	s.cond.Broadcast()
}
