package scheduler

import "sync"

// pauseGate holds the consumer at a layer boundary while Paused. It never
// interrupts a layer already in flight — spec.md's state diagram only
// shows Running <-> Paused, with no mid-layer suspension primitive.
type pauseGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func newPauseGate() *pauseGate {
	g := &pauseGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *pauseGate) set(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.mu.Unlock()
	g.cond.Broadcast()
}

// waitWhilePaused blocks while paused and stop() is false.
func (g *pauseGate) waitWhilePaused(stop func() bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.paused && !stop() {
		g.cond.Wait()
	}
}
