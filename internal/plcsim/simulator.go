// Package plcsim implements the PLC Simulator's state machine: the same
// tag space and timing behavior a real PLC program exposes over OPC UA,
// but held in memory behind one mutex and driven by goroutines instead of
// a PLC scan cycle.
package plcsim

import (
	"log/slog"
	"sync"
	"time"
)

// Simulator holds every tag's current value and runs the background
// timing loops spec.md §4.6 specifies. All access goes through the
// exported methods; none of them is safe to call concurrently with
// itself holding mu released mid-operation, so every method takes mu for
// its whole body.
type Simulator struct {
	mu sync.Mutex

	// StartUpSequence
	startUp         bool
	startUpDone     bool
	startupInFlight bool

	// MakeSurface
	zStacks             int32
	deltaSource         int32
	deltaSink           int32
	makeSurfaceDone     bool
	makeSurfaceInFlight bool
	marcerSourcePosition int32
	marcerSinkPosition   int32

	// GVL
	startSurfaces         bool
	gMarcerSourcePosition int32
	gMarcerSinkPosition   int32

	// Prepare2Process
	laySurface     bool
	laySurfaceDone bool
	stepSource     int32
	stepSink       int32
	layStacks      int32

	preparing          bool
	laySurfaceInFlight bool

	logger *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns a Simulator with every tag zeroed/false, matching a
// freshly-booted PLC program.
func New(logger *slog.Logger) *Simulator {
	return &Simulator{
		logger: logger.With("component", "plcsim"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run starts the background timing loop (StartUp watcher, MakeSurface
// stepper, LaySurface preparer, 20Hz mirror) and blocks until Stop is
// called.
func (s *Simulator) Run() {
	ticker := time.NewTicker(50 * time.Millisecond) // 20 Hz mirror cadence
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Stop halts the background loop and waits for it to exit.
func (s *Simulator) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// tick runs one iteration of every edge-triggered state transition plus
// the unconditional mirror copy. It holds mu only long enough to read the
// triggering condition and spawn the (possibly multi-second) response as
// its own goroutine, so a slow transition never blocks the mirror tick.
func (s *Simulator) tick() {
	s.mu.Lock()
	startStartup := s.startUp && !s.startUpDone && !s.startupInFlight
	if startStartup {
		s.startupInFlight = true
	}
	startMakeSurface := s.startSurfaces && !s.makeSurfaceDone && !s.makeSurfaceInFlight
	if startMakeSurface {
		s.makeSurfaceInFlight = true
	}
	clearMakeSurface := !s.startSurfaces && s.makeSurfaceDone
	if clearMakeSurface {
		s.makeSurfaceDone = false
	}
	startLaySurface := s.laySurface && !s.preparing
	if startLaySurface {
		s.preparing = true
		s.laySurfaceDone = false
	}
	clearLaySurface := !s.laySurface && s.preparing && !s.laySurfaceInFlight
	if clearLaySurface {
		s.preparing = false
		s.laySurfaceDone = false
	}

	s.gMarcerSourcePosition = s.marcerSourcePosition
	s.gMarcerSinkPosition = s.marcerSinkPosition
	s.mu.Unlock()

	if startStartup {
		go s.runStartup()
	}
	if startMakeSurface {
		go s.runMakeSurface()
	}
	if startLaySurface {
		go s.runLaySurface()
	}
}

func (s *Simulator) runStartup() {
	time.Sleep(2 * time.Second)
	s.mu.Lock()
	s.startUpDone = true
	s.startupInFlight = false
	s.mu.Unlock()
	s.logger.Info("startup complete")
}

func (s *Simulator) runMakeSurface() {
	s.mu.Lock()
	steps := s.zStacks
	deltaSource := s.deltaSource
	deltaSink := s.deltaSink
	s.mu.Unlock()

	for i := int32(0); i < steps; i++ {
		time.Sleep(100 * time.Millisecond)
		s.mu.Lock()
		if !s.startSurfaces {
			s.makeSurfaceInFlight = false
			s.mu.Unlock()
			return
		}
		s.marcerSourcePosition += deltaSource
		s.marcerSinkPosition += deltaSink
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.makeSurfaceDone = true
	s.makeSurfaceInFlight = false
	s.mu.Unlock()
	s.logger.Info("make surface complete", "steps", steps)
}

func (s *Simulator) runLaySurface() {
	s.mu.Lock()
	s.laySurfaceInFlight = true
	s.mu.Unlock()

	time.Sleep(2 * time.Second)

	s.mu.Lock()
	if !s.laySurface {
		// LaySurface was cleared mid-preparation; don't apply the step or
		// raise Done.
		s.laySurfaceInFlight = false
		s.mu.Unlock()
		return
	}
	s.marcerSourcePosition += s.stepSource
	s.marcerSinkPosition += s.stepSink
	s.laySurfaceDone = true
	s.laySurfaceInFlight = false
	s.mu.Unlock()
	s.logger.Info("lay surface complete")
}
