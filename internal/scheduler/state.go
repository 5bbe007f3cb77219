package scheduler

import (
	"fmt"
	"sync"

	"industrial-4.0-demo/internal/metrics"
	"industrial-4.0-demo/internal/types"
)

// stateMachine is the coordinator's process-level state tracker. Its
// transition table matches spec.md §4.7's diagram exactly;
// EmergencyStopped is terminal — the only way out is a new Coordinator.
type stateMachine struct {
	mu      sync.Mutex
	current types.ProcessState

	transitions map[types.ProcessState]map[types.ProcessState]bool
}

func newStateMachine() *stateMachine {
	sm := &stateMachine{current: types.StateIdle}
	sm.transitions = map[types.ProcessState]map[types.ProcessState]bool{
		types.StateIdle: {
			types.StateStarting:         true,
			types.StateEmergencyStopped: true, // e-stop is unconditional from any state
		},
		types.StateStarting: {
			types.StateRunning:          true, // plc-ready
			types.StateIdle:             true, // plc-error
			types.StateEmergencyStopped: true,
		},
		types.StateRunning: {
			types.StateIdle:             true, // EOF
			types.StatePaused:           true, // pause
			types.StateStopping:         true, // stop/error
			types.StateEmergencyStopped: true,
		},
		types.StatePaused: {
			types.StateRunning:          true, // resume
			types.StateStopping:         true, // stop/error
			types.StateEmergencyStopped: true,
		},
		types.StateStopping: {
			types.StateIdle:             true,
			types.StateEmergencyStopped: true,
		},
		types.StateEmergencyStopped: {}, // terminal
	}
	return sm
}

// transition attempts to move to next, refusing (and returning an error)
// any edge the table above doesn't allow.
func (sm *stateMachine) transition(next types.ProcessState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	allowed, ok := sm.transitions[sm.current][next]
	if !ok || !allowed {
		return fmt.Errorf("refused transition %s -> %s", sm.current, next)
	}
	sm.current = next
	metrics.ProcessStateTransitionsTotal.WithLabelValues(string(next)).Inc()
	return nil
}

func (sm *stateMachine) get() types.ProcessState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}
