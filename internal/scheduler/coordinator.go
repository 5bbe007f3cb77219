// Package scheduler is the coordinator: the producer/consumer pipeline,
// the bidirectional PLC handshake, cancellation/emergency-stop handling,
// and the process-level state machine. It is grounded on the teacher's
// internal/engine/scheduler.go for the sync.Cond worker-loop shape and
// on internal/fsm/fsm.go for the transition-table pattern, generalized
// to the single-piece-flow pull protocol original_source's
// ScanStreamingManager implements.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"industrial-4.0-demo/internal/audit"
	"industrial-4.0-demo/internal/config"
	"industrial-4.0-demo/internal/device"
	"industrial-4.0-demo/internal/events"
	"industrial-4.0-demo/internal/paramlib"
	"industrial-4.0-demo/internal/plc"
	"industrial-4.0-demo/internal/rtc"
	"industrial-4.0-demo/internal/slicereader"
	"industrial-4.0-demo/internal/types"
	"industrial-4.0-demo/internal/util"

	"github.com/google/uuid"
)

const (
	batchCompletionTimeout = 100 * time.Second
	dspSyncGap             = 2 * time.Second
)

// Coordinator is the whole consumer/producer/handshake machine behind one
// run. A Coordinator is reused across runs: Idle -> Starting -> Running
// -> ... -> Idle, except after EmergencyStopped, which is terminal.
type Coordinator struct {
	client   plc.Client
	device   *device.Adapter
	lib      *paramlib.Library
	calib    rtc.Calibration
	bus      *events.Bus
	auditLog *audit.Log
	logger   *slog.Logger

	layerPolicy config.LayerParameterPolicy

	state *stateMachine

	mu             sync.Mutex
	stopRequested  bool
	emergency      bool
	runID          string
	layersConsumed uint32
	totalLayers    uint32
	pollInterval   time.Duration

	pause *pauseGate
	wg    sync.WaitGroup

	queue          *blockQueue
	layerRequested *edgeSignal
	plcLayerReady  *edgeSignal

	queueCapacity int
}

// New returns an idle Coordinator wired against the given PLC transport
// and Device Adapter. lib may be nil for a run with no parameter
// library (test mode, or degraded production).
func New(client plc.Client, dev *device.Adapter, lib *paramlib.Library, calib rtc.Calibration, bus *events.Bus, auditLog *audit.Log, logger *slog.Logger, layerPolicy config.LayerParameterPolicy) *Coordinator {
	return &Coordinator{
		client:        client,
		device:        dev,
		lib:           lib,
		calib:         calib,
		bus:           bus,
		auditLog:      auditLog,
		logger:        logger.With("component", "scheduler"),
		layerPolicy:   layerPolicy,
		state:         newStateMachine(),
		pause:         newPauseGate(),
		pollInterval:  500 * time.Millisecond,
		queueCapacity: 1,
	}
}

func (c *Coordinator) CurrentState() types.ProcessState { return c.state.get() }

func (c *Coordinator) SetPollingInterval(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollInterval = time.Duration(ms) * time.Millisecond
}

// SetQueueCapacity adjusts the producer/consumer block queue's capacity
// for the next run. It has no effect on a run already in progress.
func (c *Coordinator) SetQueueCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > 10 {
		capacity = 10
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueCapacity = capacity
}

func (c *Coordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

func (c *Coordinator) isEmergency() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emergency
}

// wakeRunTasks wakes every goroutine blocked inside the current run's
// queue or edge signals so each re-checks isStopped/isEmergency promptly,
// instead of waiting for its next natural wakeup.
func (c *Coordinator) wakeRunTasks() {
	c.mu.Lock()
	queue, layerRequested, plcLayerReady := c.queue, c.layerRequested, c.plcLayerReady
	c.mu.Unlock()
	if queue != nil {
		queue.requestStop()
	}
	if layerRequested != nil {
		layerRequested.broadcastStop()
	}
	if plcLayerReady != nil {
		plcLayerReady.broadcastStop()
	}
}

// Stop requests a graceful stop: the producer exits promptly, the
// consumer finishes any in-flight batch (bounded by the 100s timeout)
// then disables the laser and exits.
func (c *Coordinator) Stop() error {
	if c.state.get() == types.StateEmergencyStopped {
		return fmt.Errorf("coordinator is emergency-stopped, refusing stop")
	}
	if err := c.transitionPublish(types.StateStopping); err != nil {
		return err
	}
	c.mu.Lock()
	c.stopRequested = true
	c.mu.Unlock()
	c.pause.set(false)
	c.wakeRunTasks()
	return nil
}

// EmergencyStop additionally requests the PLC drop StartSurfaces and
// causes the consumer to skip any remaining commands in its current
// block at its nearest predicate check.
func (c *Coordinator) EmergencyStop() error {
	prev := c.state.get()
	if err := c.transitionPublish(types.StateEmergencyStopped); err != nil {
		return err
	}
	c.mu.Lock()
	c.stopRequested = true
	c.emergency = true
	c.mu.Unlock()
	c.pause.set(false)
	c.wakeRunTasks()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.WriteEmergencyStop(ctx); err != nil {
		c.logger.Error("emergency stop plc write failed", "error", err, "previous_state", prev)
	}
	return nil
}

func (c *Coordinator) Pause() error {
	if err := c.transitionPublish(types.StatePaused); err != nil {
		return err
	}
	c.pause.set(true)
	return nil
}

func (c *Coordinator) Resume() error {
	if err := c.transitionPublish(types.StateRunning); err != nil {
		return err
	}
	c.pause.set(false)
	return nil
}

// StartProduction runs a full build from a slice file against a
// parameter library already loaded into the Coordinator.
func (c *Coordinator) StartProduction(ctx context.Context, slicePath string) error {
	reader, err := slicereader.Open(slicePath)
	if err != nil {
		return err
	}
	return c.run(ctx, true, reader, nil)
}

// StartTest drives layerCount synthetic empty layers through the device
// pipeline without a real slice file (spec.md §4.8's start_test). Test
// mode does not connect to the PLC and runs no handshake.
func (c *Coordinator) StartTest(ctx context.Context, thicknessMM float64, layerCount uint32) error {
	layers := make([]types.Layer, layerCount)
	for i := range layers {
		layers[i] = types.Layer{Number: uint32(i) + 1, ThicknessMM: float32(thicknessMM)}
	}
	return c.run(ctx, false, nil, layers)
}

func (c *Coordinator) run(parentCtx context.Context, productionMode bool, reader *slicereader.Reader, testLayers []types.Layer) error {
	if err := c.transitionPublish(types.StateStarting); err != nil {
		return err
	}

	c.mu.Lock()
	c.stopRequested = false
	c.emergency = false
	c.runID = uuid.NewString()
	c.layersConsumed = 0
	if productionMode && reader != nil {
		c.totalLayers = reader.TotalLayers()
	} else {
		c.totalLayers = uint32(len(testLayers))
	}
	pollInterval := c.pollInterval
	queueCapacity := c.queueCapacity
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	c.mu.Unlock()

	ctx := util.ContextWithTraceID(parentCtx, c.runID)
	logger := c.logger.With("run_id", c.runID, "production_mode", productionMode)

	queue := newBlockQueue(queueCapacity)
	layerRequested := newEdgeSignal()
	plcLayerReady := newEdgeSignal()
	c.mu.Lock()
	c.queue, c.layerRequested, c.plcLayerReady = queue, layerRequested, plcLayerReady
	c.mu.Unlock()

	if productionMode {
		if err := c.client.Connect(ctx); err != nil {
			c.state.transition(types.StateIdle)
			return err
		}
	}

	// Plain transition, not transitionPublish: scenario S1's exact
	// observable order is status_message("starting"), layer_executed(1),
	// progress(1,1), finished, with no status_message for Running in
	// between. Device Acquire/Initialize happen inside consumerLoop, not
	// here: the Device Adapter records its owner goroutine on Initialize,
	// and the consumer goroutine is the one that must own it for the rest
	// of the run (every later device call happens there).
	if err := c.state.transition(types.StateRunning); err != nil {
		return err
	}

	if productionMode {
		c.wg.Add(3)
		go c.producerLoop(ctx, logger, queue, layerRequested, productionMode, reader, testLayers)
		go c.handshakePoller(ctx, logger, plcLayerReady, pollInterval)
	} else {
		c.wg.Add(2)
		go c.producerLoop(ctx, logger, queue, layerRequested, productionMode, reader, testLayers)
	}
	go func() {
		defer c.wg.Done()
		c.consumerLoop(ctx, logger, queue, layerRequested, plcLayerReady, productionMode)
	}()

	return nil
}

// Wait blocks until the current run's tasks have all exited (three in
// production mode, two in test mode). Tests call this after Start*/Stop
// to synchronize.
func (c *Coordinator) Wait() { c.wg.Wait() }

func (c *Coordinator) publishError(kind, text string) {
	c.bus.Publish(events.ChannelError, events.ErrorEvent{Kind: kind, Text: text})
	if c.auditLog != nil {
		_ = c.auditLog.Append(context.Background(), audit.Record{
			RunID: c.runID, Event: "error", Timestamp: timeNow(), Detail: fmt.Sprintf("%s: %s", kind, text),
		})
	}
}

func (c *Coordinator) publishStatus(text string) {
	c.bus.Publish(events.ChannelStatusMessage, events.StatusMessage{Text: text})
}

// transitionPublish drives the state machine and, on success, emits the
// status_message spec.md §7 requires for every transition ("every
// transition emits one status_message ... or one error. There are no
// silent failures."). The message text is the target state's name,
// lowercased, e.g. transitioning to StateStarting emits "starting".
func (c *Coordinator) transitionPublish(state types.ProcessState) error {
	if err := c.state.transition(state); err != nil {
		return err
	}
	c.publishStatus(strings.ToLower(string(state)))
	return nil
}

// timeNow exists so tests can't accidentally depend on wall-clock
// determinism creeping further into the package than this one seam.
func timeNow() time.Time { return time.Now() }
