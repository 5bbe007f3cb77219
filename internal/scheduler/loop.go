package scheduler

import (
	"context"
	"errors"
	"time"

	"industrial-4.0-demo/internal/audit"
	"industrial-4.0-demo/internal/config"
	"industrial-4.0-demo/internal/device"
	"industrial-4.0-demo/internal/events"
	"industrial-4.0-demo/internal/metrics"
	"industrial-4.0-demo/internal/rtc"
	"industrial-4.0-demo/internal/slicereader"
	"industrial-4.0-demo/internal/types"

	"log/slog"
)

// producerLoop owns the Slice Reader (or the synthetic test-layer list)
// and the output end of the queue. It waits for layer-requested, reads
// one layer, builds its RtcCommandBlock, and pushes it — strict
// single-piece flow per spec.md §4.7.
func (c *Coordinator) producerLoop(ctx context.Context, logger *slog.Logger, queue *blockQueue, layerRequested *edgeSignal, productionMode bool, reader *slicereader.Reader, testLayers []types.Layer) {
	defer c.wg.Done()
	if reader != nil {
		defer reader.Close()
	}

	builder := rtc.New(c.calib, c.lib)
	testIdx := 0

	for {
		if !layerRequested.waitOrStop(c.isStopped) {
			queue.markProducerFinished()
			return
		}
		layerRequested.clear()

		if c.isStopped() {
			queue.markProducerFinished()
			return
		}

		var layer types.Layer
		var hasNext bool
		var err error

		if productionMode {
			hasNext = reader.HasNext()
			if hasNext {
				layer, err = reader.ReadNext()
			}
		} else {
			hasNext = testIdx < len(testLayers)
			if hasNext {
				layer = testLayers[testIdx]
				testIdx++
			}
		}

		if !hasNext {
			queue.markProducerFinished()
			return
		}
		if err != nil {
			logger.Error("slice reader failed, ending run", "error", err)
			c.publishError("LayerCorrupt", err.Error())
			queue.markProducerFinished()
			return
		}

		block, err := builder.Build(layer)
		if err != nil {
			logger.Error("command block build failed, ending run", "error", err, "layer", layer.Number)
			c.publishError("ConversionFailed", err.Error())
			queue.markProducerFinished()
			return
		}

		if !queue.push(block) {
			return // stop requested while waiting for room
		}
		metrics.QueueDepth.Set(float64(queue.depth()))
	}
}

// handshakePoller calls plc.ReadSnapshot every pollInterval, publishes
// each snapshot, and signals plc-layer-ready on a rising edge of
// PowderSurfaceDone (spec.md's powder_surface_done / LaySurface_Done
// equivalence).
func (c *Coordinator) handshakePoller(ctx context.Context, logger *slog.Logger, plcLayerReady *edgeSignal, pollInterval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lost := c.client.ConnectionLost()
	var prevDone bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
			logger.Error("plc connection lost")
			c.bus.Publish(events.ChannelConnectionLost, nil)
			c.publishError("ConnectionLost", "plc transport reported connection lost")
			c.mu.Lock()
			c.stopRequested = true
			c.mu.Unlock()
			c.wakeRunTasks()
			return
		case <-ticker.C:
		}
		if c.isStopped() {
			return
		}

		snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		snap, err := c.client.ReadSnapshot(snapCtx)
		cancel()
		if err != nil {
			logger.Warn("read_snapshot failed", "error", err)
			continue
		}

		c.bus.PublishOpcSnapshot(snap)

		if snap.PowderSurfaceDone && !prevDone {
			plcLayerReady.set()
		}
		prevDone = snap.PowderSurfaceDone
	}
}

// consumerLoop owns the Device Adapter and the input end of the queue,
// performing the per-layer handshake exactly as spec.md §4.7's pseudocode
// describes. Acquire/Initialize run here, on the consumer's own goroutine,
// because the Device Adapter records its owner goroutine on Initialize
// and rejects every later call from any other goroutine — "on startup"
// in §4.7's pseudocode is the consumer task's own startup, not the
// caller's.
func (c *Coordinator) consumerLoop(ctx context.Context, logger *slog.Logger, queue *blockQueue, layerRequested, plcLayerReady *edgeSignal, productionMode bool) {
	if err := c.device.Acquire(); err != nil {
		logger.Error("device acquire failed, aborting run", "error", err)
		c.abortRunStartup(ctx, logger, err)
		return
	}
	if err := c.device.Initialize(device.Config{ListMemory: 16384, SafetyMargin: 64}); err != nil {
		logger.Error("device initialize failed, aborting run", "error", err)
		c.device.Release()
		c.abortRunStartup(ctx, logger, err)
		return
	}

	layerRequested.set() // prime the producer

	var emergencyTriggered bool

	for {
		c.pause.waitWhilePaused(c.isStopped)
		if c.isStopped() {
			break
		}

		block, ok, eof := queue.pop()
		if !ok {
			break
		}
		if eof {
			break
		}
		metrics.QueueDepth.Set(float64(queue.depth()))

		// The PLC handshake only runs in production mode: start_test
		// exercises the device pipeline directly, per spec.md §4.7's
		// "if production_mode" guard and scenario S1 ("Consumer executes
		// it without calling PLC").
		if productionMode {
			deltaUnits := int32(block.LayerThicknessMM * 1000)
			layers := c.resolveLayersArg(block.LayerNumber)
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := c.client.WriteLayerParameters(writeCtx, layers, deltaUnits, deltaUnits)
			cancel()
			if err != nil {
				logger.Warn("write_layer_parameters failed, proceeding in degraded mode", "error", err, "layer", block.LayerNumber)
			}

			waitStart := time.Now()
			if !plcLayerReady.waitOrStop(c.isStopped) {
				break
			}
			plcLayerReady.clear()
			metrics.PlcHandshakeWaitSeconds.Observe(time.Since(waitStart).Seconds())
		}

		if c.isEmergency() {
			emergencyTriggered = true
			break
		}

		if err := c.executeBlock(ctx, logger, block); err != nil {
			if errors.Is(err, errEmergencyAborted) {
				emergencyTriggered = true
				break
			}
			logger.Error("device execution failed, ending run", "error", err, "layer", block.LayerNumber)
			c.publishError("DeviceReject", err.Error())
			c.mu.Lock()
			c.stopRequested = true
			c.mu.Unlock()
			break
		}

		c.mu.Lock()
		c.layersConsumed++
		c.mu.Unlock()
		c.bus.Publish(events.ChannelLayerExecuted, events.LayerExecuted{LayerNumber: block.LayerNumber})
		c.bus.Publish(events.ChannelProgress, events.Progress{Done: c.layersConsumed, Total: c.totalLayers})
		metrics.LayersExecutedTotal.WithLabelValues("ok").Inc()
		if c.auditLog != nil {
			_ = c.auditLog.Append(ctx, audit.Record{
				RunID: c.runID, LayerNumber: block.LayerNumber, Event: "layer_executed", Timestamp: timeNow(),
			})
		}

		if productionMode {
			completeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := c.client.WriteLayerExecutionComplete(completeCtx, block.LayerNumber); err != nil {
				logger.Warn("write_layer_execution_complete failed", "error", err, "layer", block.LayerNumber)
			}
			cancel()
		}

		if !c.isStopped() {
			layerRequested.set()
		}
	}

	c.finishRun(ctx, logger, emergencyTriggered)
}

// executeBlock dispatches one RtcCommandBlock's commands to the Device
// Adapter, flushing early whenever the list approaches its memory limit,
// and applies each command's governing parameter segment lazily — only
// when it changes, matching spec.md's "current_segment" tracking.
func (c *Coordinator) executeBlock(ctx context.Context, logger *slog.Logger, block types.RtcCommandBlock) error {
	if err := c.device.PrepareListForLayer(); err != nil {
		return err
	}

	listMemory := c.device.ListMemory()
	safetyMargin := c.device.SafetyMargin()
	var currentSegment *types.ParameterSegment

	for i, cmd := range block.Commands {
		if c.isEmergency() {
			// No attempt to finish in-flight work (spec.md §5): the
			// partially-queued list is never executed, the laser goes
			// dark immediately instead of after up to a 100s batch wait.
			if err := c.device.DisableLaser(); err != nil {
				logger.Error("disable laser failed during emergency abort", "error", err)
			}
			return errEmergencyAborted
		}

		level, err := c.device.CurrentListLevel()
		if err != nil {
			return err
		}
		if level >= listMemory-safetyMargin {
			if err := c.device.ExecuteList(); err != nil {
				return err
			}
			if ok, err := c.device.WaitForCompletion(batchCompletionTimeout); err != nil {
				return err
			} else if !ok {
				return &timeoutErr{where: "mid-layer batch flush"}
			}
			if err := c.device.PrepareListForLayer(); err != nil {
				return err
			}
			currentSegment = nil
		}

		if seg := block.SegmentCovering(i); seg != nil && seg != currentSegment {
			if err := c.device.ApplySegmentParameters(seg.LaserPowerW, seg.MarkSpeedMMPerS, seg.JumpSpeedMMPerS); err != nil {
				return err
			}
			currentSegment = seg
		}

		switch cmd.Kind {
		case types.CommandJump:
			if err := c.device.Jump(cmd.X, cmd.Y); err != nil {
				return err
			}
		case types.CommandMark:
			if err := c.device.Mark(cmd.X, cmd.Y); err != nil {
				return err
			}
		case types.CommandDelay:
			if err := c.device.Delay(cmd.DelayMS); err != nil {
				return err
			}
		}
		metrics.DeviceCommandsTotal.WithLabelValues(commandKindLabel(cmd.Kind)).Inc()
	}

	select {
	case <-time.After(dspSyncGap):
	case <-ctx.Done():
	}

	if err := c.device.ExecuteList(); err != nil {
		return err
	}
	if ok, err := c.device.WaitForCompletion(batchCompletionTimeout); err != nil {
		return err
	} else if !ok {
		return &timeoutErr{where: "layer batch completion"}
	}
	return c.device.DisableLaser()
}

func commandKindLabel(k types.CommandKind) string {
	switch k {
	case types.CommandJump:
		return "jump"
	case types.CommandMark:
		return "mark"
	case types.CommandDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// resolveLayersArg implements spec's layer-parameter-policy Open
// Question resolution.
func (c *Coordinator) resolveLayersArg(layerNumber uint32) int32 {
	if c.layerPolicy == config.PolicyActualLayerNumber {
		return int32(layerNumber)
	}
	return 1
}

// abortRunStartup unwinds a run that never got past the consumer's own
// acquire/initialize step: wakes the producer and (in production mode)
// the handshake poller so neither blocks forever waiting on a consumer
// that will never prime them, closes the PLC session if one was opened,
// and returns the process to Idle.
func (c *Coordinator) abortRunStartup(ctx context.Context, logger *slog.Logger, err error) {
	c.publishError("DeviceReject", err.Error())
	c.mu.Lock()
	c.stopRequested = true
	c.mu.Unlock()
	c.wakeRunTasks()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = c.client.Close(closeCtx)
	cancel()

	_ = c.state.transition(types.StateIdle)
}

func (c *Coordinator) finishRun(ctx context.Context, logger *slog.Logger, emergency bool) {
	if emergency || c.isEmergency() {
		_ = c.device.DisableLaser()
	}
	if err := c.device.Shutdown(); err != nil {
		logger.Error("device shutdown failed", "error", err)
	}
	if err := c.device.Release(); err != nil {
		logger.Error("device release failed", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = c.client.Close(closeCtx)
	cancel()

	// Plain transition, not transitionPublish: this runs inside every
	// successful S1-style test run, and S1's exact observable order ends
	// layer_executed(1), progress(1,1), finished — a status_message("idle")
	// inserted here would not match.
	if c.state.get() != types.StateEmergencyStopped {
		_ = c.state.transition(types.StateIdle)
	}

	c.bus.Publish(events.ChannelFinished, nil)
	if c.auditLog != nil {
		_ = c.auditLog.Append(context.Background(), audit.Record{
			RunID: c.runID, Event: "finished", Timestamp: timeNow(),
		})
	}
	logger.Info("run finished", "layers_consumed", c.layersConsumed, "total_layers", c.totalLayers)
}

type timeoutErr struct{ where string }

func (e *timeoutErr) Error() string { return "timeout: " + e.where }

// errEmergencyAborted signals that executeBlock stopped mid-layer
// because of an emergency stop, not a device fault: the caller must not
// treat it as DeviceReject, nor as a completed layer.
var errEmergencyAborted = errors.New("layer execution aborted by emergency stop")
