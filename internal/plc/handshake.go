package plc

import (
	"context"
	"time"
)

// lowLevelWriter is the subset of Client the shared handshake sequences
// need. Both OpcUAClient and SimClient satisfy it with their own
// transport, so the sequencing logic below is written exactly once.
type lowLevelWriter interface {
	WriteI32(ctx context.Context, tag Tag, v int32) error
	WriteBool(ctx context.Context, tag Tag, v bool) error
}

func writePowderFillSeq(ctx context.Context, w lowLevelWriter, layers, deltaSource, deltaSink int32) error {
	if err := w.WriteI32(ctx, TagZStacks, layers); err != nil {
		return err
	}
	if err := w.WriteI32(ctx, TagLayStacks, layers); err != nil {
		return err
	}
	if err := sleep(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	if err := w.WriteI32(ctx, TagDeltaSource, deltaSource); err != nil {
		return err
	}
	if err := sleep(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	if err := w.WriteI32(ctx, TagDeltaSink, deltaSink); err != nil {
		return err
	}
	if err := sleep(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	if err := w.WriteBool(ctx, TagStartSurfaces, true); err != nil {
		return err
	}
	return sleep(ctx, 500*time.Millisecond)
}

// writeLayerParametersSeq implements both write_layer_parameters (pace=100ms,
// finalGap=400ms) and write_bottom_layer_parameters (pace=1000ms,
// finalGap=500ms) — the two operations differ only in timing.
func writeLayerParametersSeq(ctx context.Context, w lowLevelWriter, layers, deltaSource, deltaSink int32, pace, finalGap time.Duration) error {
	if err := w.WriteI32(ctx, TagLayStacks, layers); err != nil {
		return err
	}
	if err := sleep(ctx, pace); err != nil {
		return err
	}
	if err := w.WriteI32(ctx, TagStepSource, deltaSource); err != nil {
		return err
	}
	if err := sleep(ctx, pace); err != nil {
		return err
	}
	if err := w.WriteI32(ctx, TagStepSink, deltaSink); err != nil {
		return err
	}
	if err := sleep(ctx, pace); err != nil {
		return err
	}
	if err := w.WriteBool(ctx, TagLaySurface, true); err != nil {
		return err
	}
	return sleep(ctx, finalGap)
}

func writeLayerExecutionCompleteSeq(ctx context.Context, w lowLevelWriter) error {
	return w.WriteBool(ctx, TagLaySurface, false)
}

func writeEmergencyStopSeq(ctx context.Context, w lowLevelWriter) error {
	return w.WriteBool(ctx, TagStartSurfaces, false)
}
