package scheduler

import (
	"context"
	"sync"

	"industrial-4.0-demo/internal/plc"
	"industrial-4.0-demo/internal/types"
)

// fakePLCClient is a minimal, in-memory plc.Client used by the scheduler
// package's tests in place of a real OPC UA session or the HTTP
// simulator. Every write is recorded for assertions; ReadSnapshot returns
// whatever snapshot is currently installed.
type fakePLCClient struct {
	mu sync.Mutex

	snapshot    types.OpcSnapshot
	connLost    chan struct{}
	closed      bool
	connectCount    int
	emergencyWrites int
	completeWrites  []uint32
	layerParamWrites []paramWrite
	snapshotReads   int
}

type paramWrite struct {
	Layers, DeltaSource, DeltaSink int32
}

func newFakePLCClient() *fakePLCClient {
	return &fakePLCClient{connLost: make(chan struct{})}
}

func (f *fakePLCClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCount++
	return nil
}

func (f *fakePLCClient) connectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCount
}
func (f *fakePLCClient) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePLCClient) ReadI32(ctx context.Context, tag plc.Tag) (int32, error)   { return 0, nil }
func (f *fakePLCClient) ReadBool(ctx context.Context, tag plc.Tag) (bool, error)   { return false, nil }
func (f *fakePLCClient) WriteI32(ctx context.Context, tag plc.Tag, v int32) error  { return nil }
func (f *fakePLCClient) WriteBool(ctx context.Context, tag plc.Tag, v bool) error  { return nil }

func (f *fakePLCClient) WriteStartup(ctx context.Context, on bool) error { return nil }
func (f *fakePLCClient) WritePowderFill(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return nil
}
func (f *fakePLCClient) WriteLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layerParamWrites = append(f.layerParamWrites, paramWrite{layers, deltaSource, deltaSink})
	return nil
}
func (f *fakePLCClient) WriteBottomLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return nil
}
func (f *fakePLCClient) WriteLayerExecutionComplete(ctx context.Context, layerN uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeWrites = append(f.completeWrites, layerN)
	return nil
}
func (f *fakePLCClient) WriteEmergencyStop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emergencyWrites++
	return nil
}
func (f *fakePLCClient) ReadSnapshot(ctx context.Context) (types.OpcSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotReads++
	return f.snapshot, nil
}

func (f *fakePLCClient) snapshotReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotReads
}

func (f *fakePLCClient) ConnectionLost() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connLost
}

// setPowderSurfaceDone flips the mirrored tag the handshake poller reads,
// simulating the PLC finishing a layer.
func (f *fakePLCClient) setPowderSurfaceDone(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot.PowderSurfaceDone = v
}

func (f *fakePLCClient) emergencyWriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emergencyWrites
}
