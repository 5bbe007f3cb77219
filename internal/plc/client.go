// Package plc defines the PLC synchronization client contract and its two
// implementations: a real OPC UA session (OpcUAClient) and an HTTP client
// against the standalone simulator (SimClient). The Scheduler depends only
// on the Client interface; it never knows which transport it is driving.
package plc

import (
	"context"
	"time"

	"industrial-4.0-demo/internal/types"
)

// Tag identifies one of the sixteen fixed OPC UA nodes by its dotted
// string identifier. Tag names are fixed by the PLC program; nothing in
// this system discovers them at runtime.
type Tag string

const (
	TagStartUp               Tag = "CECC.MaTe_DLMS.StartUpSequence.StartUp"
	TagStartUpDone            Tag = "CECC.MaTe_DLMS.StartUpSequence.StartUp_Done"
	TagZStacks                Tag = "CECC.MaTe_DLMS.MakeSurface.Z_Stacks"
	TagDeltaSource            Tag = "CECC.MaTe_DLMS.MakeSurface.Delta_Source"
	TagDeltaSink              Tag = "CECC.MaTe_DLMS.MakeSurface.Delta_Sink"
	TagMakeSurfaceDone        Tag = "CECC.MaTe_DLMS.MakeSurface.MakeSurface_Done"
	TagMarcerSourcePosition   Tag = "CECC.MaTe_DLMS.MakeSurface.Marcer_Source_Cylinder_ActualPosition"
	TagMarcerSinkPosition     Tag = "CECC.MaTe_DLMS.MakeSurface.Marcer_Sink_Cylinder_ActualPosition"
	TagStartSurfaces          Tag = "CECC.MaTe_DLMS.GVL.StartSurfaces"
	TagGMarcerSourcePosition  Tag = "CECC.MaTe_DLMS.GVL.g_Marcer_Source_Cylinder_ActualPosition"
	TagGMarcerSinkPosition    Tag = "CECC.MaTe_DLMS.GVL.g_Marcer_Sink_Cylinder_ActualPosition"
	TagLaySurface             Tag = "CECC.MaTe_DLMS.Prepare2Process.LaySurface"
	TagLaySurfaceDone         Tag = "CECC.MaTe_DLMS.Prepare2Process.LaySurface_Done"
	TagStepSource             Tag = "CECC.MaTe_DLMS.Prepare2Process.Step_Source"
	TagStepSink               Tag = "CECC.MaTe_DLMS.Prepare2Process.Step_Sink"
	TagLayStacks              Tag = "CECC.MaTe_DLMS.Prepare2Process.Lay_Stacks"
)

// DefaultNamespaceURI is the OPC UA namespace URI the PLC registers its
// tags under. OpcUAClient records it and logs it on connect; neither
// implementation checks the server's namespace table against it.
const DefaultNamespaceURI = "urn:codesys:dlms:simulation"

// DefaultEndpoint is the OPC UA endpoint used when no override is given.
const DefaultEndpoint = "opc.tcp://localhost:4840"

// DefaultNamespaceIndex is the namespace index the tag set above lives
// under, absent an OPC_UA_NAMESPACE_INDEX override.
const DefaultNamespaceIndex = 2

// Client is the PLC synchronization session contract. Every method is
// safe to call from any goroutine; implementations serialize the
// underlying I/O themselves (spec's call_mutex discipline).
type Client interface {
	// Connect establishes the session and builds the fixed tag handle
	// set. It must be called before any other method.
	Connect(ctx context.Context) error
	// Close releases every allocated tag handle exactly once and tears
	// down the session.
	Close(ctx context.Context) error

	ReadI32(ctx context.Context, tag Tag) (int32, error)
	ReadBool(ctx context.Context, tag Tag) (bool, error)
	WriteI32(ctx context.Context, tag Tag, v int32) error
	WriteBool(ctx context.Context, tag Tag, v bool) error

	WriteStartup(ctx context.Context, on bool) error
	WritePowderFill(ctx context.Context, layers, deltaSource, deltaSink int32) error
	WriteLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error
	WriteBottomLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error
	WriteLayerExecutionComplete(ctx context.Context, layerN uint32) error
	WriteEmergencyStop(ctx context.Context) error
	ReadSnapshot(ctx context.Context) (types.OpcSnapshot, error)

	// ConnectionLost returns a channel that is closed exactly once, the
	// moment the client observes a connection-closed/session-closed
	// status from the transport. Safe to call before or after Connect.
	ConnectionLost() <-chan struct{}
}

// sleep paces writes within one high-level handshake operation so the PLC
// program, which polls its inputs on its own scan cycle, sees each write
// settle before the next one lands. It returns early with ctx.Err() if
// the caller cancels mid-pace.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
