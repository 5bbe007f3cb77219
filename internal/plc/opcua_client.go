package plc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"industrial-4.0-demo/internal/slmerr"
	"industrial-4.0-demo/internal/types"
)

// OpcUAClient is the real PLC Client, backed by a gopcua session against
// an opc.tcp:// endpoint. It keeps the two-mutex discipline spec's
// concurrency model requires: stateMu guards connectionLost/initialized
// and is never held across an OPC call; callMu serializes every library
// call. A read or write that finds the session closed marks the
// connection lost while it still holds callMu, so the ConnectionLost
// channel is closed under callMu in that case.
type OpcUAClient struct {
	endpoint       string
	namespaceIndex uint16
	namespaceURI   string
	logger         *slog.Logger

	callMu sync.Mutex
	client *opcua.Client
	nodes  map[Tag]*ua.NodeID // allocated node handles, released once on Close

	stateMu         sync.Mutex
	initialized     bool
	connectionLost  bool
	lostCh          chan struct{}
	lostChClosed    bool
}

// NewOpcUAClient returns an unconnected OpcUAClient. Connect must be
// called before any other method.
func NewOpcUAClient(endpoint string, namespaceIndex uint16, logger *slog.Logger) *OpcUAClient {
	return &OpcUAClient{
		endpoint:       endpoint,
		namespaceIndex: namespaceIndex,
		namespaceURI:   DefaultNamespaceURI,
		logger:         logger.With("component", "plc.opcua_client"),
		lostCh:         make(chan struct{}),
	}
}

var allTags = []Tag{
	TagStartUp, TagStartUpDone, TagZStacks, TagDeltaSource, TagDeltaSink,
	TagMakeSurfaceDone, TagMarcerSourcePosition, TagMarcerSinkPosition,
	TagStartSurfaces, TagGMarcerSourcePosition, TagGMarcerSinkPosition,
	TagLaySurface, TagLaySurfaceDone, TagStepSource, TagStepSink, TagLayStacks,
}

// Connect dials the endpoint and builds the fixed 16-tag handle set. Each
// handle is a scoped ua.NodeID allocated against namespaceIndex; Close
// releases the whole set in one pass.
func (c *OpcUAClient) Connect(ctx context.Context) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	client, err := opcua.NewClient(c.endpoint, opcua.SecurityMode(ua.MessageSecurityModeNone))
	if err != nil {
		return &slmerr.OpcConnect{Reason: err.Error()}
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return &slmerr.OpcConnect{Reason: err.Error()}
	}

	nodes := make(map[Tag]*ua.NodeID, len(allTags))
	for _, tag := range allTags {
		nodes[tag] = ua.NewStringNodeID(c.namespaceIndex, string(tag))
	}

	c.client = client
	c.nodes = nodes

	c.stateMu.Lock()
	c.initialized = true
	c.connectionLost = false
	c.stateMu.Unlock()

	c.logger.Info("plc session established", "endpoint", c.endpoint, "namespace_uri", c.namespaceURI)
	return nil
}

// Close releases every allocated node handle exactly once and tears down
// the underlying session.
func (c *OpcUAClient) Close(ctx context.Context) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.stateMu.Lock()
	wasInitialized := c.initialized
	c.initialized = false
	c.stateMu.Unlock()

	if !wasInitialized {
		return nil
	}
	c.nodes = nil
	if c.client == nil {
		return nil
	}
	return c.client.Close(ctx)
}

func (c *OpcUAClient) isLost() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connectionLost
}

// markConnectionLost flips the lost flag and closes the notification
// channel exactly once. It takes only stateMu; ReadI32, ReadBool, WriteI32
// and WriteBool call it while they hold callMu.
func (c *OpcUAClient) markConnectionLost() {
	c.stateMu.Lock()
	already := c.connectionLost
	c.connectionLost = true
	shouldClose := !c.lostChClosed
	if shouldClose {
		c.lostChClosed = true
	}
	c.stateMu.Unlock()

	if !already && shouldClose {
		close(c.lostCh)
		c.logger.Warn("plc connection lost")
	}
}

func (c *OpcUAClient) ConnectionLost() <-chan struct{} { return c.lostCh }

func statusIsSessionClosed(status ua.StatusCode) bool {
	switch status {
	case ua.StatusBadSessionClosed, ua.StatusBadSessionNotActivated, ua.StatusBadConnectionClosed, ua.StatusBadServerNotConnected:
		return true
	default:
		return false
	}
}

func (c *OpcUAClient) ReadI32(ctx context.Context, tag Tag) (int32, error) {
	if c.isLost() {
		return 0, slmerr.ErrConnectionLost
	}
	c.callMu.Lock()
	defer c.callMu.Unlock()

	node, ok := c.nodes[tag]
	if !ok {
		return 0, &slmerr.Internal{Reason: fmt.Sprintf("unknown tag %q", tag)}
	}
	v, err := c.client.Node(node).Value(ctx)
	if err != nil {
		if sc, ok := asStatusCode(err); ok && statusIsSessionClosed(sc) {
			c.markConnectionLost()
			return 0, slmerr.ErrConnectionLost
		}
		return 0, &slmerr.OpcBad{Op: "read_i32:" + string(tag)}
	}
	i, ok := v.Value().(int32)
	if !ok {
		return 0, &slmerr.OpcBad{Op: "read_i32:" + string(tag) + " type mismatch"}
	}
	return i, nil
}

func (c *OpcUAClient) ReadBool(ctx context.Context, tag Tag) (bool, error) {
	if c.isLost() {
		return false, slmerr.ErrConnectionLost
	}
	c.callMu.Lock()
	defer c.callMu.Unlock()

	node, ok := c.nodes[tag]
	if !ok {
		return false, &slmerr.Internal{Reason: fmt.Sprintf("unknown tag %q", tag)}
	}
	v, err := c.client.Node(node).Value(ctx)
	if err != nil {
		if sc, ok := asStatusCode(err); ok && statusIsSessionClosed(sc) {
			c.markConnectionLost()
			return false, slmerr.ErrConnectionLost
		}
		return false, &slmerr.OpcBad{Op: "read_bool:" + string(tag)}
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, &slmerr.OpcBad{Op: "read_bool:" + string(tag) + " type mismatch"}
	}
	return b, nil
}

func (c *OpcUAClient) WriteI32(ctx context.Context, tag Tag, val int32) error {
	if c.isLost() {
		return slmerr.ErrConnectionLost
	}
	c.callMu.Lock()
	defer c.callMu.Unlock()

	node, ok := c.nodes[tag]
	if !ok {
		return &slmerr.Internal{Reason: fmt.Sprintf("unknown tag %q", tag)}
	}
	status, err := c.writeNode(ctx, node, ua.MustVariant(val))
	if err != nil || statusIsSessionClosed(status) {
		if statusIsSessionClosed(status) {
			c.markConnectionLost()
			return slmerr.ErrConnectionLost
		}
		return &slmerr.OpcBad{Op: "write_i32:" + string(tag), StatusCode: uint32(status)}
	}
	return nil
}

// writeNode writes val to node and returns the status code reported for
// the write, adapting the pinned opcua client's request/response Write API
// to the single-node status result the callers expect.
func (c *OpcUAClient) writeNode(ctx context.Context, node *ua.NodeID, val *ua.Variant) (ua.StatusCode, error) {
	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{
			{
				NodeID:      node,
				AttributeID: ua.AttributeIDValue,
				Value:       &ua.DataValue{EncodingMask: ua.DataValueValue, Value: val},
			},
		},
	}
	resp, err := c.client.Write(ctx, req)
	if err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, nil
	}
	return resp.Results[0], nil
}

func (c *OpcUAClient) WriteBool(ctx context.Context, tag Tag, val bool) error {
	if c.isLost() {
		return slmerr.ErrConnectionLost
	}
	c.callMu.Lock()
	defer c.callMu.Unlock()

	node, ok := c.nodes[tag]
	if !ok {
		return &slmerr.Internal{Reason: fmt.Sprintf("unknown tag %q", tag)}
	}
	status, err := c.writeNode(ctx, node, ua.MustVariant(val))
	if err != nil || statusIsSessionClosed(status) {
		if statusIsSessionClosed(status) {
			c.markConnectionLost()
			return slmerr.ErrConnectionLost
		}
		return &slmerr.OpcBad{Op: "write_bool:" + string(tag), StatusCode: uint32(status)}
	}
	return nil
}

func (c *OpcUAClient) WriteStartup(ctx context.Context, on bool) error {
	return c.WriteBool(ctx, TagStartUp, on)
}

func (c *OpcUAClient) WritePowderFill(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return writePowderFillSeq(ctx, c, layers, deltaSource, deltaSink)
}

func (c *OpcUAClient) WriteLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return writeLayerParametersSeq(ctx, c, layers, deltaSource, deltaSink, 100*time.Millisecond, 400*time.Millisecond)
}

func (c *OpcUAClient) WriteBottomLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return writeLayerParametersSeq(ctx, c, layers, deltaSource, deltaSink, 1000*time.Millisecond, 500*time.Millisecond)
}

func (c *OpcUAClient) WriteLayerExecutionComplete(ctx context.Context, layerN uint32) error {
	return writeLayerExecutionCompleteSeq(ctx, c)
}

// WriteEmergencyStop always logs, even past connection loss, since an
// operator needs to know the write was attempted regardless of outcome.
func (c *OpcUAClient) WriteEmergencyStop(ctx context.Context) error {
	err := writeEmergencyStopSeq(ctx, c)
	if err != nil {
		c.logger.Error("emergency stop write failed", "error", err)
	} else {
		c.logger.Warn("emergency stop written")
	}
	return err
}

func (c *OpcUAClient) ReadSnapshot(ctx context.Context) (types.OpcSnapshot, error) {
	var snap types.OpcSnapshot
	var err error

	if snap.StartupDone, err = c.ReadBool(ctx, TagStartUpDone); err != nil {
		return snap, err
	}
	if snap.ReadyToPowder, err = c.ReadBool(ctx, TagMakeSurfaceDone); err != nil {
		return snap, err
	}
	if snap.PowderSurfaceDone, err = c.ReadBool(ctx, TagLaySurfaceDone); err != nil {
		return snap, err
	}
	if snap.SourceCylinderActualPosition, err = c.ReadI32(ctx, TagMarcerSourcePosition); err != nil {
		return snap, err
	}
	if snap.SinkCylinderActualPosition, err = c.ReadI32(ctx, TagMarcerSinkPosition); err != nil {
		return snap, err
	}
	if snap.GlobalSourceCylinderPosition, err = c.ReadI32(ctx, TagGMarcerSourcePosition); err != nil {
		return snap, err
	}
	if snap.GlobalSinkCylinderPosition, err = c.ReadI32(ctx, TagGMarcerSinkPosition); err != nil {
		return snap, err
	}
	return snap, nil
}

// asStatusCode extracts an OPC UA status code from a gopcua error, if the
// error carries one.
func asStatusCode(err error) (ua.StatusCode, bool) {
	sc, ok := err.(ua.StatusCode)
	return sc, ok
}
