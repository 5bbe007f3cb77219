package plc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"industrial-4.0-demo/internal/slmerr"
	"industrial-4.0-demo/internal/types"
	"industrial-4.0-demo/internal/util"
)

// SimClient drives the standalone PLC Simulator (cmd/plcsim) over HTTP
// instead of real OPC UA framing, in the same request shape the
// orchestrator's remote-station client uses: JSON body, X-Trace-ID
// propagation, a bounded client timeout. It satisfies Client so the
// Scheduler cannot tell it apart from OpcUAClient.
type SimClient struct {
	endpoint string
	logger   *slog.Logger
	httpc    *http.Client

	callMu sync.Mutex

	stateMu        sync.Mutex
	initialized    bool
	connectionLost bool
	lostCh         chan struct{}
	lostChClosed   bool
}

// NewSimClient returns a SimClient dialing the given base URL (e.g.
// "http://localhost:8090").
func NewSimClient(endpoint string, logger *slog.Logger) *SimClient {
	return &SimClient{
		endpoint: endpoint,
		logger:   logger.With("component", "plc.sim_client"),
		httpc:    &http.Client{Timeout: 5 * time.Second},
		lostCh:   make(chan struct{}),
	}
}

func (c *SimClient) Connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(connectCtx, http.MethodGet, c.endpoint+"/snapshot", nil)
	if err != nil {
		return &slmerr.OpcConnect{Reason: err.Error()}
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return &slmerr.OpcConnect{Reason: err.Error()}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &slmerr.OpcConnect{Reason: fmt.Sprintf("simulator returned %s", resp.Status)}
	}

	c.stateMu.Lock()
	c.initialized = true
	c.connectionLost = false
	c.stateMu.Unlock()

	c.logger.Info("plc simulator session established", "endpoint", c.endpoint)
	return nil
}

func (c *SimClient) Close(ctx context.Context) error {
	c.stateMu.Lock()
	c.initialized = false
	c.stateMu.Unlock()
	return nil
}

func (c *SimClient) isLost() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connectionLost
}

func (c *SimClient) markConnectionLost() {
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
		c.logger.Warn("plc simulator connection lost")
	}
}

func (c *SimClient) ConnectionLost() <-chan struct{} { return c.lostCh }

type tagWriteRequest struct {
	Tag   string `json:"tag"`
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

type tagReadResponse struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func (c *SimClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID, ok := util.TraceIDFromContext(ctx); ok {
		req.Header.Set("X-Trace-ID", traceID)
	}

	c.callMu.Lock()
	resp, err := c.httpc.Do(req)
	c.callMu.Unlock()

	if err != nil {
		c.markConnectionLost()
		return nil, slmerr.ErrConnectionLost
	}
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		c.markConnectionLost()
		return nil, slmerr.ErrConnectionLost
	}
	return resp, nil
}

func (c *SimClient) write(ctx context.Context, tag Tag, kind string, value any) error {
	if c.isLost() {
		return slmerr.ErrConnectionLost
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/tag/write", tagWriteRequest{
		Tag: string(tag), Kind: kind, Value: value,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &slmerr.OpcBad{Op: "write:" + string(tag), StatusCode: uint32(resp.StatusCode)}
	}
	return nil
}

func (c *SimClient) read(ctx context.Context, tag Tag) (tagReadResponse, error) {
	var out tagReadResponse
	if c.isLost() {
		return out, slmerr.ErrConnectionLost
	}
	resp, err := c.doRequest(ctx, http.MethodGet, "/tag/read?tag="+string(tag), nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, &slmerr.OpcBad{Op: "read:" + string(tag), StatusCode: uint32(resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, &slmerr.OpcBad{Op: "read:" + string(tag) + " decode"}
	}
	return out, nil
}

func (c *SimClient) ReadI32(ctx context.Context, tag Tag) (int32, error) {
	r, err := c.read(ctx, tag)
	if err != nil {
		return 0, err
	}
	f, ok := r.Value.(float64) // JSON numbers decode as float64
	if !ok {
		return 0, &slmerr.OpcBad{Op: "read_i32:" + string(tag) + " type mismatch"}
	}
	return int32(f), nil
}

func (c *SimClient) ReadBool(ctx context.Context, tag Tag) (bool, error) {
	r, err := c.read(ctx, tag)
	if err != nil {
		return false, err
	}
	b, ok := r.Value.(bool)
	if !ok {
		return false, &slmerr.OpcBad{Op: "read_bool:" + string(tag) + " type mismatch"}
	}
	return b, nil
}

func (c *SimClient) WriteI32(ctx context.Context, tag Tag, v int32) error {
	return c.write(ctx, tag, "int32", v)
}

func (c *SimClient) WriteBool(ctx context.Context, tag Tag, v bool) error {
	return c.write(ctx, tag, "bool", v)
}

func (c *SimClient) WriteStartup(ctx context.Context, on bool) error {
	return c.WriteBool(ctx, TagStartUp, on)
}

func (c *SimClient) WritePowderFill(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return writePowderFillSeq(ctx, c, layers, deltaSource, deltaSink)
}

func (c *SimClient) WriteLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return writeLayerParametersSeq(ctx, c, layers, deltaSource, deltaSink, 100*time.Millisecond, 400*time.Millisecond)
}

func (c *SimClient) WriteBottomLayerParameters(ctx context.Context, layers, deltaSource, deltaSink int32) error {
	return writeLayerParametersSeq(ctx, c, layers, deltaSource, deltaSink, 1000*time.Millisecond, 500*time.Millisecond)
}

func (c *SimClient) WriteLayerExecutionComplete(ctx context.Context, layerN uint32) error {
	return writeLayerExecutionCompleteSeq(ctx, c)
}

func (c *SimClient) WriteEmergencyStop(ctx context.Context) error {
	err := writeEmergencyStopSeq(ctx, c)
	if err != nil {
		c.logger.Error("emergency stop write failed", "error", err)
	} else {
		c.logger.Warn("emergency stop written")
	}
	return err
}

func (c *SimClient) ReadSnapshot(ctx context.Context) (types.OpcSnapshot, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/snapshot", nil)
	if err != nil {
		return types.OpcSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.OpcSnapshot{}, &slmerr.OpcBad{Op: "read_snapshot", StatusCode: uint32(resp.StatusCode)}
	}
	var snap types.OpcSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return types.OpcSnapshot{}, &slmerr.OpcBad{Op: "read_snapshot decode"}
	}
	return snap, nil
}
