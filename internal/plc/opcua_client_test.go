package plc

import (
	"context"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"industrial-4.0-demo/internal/slmerr"
)

// OpcUAClient's Connect dials a real opc.tcp:// session, which this suite
// has no server to satisfy. These tests exercise everything reachable
// without a live session: the pre-Connect guard rails, the session-closed
// status classification, and the connection-lost notification plumbing
// shared with SimClient.

func TestOpcUAClient_ReadBeforeConnectReturnsInternalError(t *testing.T) {
	c := NewOpcUAClient("opc.tcp://127.0.0.1:0", DefaultNamespaceIndex, testLogger())

	_, err := c.ReadI32(context.Background(), TagZStacks)
	require.Error(t, err)
	var internalErr *slmerr.Internal
	assert.ErrorAs(t, err, &internalErr)
}

func TestOpcUAClient_WriteBeforeConnectReturnsInternalError(t *testing.T) {
	c := NewOpcUAClient("opc.tcp://127.0.0.1:0", DefaultNamespaceIndex, testLogger())

	err := c.WriteBool(context.Background(), TagStartUp, true)
	require.Error(t, err)
	var internalErr *slmerr.Internal
	assert.ErrorAs(t, err, &internalErr)
}

func TestOpcUAClient_ConnectionLost_ClosesChannelExactlyOnce(t *testing.T) {
	c := NewOpcUAClient("opc.tcp://127.0.0.1:0", DefaultNamespaceIndex, testLogger())

	select {
	case <-c.ConnectionLost():
		t.Fatal("ConnectionLost channel must start open")
	default:
	}

	c.markConnectionLost()
	assert.NotPanics(t, func() { c.markConnectionLost() })

	select {
	case <-c.ConnectionLost():
	case <-time.After(time.Second):
		t.Fatal("ConnectionLost channel was never closed")
	}
}

func TestOpcUAClient_IsLostReflectsMarkConnectionLost(t *testing.T) {
	c := NewOpcUAClient("opc.tcp://127.0.0.1:0", DefaultNamespaceIndex, testLogger())
	assert.False(t, c.isLost())
	c.markConnectionLost()
	assert.True(t, c.isLost())
}

func TestOpcUAClient_ReadAfterConnectionLostFailsFast(t *testing.T) {
	c := NewOpcUAClient("opc.tcp://127.0.0.1:0", DefaultNamespaceIndex, testLogger())
	c.markConnectionLost()

	_, err := c.ReadBool(context.Background(), TagStartUpDone)
	assert.ErrorIs(t, err, slmerr.ErrConnectionLost)
}

func TestOpcUAClient_CloseBeforeConnectIsNoop(t *testing.T) {
	c := NewOpcUAClient("opc.tcp://127.0.0.1:0", DefaultNamespaceIndex, testLogger())
	assert.NoError(t, c.Close(context.Background()))
}

func TestStatusIsSessionClosed_ClassifiesKnownCodes(t *testing.T) {
	cases := []struct {
		name   string
		status ua.StatusCode
		want   bool
	}{
		{"session_closed", ua.StatusBadSessionClosed, true},
		{"session_not_activated", ua.StatusBadSessionNotActivated, true},
		{"connection_closed", ua.StatusBadConnectionClosed, true},
		{"server_not_connected", ua.StatusBadServerNotConnected, true},
		{"unrelated_good_status", ua.StatusOK, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusIsSessionClosed(tc.status))
		})
	}
}

func TestAsStatusCode_ExtractsStatusCodeError(t *testing.T) {
	sc, ok := asStatusCode(ua.StatusBadSessionClosed)
	assert.True(t, ok)
	assert.Equal(t, ua.StatusBadSessionClosed, sc)

	_, ok = asStatusCode(assertNotAStatusCodeError{})
	assert.False(t, ok)
}

type assertNotAStatusCodeError struct{}

func (assertNotAStatusCodeError) Error() string { return "not a status code" }
