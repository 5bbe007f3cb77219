package control

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"industrial-4.0-demo/internal/events"
)

func TestHub_SubscribeAll_BroadcastsPublishedEventToWebSocketClient(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	bus := events.NewBus()
	hub.SubscribeAll(bus)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the register channel a moment to land before publishing,
	// since Hub.Run processes register/broadcast off one goroutine.
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.ChannelStatusMessage, events.StatusMessage{Text: "layer done"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(message), "status_message")
	assert.Contains(t, string(message), "layer done")
}
