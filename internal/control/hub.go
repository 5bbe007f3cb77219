package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"industrial-4.0-demo/internal/events"
)

// Hub fans every observation-channel event out to connected WebSocket
// clients, adapted from the teacher's web.Hub: the same
// register/unregister/broadcast channel trio, generalized from one fixed
// broadcast payload to whatever the events.Bus delivers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan wireEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
	logger     *slog.Logger
}

// wireEvent is the JSON envelope every event channel's payload is sent
// to clients in.
type wireEvent struct {
	Channel events.Channel `json:"channel"`
	Payload any            `json:"payload"`
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan wireEvent, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger.With("component", "ws_hub"),
	}
}

// Run drives the hub's main loop. Call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case evt := <-h.broadcast:
			message, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("marshal event for broadcast failed", "error", err)
				continue
			}
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn("websocket write failed, dropping client", "error", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// SubscribeAll wires every observation channel the Control Surface
// exposes into the hub's broadcast, so a client connected to /ws sees
// the full event stream.
func (h *Hub) SubscribeAll(bus *events.Bus) {
	for _, ch := range []events.Channel{
		events.ChannelStatusMessage,
		events.ChannelProgress,
		events.ChannelLayerExecuted,
		events.ChannelFinished,
		events.ChannelError,
		events.ChannelOpcSnapshot,
		events.ChannelConnectionLost,
	} {
		channel := ch
		bus.Subscribe(channel, func(payload any) {
			h.broadcast <- wireEvent{Channel: channel, Payload: payload}
		})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades an HTTP request to a WebSocket and registers the
// connection. The connection is write-only from the server's side; the
// Control Surface's mutating operations all go through the REST routes.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.register <- conn
}
