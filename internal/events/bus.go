// Package events implements the Control Surface's publish-only,
// multi-subscriber observation channels: status_message, progress,
// layer_executed, finished, error, opc_snapshot, connection_lost.
package events

import (
	"sync"

	"industrial-4.0-demo/internal/types"
)

// Channel names every observation channel spec.md §4.8 lists.
type Channel string

const (
	ChannelStatusMessage   Channel = "status_message"
	ChannelProgress        Channel = "progress"
	ChannelLayerExecuted   Channel = "layer_executed"
	ChannelFinished        Channel = "finished"
	ChannelError           Channel = "error"
	ChannelOpcSnapshot     Channel = "opc_snapshot"
	ChannelConnectionLost  Channel = "connection_lost"
)

// StatusMessage is the payload of ChannelStatusMessage.
type StatusMessage struct{ Text string }

// Progress is the payload of ChannelProgress.
type Progress struct{ Done, Total uint32 }

// LayerExecuted is the payload of ChannelLayerExecuted.
type LayerExecuted struct{ LayerNumber uint32 }

// ErrorEvent is the payload of ChannelError.
type ErrorEvent struct {
	Kind string
	Text string
}

// Handler receives one published event's payload. Handlers run
// concurrently with each other and must not block for long — each
// publish spawns one goroutine per subscriber, mirroring the teacher's
// event.Bus.Publish.
type Handler func(payload any)

// Bus is an in-memory, multi-subscriber, fan-out publish channel. A
// single Bus instance backs every observation channel the Control
// Surface exposes; Channel is the routing key.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Channel][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Channel][]Handler)}
}

// Subscribe registers handler against channel. Subscriptions accumulate;
// there is no Unsubscribe — subscribers are expected to live as long as
// the Bus (dashboards, the audit log, the metrics exporter).
func (b *Bus) Subscribe(channel Channel, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
}

// Publish fans payload out to every subscriber of channel, each in its
// own goroutine so one slow subscriber never blocks another.
func (b *Bus) Publish(channel Channel, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers[channel] {
		go h(payload)
	}
}

// PublishOpcSnapshot is a typed convenience wrapper around Publish for
// the high-frequency snapshot channel.
func (b *Bus) PublishOpcSnapshot(snap types.OpcSnapshot) {
	b.Publish(ChannelOpcSnapshot, snap)
}
