// Package metrics exposes the coordinator's Prometheus instrumentation,
// wired the same way the teacher's scheduler metrics are: promauto
// registrations against the default registry, scraped via promhttp in
// cmd/controlsys.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is a gauge of the bounded command-block queue's current
	// occupancy, the producer/consumer pipeline's backpressure signal.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_queue_depth",
		Help: "Number of RtcCommandBlocks currently buffered between producer and consumer",
	})

	// LayersExecutedTotal counts completed layer handshakes, by outcome.
	LayersExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_layers_executed_total",
		Help: "The total number of layers the consumer has executed",
	}, []string{"outcome"})

	// PlcHandshakeWaitSeconds tracks how long the consumer waits for the
	// PLC's plc-layer-ready signal per layer, the dominant cost per S6.
	PlcHandshakeWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coordinator_plc_handshake_wait_seconds",
		Help:    "Time spent waiting for a rising edge of powder_surface_done per layer",
		Buckets: prometheus.DefBuckets,
	})

	// DeviceCommandsTotal counts Jump/Mark/Delay commands sent to the
	// galvo device, by kind.
	DeviceCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_device_commands_total",
		Help: "The total number of device commands executed",
	}, []string{"kind"})

	// ProcessStateTransitionsTotal counts every accepted process-state
	// transition, by target state.
	ProcessStateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coordinator_process_state_transitions_total",
		Help: "The total number of accepted ProcessState transitions",
	}, []string{"to"})
)
