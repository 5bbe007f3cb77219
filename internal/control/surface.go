// Package control is the Control Surface: the thin, synchronous facade
// the REST/WebSocket transport in cmd/controlsys drives, wrapping one
// scheduler.Coordinator. It adds nothing to the Coordinator's semantics —
// every method here is a direct pass-through, audited at this boundary
// because this is where external callers (not internal goroutines) reach
// in.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"industrial-4.0-demo/internal/scheduler"
	"industrial-4.0-demo/internal/types"
)

// Surface is the single entry point every transport (REST, WebSocket,
// a future CLI) drives the build through.
type Surface struct {
	coordinator *scheduler.Coordinator
	logger      *slog.Logger
}

func New(coordinator *scheduler.Coordinator, logger *slog.Logger) *Surface {
	return &Surface{coordinator: coordinator, logger: logger.With("component", "control_surface")}
}

// StartProductionRequest is the start_production operation's parameters.
type StartProductionRequest struct {
	SlicePath string `json:"slice_path"`
}

func (s *Surface) StartProduction(ctx context.Context, req StartProductionRequest) error {
	if req.SlicePath == "" {
		return fmt.Errorf("slice_path is required")
	}
	s.logger.Info("start_production requested", "slice_path", req.SlicePath)
	return s.coordinator.StartProduction(ctx, req.SlicePath)
}

// StartTestRequest is the start_test operation's parameters.
type StartTestRequest struct {
	ThicknessMM float64 `json:"thickness_mm"`
	LayerCount  uint32  `json:"layer_count"`
}

func (s *Surface) StartTest(ctx context.Context, req StartTestRequest) error {
	if req.LayerCount == 0 {
		return fmt.Errorf("layer_count must be positive")
	}
	s.logger.Info("start_test requested", "thickness_mm", req.ThicknessMM, "layer_count", req.LayerCount)
	return s.coordinator.StartTest(ctx, req.ThicknessMM, req.LayerCount)
}

func (s *Surface) Pause() error {
	s.logger.Info("pause requested")
	return s.coordinator.Pause()
}

func (s *Surface) Resume() error {
	s.logger.Info("resume requested")
	return s.coordinator.Resume()
}

func (s *Surface) Stop() error {
	s.logger.Info("stop requested")
	return s.coordinator.Stop()
}

func (s *Surface) EmergencyStop() error {
	s.logger.Warn("emergency_stop requested")
	return s.coordinator.EmergencyStop()
}

// SetPollingIntervalRequest is the set_polling_interval operation's
// parameters.
type SetPollingIntervalRequest struct {
	IntervalMs int `json:"interval_ms"`
}

func (s *Surface) SetPollingInterval(req SetPollingIntervalRequest) error {
	if req.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive")
	}
	s.coordinator.SetPollingInterval(req.IntervalMs)
	return nil
}

// CurrentStateResponse is the current_state operation's result.
type CurrentStateResponse struct {
	State types.ProcessState `json:"state"`
}

func (s *Surface) CurrentState() CurrentStateResponse {
	return CurrentStateResponse{State: s.coordinator.CurrentState()}
}
