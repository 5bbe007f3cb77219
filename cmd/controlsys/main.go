package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"industrial-4.0-demo/internal/audit"
	"industrial-4.0-demo/internal/config"
	"industrial-4.0-demo/internal/control"
	"industrial-4.0-demo/internal/device"
	"industrial-4.0-demo/internal/events"
	"industrial-4.0-demo/internal/paramlib"
	"industrial-4.0-demo/internal/plc"
	"industrial-4.0-demo/internal/rtc"
	"industrial-4.0-demo/internal/scheduler"
)

// main wires the coordinator and its transports: a PLC client (real
// OPC UA or the HTTP simulator, selected by config), a Device Adapter
// around an in-memory SimDriver, the parameter library, the audit log,
// and the Control Surface's REST/WebSocket/metrics endpoints.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "controlsys")
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	lib, err := paramlib.Load(cfg.ParamLibraryPath)
	if err != nil {
		logger.Warn("parameter library load failed, continuing without one", "error", err, "path", cfg.ParamLibraryPath)
		lib = nil
	}

	calib := rtc.DefaultCalibration()
	if cfg.FieldSizeMM > 0 {
		calib = rtc.Calibration{
			FieldSizeMM:     cfg.FieldSizeMM,
			MaxBits:         cfg.MaxBits,
			ScaleCorrection: cfg.ScaleCorrection,
		}
	}

	client := buildPLCClient(cfg, logger)

	driverLibrary := device.NewLibrary(nil, nil)
	dev := device.New(device.NewSimDriver(), driverLibrary)

	bus := events.NewBus()

	auditLog, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		logger.Error("open audit log failed", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	coordinator := scheduler.New(client, dev, lib, calib, bus, auditLog, logger, cfg.LayerParameterPolicy)
	coordinator.SetQueueCapacity(cfg.QueueCapacity)
	if cfg.HandshakePollIntervalMs > 0 {
		coordinator.SetPollingInterval(cfg.HandshakePollIntervalMs)
	}

	surface := control.New(coordinator, logger)

	hub := control.NewHub(logger)
	go hub.Run()
	hub.SubscribeAll(bus)

	auth := control.NewOperatorAuth(cfg.Env.JWTSecret)

	logger.Info("coordinator ready", "plc_transport", cfg.PLCTransport, "queue_capacity", cfg.QueueCapacity)

	srv := &http.Server{Addr: cfg.ControlSurfaceAddr, Handler: buildRouter(surface, hub, auth)}

	go func() {
		logger.Info("control surface listening", "addr", cfg.ControlSurfaceAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control surface server failed", "error", err)
		}
	}()

	waitForShutdown(logger, srv)
}

func buildPLCClient(cfg *config.Config, logger *slog.Logger) plc.Client {
	if cfg.PLCTransport == "opcua" {
		return plc.NewOpcUAClient(cfg.Env.OpcUAURL, uint16(cfg.Env.OpcUANamespaceIndex), logger)
	}
	return plc.NewSimClient(cfg.Env.SimulatorURL, logger)
}

func buildRouter(surface *control.Surface, hub *control.Hub, auth *control.OperatorAuth) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/ws", hub.ServeWs)

	r.HandleFunc("/api/v1/state", handleCurrentState(surface)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/emergency_stop", handleEmergencyStop(surface)).Methods(http.MethodPost)

	r.HandleFunc("/api/v1/start_production", auth.RequireOperator(handleStartProduction(surface))).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/start_test", auth.RequireOperator(handleStartTest(surface))).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/pause", auth.RequireOperator(handlePause(surface))).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/resume", auth.RequireOperator(handleResume(surface))).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/stop", auth.RequireOperator(handleStop(surface))).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/set_polling_interval", auth.RequireOperator(handleSetPollingInterval(surface))).Methods(http.MethodPost)

	return r
}

func handleCurrentState(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surface.CurrentState())
	}
}

func handleStartProduction(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.StartProductionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// The build runs for minutes to hours; it must outlive this
		// request, so it is started against a detached context, not
		// r.Context().
		if err := surface.StartProduction(context.Background(), req); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func handleStartTest(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.StartTestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := surface.StartTest(context.Background(), req); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func handlePause(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surface.Pause(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleResume(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surface.Resume(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleStop(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surface.Stop(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleEmergencyStop(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := surface.EmergencyStop(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleSetPollingInterval(surface *control.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.SetPollingIntervalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := surface.SetPollingInterval(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func waitForShutdown(logger *slog.Logger, srv *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received, closing control surface")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("control surface shutdown failed", "error", err)
	}
}
