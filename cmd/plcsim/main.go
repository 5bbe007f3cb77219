// Command plcsim is the standalone PLC Simulator process: it exposes the
// same sixteen-tag namespace and timing behavior a real PLC program
// would over OPC UA, but behind a small HTTP+JSON transport (see
// SPEC_FULL.md §4.6a/§6a — no maintained pure-Go OPC UA server exists).
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"industrial-4.0-demo/internal/plcsim"
)

type tagWriteRequest struct {
	Tag   string `json:"tag"`
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

type tagReadResponse struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "plcsim")
	slog.SetDefault(logger)

	sim := plcsim.New(logger)
	go sim.Run()
	defer sim.Stop()

	r := mux.NewRouter()
	r.HandleFunc("/tag/write", writeHandler(sim, logger)).Methods(http.MethodPost)
	r.HandleFunc("/tag/read", readHandler(sim, logger)).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", snapshotHandler(sim)).Methods(http.MethodGet)

	logger.Info("plc simulator listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("plc simulator exited", "error", err)
		os.Exit(1)
	}
}

func writeHandler(sim *plcsim.Simulator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tagWriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var err error
		switch req.Kind {
		case "bool":
			b, ok := req.Value.(bool)
			if !ok {
				http.Error(w, "value is not a bool", http.StatusBadRequest)
				return
			}
			err = sim.WriteBool(req.Tag, b)
		case "int32":
			f, ok := req.Value.(float64)
			if !ok {
				http.Error(w, "value is not a number", http.StatusBadRequest)
				return
			}
			err = sim.WriteInt32(req.Tag, int32(f))
		default:
			http.Error(w, "unknown kind", http.StatusBadRequest)
			return
		}

		if err != nil {
			logger.Warn("tag write rejected", "tag", req.Tag, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func readHandler(sim *plcsim.Simulator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag := r.URL.Query().Get("tag")
		if v, err := sim.ReadBool(tag); err == nil {
			writeJSON(w, tagReadResponse{Kind: "bool", Value: v})
			return
		} else if err != plcsim.ErrWrongKind && err != plcsim.ErrUnknownTag {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if v, err := sim.ReadInt32(tag); err == nil {
			writeJSON(w, tagReadResponse{Kind: "int32", Value: v})
			return
		}
		http.Error(w, "unknown tag "+tag, http.StatusNotFound)
	}
}

func snapshotHandler(sim *plcsim.Simulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sim.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
