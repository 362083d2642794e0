// Package httpapi exposes the operational HTTP surface: health, live
// counters and per-shard depth, for dashboards and liveness probes that
// don't want to speak gRPC.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jlab-daq/e2sar-framebuilder/internal/builder"
	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

// StatsSource is the read-only dispatcher view this server renders.
type StatsSource interface {
	Running() bool
	Stats() frame.Counters
	ShardStats() []builder.Counters
	ShardCount() int
	ShardDepth(i int) int
}

// Server wraps a gorilla/mux router and an *http.Server over it.
type Server struct {
	source StatsSource
	srv    *http.Server
}

// New builds (but does not start) the HTTP server bound to addr.
func New(addr string, source StatsSource) *Server {
	r := mux.NewRouter()
	h := &handler{source: source}

	r.HandleFunc("/healthz", h.health).Methods("GET")
	r.HandleFunc("/stats", h.stats).Methods("GET")
	r.HandleFunc("/shards", h.shards).Methods("GET")

	return &Server{
		source: source,
		srv:    &http.Server{Addr: addr, Handler: r},
	}
}

// Start launches ListenAndServe in a background goroutine. errs receives
// any error other than http.ErrServerClosed.
func (s *Server) Start(errs chan<- error) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()
}

// Shutdown gracefully stops the server within the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type handler struct {
	source StatsSource
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if !h.source.Running() {
		http.Error(w, "not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.source.Stats())
}

type shardStat struct {
	Index        int    `json:"index"`
	Depth        int    `json:"depth"`
	FramesBuilt  uint64 `json:"frames_built"`
	SlicesSeen   uint64 `json:"slices_seen"`
	EncodeErrors uint64 `json:"encode_errors"`
}

func (h *handler) shards(w http.ResponseWriter, r *http.Request) {
	stats := h.source.ShardStats()
	out := make([]shardStat, len(stats))
	for i, c := range stats {
		out[i] = shardStat{
			Index:        i,
			Depth:        h.source.ShardDepth(i),
			FramesBuilt:  c.FramesBuilt,
			SlicesSeen:   c.SlicesSeen,
			EncodeErrors: c.EncodeErrors,
		}
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ShutdownTimeout is the bound used by cmd/framebuilder's main when
// stopping this server.
const ShutdownTimeout = 5 * time.Second
