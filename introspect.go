// Copyright 2026 The nyx Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

package nyx

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/elazarl/go-bindata-assetfs"
)

// IntrospectionStats is the read-only snapshot served at /stats: GC pacing,
// registry size, and main-thread stack depth, the handful of numbers an
// operator watching a long-running embedder actually wants (additive
// operational tooling, with no spec.md component of its own).
type IntrospectionStats struct {
	GCPhase       string `json:"gc_phase"`
	GCTotalBytes  int64  `json:"gc_total_bytes"`
	GCDebt        int64  `json:"gc_debt"`
	GCRunning     bool   `json:"gc_running"`
	RegistryLen   int64  `json:"registry_len"`
	GlobalsLen    int64  `json:"globals_len"`
	MainStackTop  int    `json:"main_stack_top"`
	MainStackLast int    `json:"main_stack_last"`
}

func (g *GlobalState) snapshotStats() IntrospectionStats {
	gc := g.GC
	return IntrospectionStats{
		GCPhase:       gc.phase.String(),
		GCTotalBytes:  gc.totalBytes,
		GCDebt:        gc.gcDebt,
		GCRunning:     gc.running,
		RegistryLen:   g.Registry.Len(),
		GlobalsLen:    g.Globals().Len(),
		MainStackTop:  g.MainThread.Stack.Top,
		MainStackLast: g.MainThread.Stack.Last,
	}
}

func (p gcPhase) String() string {
	switch p {
	case gcPause:
		return "pause"
	case gcPropagate:
		return "propagate"
	case gcAtomic:
		return "atomic"
	case gcSweepAllGC:
		return "sweep"
	case gcSweepToBeFnz:
		return "sweep-finalizers"
	case gcCallFin:
		return "call-finalizers"
	default:
		return "unknown"
	}
}

// introspectionIndex is the single hand-populated page served at "/" — no
// go:generate/bindata tool ran in this environment to produce it, so it is
// embedded directly rather than faked as codegen output.
var introspectionIndex = []byte(`<!DOCTYPE html>
<html><head><title>nyx introspection</title></head>
<body>
<h1>nyx engine introspection</h1>
<p>Live stats: <a href="/stats">/stats</a> (JSON)</p>
</body></html>
`)

func assetIndex(name string) ([]byte, error) {
	if name == "index.html" {
		return introspectionIndex, nil
	}
	return nil, os.ErrNotExist
}

func assetIndexDir(name string) ([]os.FileInfo, error) {
	if name == "" || name == "/" {
		return nil, nil
	}
	return nil, os.ErrNotExist
}

// IntrospectionServer serves a read-only operational view of one
// GlobalState over HTTP (spec's additive tooling surface; nyxctl's `serve`
// subcommand starts one). It never mutates engine state, and its single
// asset page is wrapped in an assetfs.AssetFS the way go-bindata-assetfs
// is normally wired once a bindata-generated Asset/AssetDir pair exists.
type IntrospectionServer struct {
	g      *GlobalState
	server *http.Server
}

// NewIntrospectionServer builds a server bound to addr but does not start
// listening; call Serve to run it.
func NewIntrospectionServer(g *GlobalState, addr string) *IntrospectionServer {
	mux := http.NewServeMux()
	is := &IntrospectionServer{g: g}

	assets := &assetfs.AssetFS{Asset: assetIndex, AssetDir: assetIndexDir, Prefix: ""}
	mux.Handle("/", http.FileServer(assets))
	mux.HandleFunc("/stats", is.handleStats)

	is.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return is
}

func (is *IntrospectionServer) handleStats(w http.ResponseWriter, r *http.Request) {
	is.g.Lock()
	stats := is.g.snapshotStats()
	is.g.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Serve blocks, listening until the server errors or is shut down.
func (is *IntrospectionServer) Serve() error {
	return is.server.ListenAndServe()
}

// Close stops the server immediately, dropping in-flight connections.
func (is *IntrospectionServer) Close() error {
	return is.server.Close()
}
