// Copyright 2025 The qwindex Authors
// This file is part of qwindex.
//
// qwindex is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// qwindex is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with qwindex. If not, see <http://www.gnu.org/licenses/>.

// Package health exposes the indexer's liveness, readiness and health
// probes over HTTP, plus a JSON dump of the metrics registry.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/go-chi/chi/v5"

	"github.com/quaiwallet/indexer/internal/scanner"
)

const (
	// probeTimeout bounds one dependency probe inside a request.
	probeTimeout = 2 * time.Second
	// shutdownTimeout is how long in-flight probe requests get to finish.
	shutdownTimeout = 5 * time.Second
)

// Chain is the single RPC read a probe performs.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Store is the single store probe.
type Store interface {
	Ping(ctx context.Context) error
}

// StatusSource reports the scanner's progress snapshot.
type StatusSource interface {
	Status() scanner.Status
}

// Options configure the probe thresholds.
type Options struct {
	Port            int
	Confirmations   uint64
	MaxBlocksBehind uint64
}

// Server serves /live, /ready, /health and /debug/metrics.
type Server struct {
	chain  Chain
	store  Store
	status StatusSource
	opts   Options
	logger log.Logger

	mux http.Handler
	srv *http.Server
}

// New wires the probe routes. The server is not listening yet; call Start.
func New(chain Chain, store Store, status StatusSource, opts Options, logger log.Logger) *Server {
	s := &Server{
		chain:  chain,
		store:  store,
		status: status,
		opts:   opts,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Get("/live", s.handleLive)
	r.Get("/ready", s.handleReady)
	r.Get("/health", s.handleHealth)
	r.Get("/debug/metrics", s.handleMetrics)
	s.mux = r
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the listen port and serves in the background. Bind failures
// surface synchronously; serve errors after shutdown are ignored.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("health listener: %w", err)
	}
	s.srv = &http.Server{Handler: s.mux}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health server failed", "err", err)
		}
	}()
	s.logger.Info("Health server started", "addr", ln.Addr())
	return nil
}

// Stop drains the server, abandoning stragglers after the shutdown timeout.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("Health server shutdown incomplete", "err", err)
	}
}

// check is one dependency's probe outcome.
type check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func okCheck() check              { return check{Status: "ok"} }
func failedCheck(err error) check { return check{Status: "failed", Error: err.Error()} }

// report is the /health response body.
type report struct {
	Status           string           `json:"status"`
	Checks           map[string]check `json:"checks"`
	CurrentBlock     uint64           `json:"currentBlock"`
	LastIndexedBlock uint64           `json:"lastIndexedBlock"`
	BlocksBehind     uint64           `json:"blocksBehind"`
	IsSyncing        bool             `json:"isSyncing"`
	TrackedWallets   int              `json:"trackedWallets"`
}

// probe runs the two dependency checks once; /ready and /health both derive
// from the same pair of calls.
func (s *Server) probe(ctx context.Context) (tip uint64, rpcErr, storeErr error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	tip, rpcErr = s.chain.BlockNumber(ctx)
	storeErr = s.store.Ping(ctx)
	return tip, rpcErr, storeErr
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	_, rpcErr, storeErr := s.probe(r.Context())
	if rpcErr != nil || storeErr != nil || !s.status.Status().Running {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tip, rpcErr, storeErr := s.probe(r.Context())
	st := s.status.Status()

	// Prefer the live probe's head; fall back to the scanner's last
	// observation when the probe failed.
	current := tip
	if rpcErr != nil {
		current = st.CurrentBlock
	}
	var behind uint64
	if current > st.LastIndexedBlock+s.opts.Confirmations {
		behind = current - st.LastIndexedBlock - s.opts.Confirmations
	}

	rep := report{
		Checks:           make(map[string]check, 3),
		CurrentBlock:     current,
		LastIndexedBlock: st.LastIndexedBlock,
		BlocksBehind:     behind,
		IsSyncing:        st.Syncing,
		TrackedWallets:   st.TrackedWallets,
	}
	if rpcErr != nil {
		rep.Checks["chain_rpc"] = failedCheck(rpcErr)
	} else {
		rep.Checks["chain_rpc"] = okCheck()
	}
	if storeErr != nil {
		rep.Checks["database"] = failedCheck(storeErr)
	} else {
		rep.Checks["database"] = okCheck()
	}
	switch {
	case !st.Running:
		rep.Checks["indexer"] = check{Status: "failed", Error: "not running"}
	case behind > s.opts.MaxBlocksBehind && !st.Syncing:
		rep.Checks["indexer"] = check{Status: "failed",
			Error: fmt.Sprintf("%d blocks behind (max %d)", behind, s.opts.MaxBlocksBehind)}
	default:
		rep.Checks["indexer"] = okCheck()
	}

	rep.Status = "healthy"
	code := http.StatusOK
	for _, c := range rep.Checks {
		if c.Status != "ok" {
			rep.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		s.logger.Debug("Failed to encode health report", "err", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	metrics.WriteJSONOnce(metrics.DefaultRegistry, w)
}
