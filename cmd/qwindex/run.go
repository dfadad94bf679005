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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/quaiwallet/indexer/internal/chainrpc"
	"github.com/quaiwallet/indexer/internal/config"
	"github.com/quaiwallet/indexer/internal/handlers"
	"github.com/quaiwallet/indexer/internal/health"
	"github.com/quaiwallet/indexer/internal/scanner"
	"github.com/quaiwallet/indexer/internal/store"
)

// shutdownTimeout bounds the ordered teardown; past it the process exits
// hard so a wedged dependency cannot keep a dead daemon alive.
const shutdownTimeout = 10 * time.Second

var runCommand = &cli.Command{
	Name:   "run",
	Usage:  "follow the chain head and index continuously",
	Flags:  configFlags(),
	Action: runIndexer,
	Description: `Starts the indexing daemon: catches up from the stored
checkpoint to the confirmed head, then polls for new blocks. SIGINT or
SIGTERM triggers an ordered shutdown.`,
}

var backfillCommand = &cli.Command{
	Name:   "backfill",
	Usage:  "reindex an explicit block range and exit",
	Flags:  append(configFlags(), backfillFromFlag, backfillToFlag),
	Action: runBackfill,
	Description: `Runs the indexing pipeline once over [--from, --to] in
batch-size windows and exits. Projections are idempotent, so overlapping
an already indexed range is safe.`,
}

// pipeline bundles the store, the RPC client and the scanner built on them.
type pipeline struct {
	store   *store.Store
	client  *chainrpc.Client
	scanner *scanner.Scanner
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger log.Logger) (*pipeline, error) {
	st, err := store.Open(ctx, store.Options{
		URL:        cfg.StoreURL,
		ServiceKey: cfg.StoreServiceKey,
		Schema:     cfg.StoreSchema,
	}, logger)
	if err != nil {
		return nil, err
	}
	client, err := chainrpc.Dial(ctx, cfg.RPCURL, cfg.WSURL, chainrpc.Options{
		RateLimit:          cfg.RateLimitMax,
		RateWindow:         cfg.RateLimitWindow,
		TimestampCacheSize: cfg.TimestampCacheSize,
	}, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	reg := handlers.NewRegistry(st, client, cfg, logger)
	return &pipeline{
		store:   st,
		client:  client,
		scanner: scanner.New(client, st, reg, cfg, logger),
	}, nil
}

func (p *pipeline) close() {
	p.store.Close()
	p.client.Close()
}

func runIndexer(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	logger.Info("Starting qwindex", "version", version, "rpc", cfg.RPCURL)
	logger.Info("Watching contracts", "factory", cfg.FactoryAddress,
		"walletImpl", cfg.WalletImplAddress, "modules", len(cfg.ModuleAddrs))

	rootCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := buildPipeline(rootCtx, cfg, logger)
	if err != nil {
		return err
	}

	var hs *health.Server
	if cfg.HealthEnabled {
		hs = health.New(pipe.client, pipe.store, pipe.scanner, health.Options{
			Port:            cfg.HealthPort,
			Confirmations:   cfg.Confirmations,
			MaxBlocksBehind: cfg.MaxBlocksBehind,
		}, logger)
		if err := hs.Start(); err != nil {
			pipe.close()
			return err
		}
	}

	scanErr := make(chan error, 1)
	go func() { scanErr <- pipe.scanner.Run(rootCtx) }()

	var runErr error
	select {
	case <-rootCtx.Done():
		logger.Info("Shutdown signal received")
		stop() // a second signal kills the process outright
	case runErr = <-scanErr:
		scanErr = nil
	}

	// Ordered teardown: scanner first, then the probe surface, then the
	// store and the RPC transport.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if scanErr != nil {
			if err := <-scanErr; err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Scanner stopped with error", "err", err)
			}
		}
		if hs != nil {
			hs.Stop()
		}
		pipe.close()
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Error("Shutdown deadline exceeded, exiting hard")
		os.Exit(1)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("qwindex stopped")
	return nil
}

func runBackfill(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	from, to := ctx.Uint64(backfillFromFlag.Name), ctx.Uint64(backfillToFlag.Name)
	if from > to {
		return fmt.Errorf("backfill range is inverted: from %d > to %d", from, to)
	}

	rootCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := buildPipeline(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer pipe.close()

	logger.Info("Backfill started", "from", from, "to", to, "batchSize", cfg.BatchSize)
	start := time.Now()
	if err := pipe.scanner.Backfill(rootCtx, from, to); err != nil {
		return fmt.Errorf("backfill [%d, %d]: %w", from, to, err)
	}
	logger.Info("Backfill complete", "from", from, "to", to, "elapsed", time.Since(start))
	return nil
}
