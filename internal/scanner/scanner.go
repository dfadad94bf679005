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

// Package scanner drives the indexing pipeline: it polls the chain head,
// fetches factory, wallet and module logs for each confirmed block range,
// decodes them, and dispatches the events in deterministic order. The
// checkpoint only advances once every event of a range has been projected,
// so a crash or store failure replays the range instead of skipping it.
package scanner

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/quaiwallet/indexer/internal/chainrpc"
	"github.com/quaiwallet/indexer/internal/config"
	"github.com/quaiwallet/indexer/internal/events"
)

// maxAddressesPerQuery bounds the address list of one getLogs call. Public
// nodes reject or truncate larger filters, so the tracked wallet set is
// chunked to this size.
const maxAddressesPerQuery = 100

// Log sources, in dispatch order within a block. Factory events create the
// wallets that wallet events mutate and module events reference, so they
// project first; module events come last.
const (
	sourceFactory = iota
	sourceWallet
	sourceModule
)

var (
	rangeMeter   = metrics.NewRegisteredMeter("scanner/ranges", nil)
	logMeter     = metrics.NewRegisteredMeter("scanner/logs", nil)
	eventMeter   = metrics.NewRegisteredMeter("scanner/events", nil)
	skippedMeter = metrics.NewRegisteredMeter("scanner/skipped", nil)
	failureMeter = metrics.NewRegisteredMeter("scanner/failures", nil)

	headGauge       = metrics.NewRegisteredGauge("scanner/head", nil)
	checkpointGauge = metrics.NewRegisteredGauge("scanner/checkpoint", nil)
	behindGauge     = metrics.NewRegisteredGauge("scanner/behind", nil)
	trackedGauge    = metrics.NewRegisteredGauge("scanner/tracked", nil)

	rangeTimer = metrics.NewRegisteredTimer("scanner/rangetime", nil)
)

// Chain is the slice of the RPC client the scanner reads.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q chainrpc.Query) ([]types.Log, error)
}

// Checkpoints is the slice of the store gateway the scanner drives: the
// resume point, the syncing flag, and the wallet set to track.
type Checkpoints interface {
	Checkpoint(ctx context.Context) (uint64, error)
	SetCheckpoint(ctx context.Context, block uint64) error
	SetSyncing(ctx context.Context, syncing bool) error
	AllWalletAddresses(ctx context.Context) ([]string, error)
}

// Sink consumes decoded events. It is satisfied by *handlers.Registry.
type Sink interface {
	Handle(ctx context.Context, ev *events.Event) error
}

// Status is a point-in-time snapshot for the health surface.
type Status struct {
	Running          bool
	CurrentBlock     uint64
	LastIndexedBlock uint64
	Syncing          bool
	TrackedWallets   int
}

// Scanner owns the poll loop and the tracked wallet set.
type Scanner struct {
	chain  Chain
	store  Checkpoints
	sink   Sink
	dec    *events.Decoder
	cfg    *config.Config
	logger log.Logger

	// tracked only grows: wallets are never unregistered, and a stale extra
	// address in a filter is harmless.
	tracked mapset.Set[string]

	running atomic.Bool
	current atomic.Uint64 // latest chain head observed
	last    atomic.Uint64 // last fully projected block
	syncing atomic.Bool
}

// New builds a scanner over the given chain, store and event sink.
func New(chain Chain, store Checkpoints, sink Sink, cfg *config.Config, logger log.Logger) *Scanner {
	return &Scanner{
		chain:   chain,
		store:   store,
		sink:    sink,
		dec:     events.NewDecoder(),
		cfg:     cfg,
		logger:  logger,
		tracked: mapset.NewSet[string](),
	}
}

// Status reports the scanner's progress. It is safe to call concurrently
// with the poll loop.
func (s *Scanner) Status() Status {
	return Status{
		Running:          s.running.Load(),
		CurrentBlock:     s.current.Load(),
		LastIndexedBlock: s.last.Load(),
		Syncing:          s.syncing.Load(),
		TrackedWallets:   s.tracked.Cardinality(),
	}
}

// Run loads the resume state, catches up to the confirmed head and then
// polls until the context is cancelled. Transient failures are logged and
// retried on the next tick; only a failed startup or cancellation ends the
// loop.
func (s *Scanner) Run(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	s.running.Store(true)
	defer s.running.Store(false)
	s.logger.Info("Scanner started", "checkpoint", s.last.Load(),
		"trackedWallets", s.tracked.Cardinality(), "pollInterval", s.cfg.PollInterval)

	if err := s.step(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failureMeter.Mark(1)
		s.logger.Error("Initial catch-up failed, retrying on next tick", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.step(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failureMeter.Mark(1)
				s.logger.Warn("Index step failed, retrying on next tick", "err", err)
			}
		}
	}
}

// Backfill reindexes an explicit block range and returns. It is the engine
// behind the backfill subcommand; the poll loop is never started.
func (s *Scanner) Backfill(ctx context.Context, from, to uint64) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	return s.catchUp(ctx, from, to)
}

// load restores the checkpoint and the tracked wallet set from the store.
func (s *Scanner) load(ctx context.Context) error {
	cp, err := s.store.Checkpoint(ctx)
	if err != nil {
		return err
	}
	s.last.Store(cp)
	checkpointGauge.Update(int64(cp))
	return s.reloadTracked(ctx)
}

// reloadTracked merges every wallet known to the store into the tracked
// set. Another instance may have discovered wallets while we were behind;
// additions are the only possible delta.
func (s *Scanner) reloadTracked(ctx context.Context) error {
	addrs, err := s.store.AllWalletAddresses(ctx)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		s.tracked.Add(addr)
	}
	trackedGauge.Update(int64(s.tracked.Cardinality()))
	return nil
}

// step runs one poll iteration: observe the head, derive the confirmed
// range, and index it. A gap larger than one batch means the scanner fell
// behind; the tracked set is refreshed and the backlog worked off in
// batches with the syncing flag raised.
func (s *Scanner) step(ctx context.Context) error {
	tip, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return err
	}
	s.current.Store(tip)
	headGauge.Update(int64(tip))
	if tip <= s.cfg.Confirmations {
		return nil
	}
	safe := tip - s.cfg.Confirmations

	cp := s.last.Load()
	if safe <= cp {
		behindGauge.Update(0)
		return nil
	}
	behindGauge.Update(int64(safe - cp))
	from := cp + 1
	if s.cfg.StartBlock > from {
		from = s.cfg.StartBlock
	}
	if safe < from {
		return nil
	}

	if safe-cp > s.cfg.BatchSize {
		if err := s.reloadTracked(ctx); err != nil {
			return err
		}
		return s.catchUp(ctx, from, safe)
	}
	return s.indexRange(ctx, from, safe)
}

// catchUp works through [from, to] in checkpointed batches. The syncing
// flag stays raised until the whole backlog has been projected, so the
// health surface reports a deliberate backfill instead of an outage.
func (s *Scanner) catchUp(ctx context.Context, from, to uint64) error {
	s.setSyncing(ctx, true)
	s.logger.Info("Catching up to confirmed head", "from", from, "to", to,
		"batchSize", s.cfg.BatchSize)

	for start := from; start <= to; {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + s.cfg.BatchSize - 1
		if end > to {
			end = to
		}
		if err := s.indexRange(ctx, start, end); err != nil {
			return err
		}
		start = end + 1
	}
	s.setSyncing(ctx, false)
	s.logger.Info("Caught up to confirmed head", "head", to)
	return nil
}

func (s *Scanner) setSyncing(ctx context.Context, syncing bool) {
	s.syncing.Store(syncing)
	if err := s.store.SetSyncing(ctx, syncing); err != nil {
		s.logger.Warn("Failed to persist syncing flag", "syncing", syncing, "err", err)
	}
}

// queued pairs a decoded event with its source priority for ordering.
type queued struct {
	ev       *events.Event
	priority int
}

// indexRange fetches, decodes and dispatches every event in [from, to].
// Newly discovered wallets join the tracked set before any event is
// handled, and the checkpoint moves only after the last event projected.
func (s *Scanner) indexRange(ctx context.Context, from, to uint64) error {
	rangeMeter.Mark(1)
	defer rangeTimer.UpdateSince(time.Now())

	batch, err := s.collect(ctx, from, to)
	if err != nil {
		return err
	}
	sort.Slice(batch, func(i, j int) bool {
		a, b := batch[i], batch[j]
		if a.ev.Block != b.ev.Block {
			return a.ev.Block < b.ev.Block
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.ev.LogIndex < b.ev.LogIndex
	})

	// Track new wallets first: if dispatch fails partway, the retry must
	// already include their logs.
	for _, q := range batch {
		switch p := q.ev.Payload.(type) {
		case events.WalletCreated:
			s.tracked.Add(p.Wallet)
		case events.WalletRegistered:
			s.tracked.Add(p.Wallet)
		}
	}
	trackedGauge.Update(int64(s.tracked.Cardinality()))

	for _, q := range batch {
		if err := s.sink.Handle(ctx, q.ev); err != nil {
			return err
		}
	}
	eventMeter.Mark(int64(len(batch)))

	if err := s.store.SetCheckpoint(ctx, to); err != nil {
		return err
	}
	s.last.Store(to)
	checkpointGauge.Update(int64(to))
	if len(batch) > 0 {
		s.logger.Info("Indexed block range", "from", from, "to", to, "events", len(batch))
	} else {
		s.logger.Debug("Indexed empty block range", "from", from, "to", to)
	}
	return nil
}

// collect gathers the decoded events of all three log sources for a range.
func (s *Scanner) collect(ctx context.Context, from, to uint64) ([]queued, error) {
	var batch []queued

	fetch := func(addrs []string, topics []common.Hash, priority int) error {
		logs, err := s.chain.FilterLogs(ctx, chainrpc.Query{
			Addresses: addrs,
			Topics:    [][]common.Hash{topics},
			FromBlock: from,
			ToBlock:   to,
		})
		if err != nil {
			return err
		}
		logMeter.Mark(int64(len(logs)))
		for _, l := range logs {
			ev, err := s.dec.Decode(l)
			if err != nil {
				// A malformed log never halts the batch; it is skipped and
				// the rest of the range still projects.
				skippedMeter.Mark(1)
				s.logger.Warn("Skipping undecodable log", "address", l.Address,
					"block", l.BlockNumber, "index", l.Index, "err", err)
				continue
			}
			if ev == nil {
				continue
			}
			batch = append(batch, queued{ev: ev, priority: priority})
		}
		return nil
	}

	if err := fetch([]string{s.cfg.FactoryAddress}, events.FactoryTopics(), sourceFactory); err != nil {
		return nil, err
	}

	wallets := s.tracked.ToSlice()
	sort.Strings(wallets)
	for start := 0; start < len(wallets); start += maxAddressesPerQuery {
		end := start + maxAddressesPerQuery
		if end > len(wallets) {
			end = len(wallets)
		}
		if err := fetch(wallets[start:end], events.WalletTopics(), sourceWallet); err != nil {
			return nil, err
		}
	}

	if modules := s.cfg.ModuleAddresses(); len(modules) > 0 {
		if err := fetch(modules, events.ModuleTopics(), sourceModule); err != nil {
			return nil, err
		}
	}
	return batch, nil
}
