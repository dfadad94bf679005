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

// Package handlers projects decoded wallet events into the store. There is
// one handler per event kind; the registry dispatches by kind and is driven
// by the scanner in deterministic order, so every handler must tolerate
// being replayed over rows it has already written.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/quaiwallet/indexer/internal/config"
	"github.com/quaiwallet/indexer/internal/events"
	"github.com/quaiwallet/indexer/internal/store"
)

var (
	handledMeter = metrics.NewRegisteredMeter("handlers/handled", nil)
	failedMeter  = metrics.NewRegisteredMeter("handlers/failed", nil)
)

// Store is the slice of the store gateway the handlers write through. It is
// satisfied by *store.Store and faked in tests.
type Store interface {
	UpsertWallet(ctx context.Context, w store.Wallet) error
	UpdateWalletThreshold(ctx context.Context, wallet string, threshold uint64) error
	IncrementOwnerCount(ctx context.Context, wallet string, delta int64) error
	InsertOwner(ctx context.Context, o store.WalletOwner) (bool, error)
	InsertOwners(ctx context.Context, owners []store.WalletOwner) error
	DeactivateOwner(ctx context.Context, wallet, owner string, block uint64, txHash string) (bool, error)

	UpsertTransaction(ctx context.Context, t store.Transaction) error
	MarkTransactionExecuted(ctx context.Context, wallet, txHash string, block uint64, chainTx string) error
	MarkTransactionCancelled(ctx context.Context, wallet, txHash string, block uint64, chainTx string) error
	InsertConfirmation(ctx context.Context, c store.Confirmation) error
	RevokeConfirmation(ctx context.Context, wallet, txHash, owner string, block uint64, chainTx string) error

	UpsertModule(ctx context.Context, m store.Module) error
	DisableModule(ctx context.Context, wallet, module string, block uint64, txHash string) error
	InsertModuleTransaction(ctx context.Context, mt store.ModuleTransaction) error
	InsertDeposit(ctx context.Context, d store.Deposit) error

	UpsertRecoveryConfig(ctx context.Context, rc store.RecoveryConfig) error
	RecoveryConfigFor(ctx context.Context, wallet string) (*store.RecoveryConfig, error)
	DeactivateGuardians(ctx context.Context, wallet string) error
	InsertGuardians(ctx context.Context, guardians []store.RecoveryGuardian) error
	UpsertRecovery(ctx context.Context, r store.Recovery) error
	InsertRecoveryApproval(ctx context.Context, a store.RecoveryApproval) error
	RevokeRecoveryApproval(ctx context.Context, wallet, recoveryHash, guardian string, block uint64, chainTx string) error
	MarkRecoveryExecuted(ctx context.Context, wallet, recoveryHash string, block uint64, chainTx string) error
	MarkRecoveryCancelled(ctx context.Context, wallet, recoveryHash string, block uint64, chainTx string) error

	UpsertDailyLimit(ctx context.Context, st store.DailyLimitState) error
	ResetDailySpend(ctx context.Context, wallet, day string, block uint64, txHash string) error
	UpdateDailySpend(ctx context.Context, wallet, spent string, block uint64, txHash string) error
	DailyLimitFor(ctx context.Context, wallet string) (*store.DailyLimitState, error)
	InsertWhitelistEntry(ctx context.Context, e store.WhitelistEntry) error
	DeactivateWhitelistEntry(ctx context.Context, wallet, target string, block uint64, txHash string) error
}

// ChainReader is the read-only chain surface the handlers need: contract
// state reads pinned to a block, and block timestamps for recovery windows.
// It is satisfied by *chainrpc.Client.
type ChainReader interface {
	Call(ctx context.Context, to string, data []byte, blockNumber uint64) ([]byte, error)
	BlockTimestamp(ctx context.Context, n uint64) (uint64, error)
}

type handlerFunc func(ctx context.Context, ev *events.Event) error

// Registry routes decoded events to their projection.
type Registry struct {
	store  Store
	chain  ChainReader
	cfg    *config.Config
	dec    *events.Decoder
	logger log.Logger

	handlers map[events.Kind]handlerFunc

	// now is stubbed in tests; it feeds the daily limit reset day and the
	// wall clock fallback for recovery execution times.
	now func() time.Time
}

// NewRegistry wires one handler per event kind.
func NewRegistry(st Store, chain ChainReader, cfg *config.Config, logger log.Logger) *Registry {
	r := &Registry{
		store:  st,
		chain:  chain,
		cfg:    cfg,
		dec:    events.NewDecoder(),
		logger: logger,
		now:    time.Now,
	}
	r.handlers = map[events.Kind]handlerFunc{
		events.KindWalletCreated:    r.walletCreated,
		events.KindWalletRegistered: r.walletRegistered,

		events.KindTransactionProposed:  r.transactionProposed,
		events.KindTransactionApproved:  r.transactionApproved,
		events.KindApprovalRevoked:      r.approvalRevoked,
		events.KindTransactionExecuted:  r.transactionExecuted,
		events.KindTransactionCancelled: r.transactionCancelled,
		events.KindOwnerAdded:           r.ownerAdded,
		events.KindOwnerRemoved:         r.ownerRemoved,
		events.KindThresholdChanged:     r.thresholdChanged,
		events.KindModuleEnabled:        r.moduleEnabled,
		events.KindModuleDisabled:       r.moduleDisabled,
		events.KindReceived:             r.received,

		events.KindRecoverySetup:           r.recoverySetup,
		events.KindRecoveryInitiated:       r.recoveryInitiated,
		events.KindRecoveryApproved:        r.recoveryApproved,
		events.KindRecoveryApprovalRevoked: r.recoveryApprovalRevoked,
		events.KindRecoveryExecuted:        r.recoveryExecuted,
		events.KindRecoveryCancelled:       r.recoveryCancelled,

		events.KindDailyLimitSet:                 r.dailyLimitSet,
		events.KindDailyLimitReset:               r.dailyLimitReset,
		events.KindDailyLimitTransactionExecuted: r.dailyLimitExecution,

		events.KindAddressWhitelisted:           r.addressWhitelisted,
		events.KindAddressRemovedFromWhitelist:  r.addressRemovedFromWhitelist,
		events.KindWhitelistTransactionExecuted: r.whitelistExecution,
	}
	return r
}

// Handle applies one decoded event. Errors abort the caller's batch; the
// checkpoint must not advance past an event that failed to project.
func (r *Registry) Handle(ctx context.Context, ev *events.Event) error {
	h, ok := r.handlers[ev.Kind]
	if !ok {
		return fmt.Errorf("no handler registered for %s", ev.Kind)
	}
	if err := h(ctx, ev); err != nil {
		failedMeter.Mark(1)
		r.logger.Error("Event projection failed", "kind", ev.Kind, "wallet", ev.WalletAddress(),
			"block", ev.Block, "tx", ev.TxHash, "err", err)
		return fmt.Errorf("handle %s: %w", ev.Kind, err)
	}
	handledMeter.Mark(1)
	return nil
}

// payload unwraps the typed record carried by an event. A mismatch is a
// decoder bug, surfaced as an error rather than a panic.
func payload[T any](ev *events.Event) (T, error) {
	p, ok := ev.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s payload has type %T", ev.Kind, ev.Payload)
	}
	return p, nil
}

// today renders the handler clock as a UTC calendar day, the granularity the
// daily limit module accounts in.
func (r *Registry) today() string {
	return r.now().UTC().Format("2006-01-02")
}
