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

package handlers

import (
	"context"

	"github.com/quaiwallet/indexer/internal/events"
	"github.com/quaiwallet/indexer/internal/store"
)

// recoverySetup replaces a wallet's guardian configuration wholesale: the
// config row is upserted, every active guardian is closed, and the new set
// is inserted.
func (r *Registry) recoverySetup(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.RecoverySetup](ev)
	if err != nil {
		return err
	}
	err = r.store.UpsertRecoveryConfig(ctx, store.RecoveryConfig{
		WalletAddress:  p.Wallet,
		Threshold:      p.Threshold.Uint64(),
		RecoveryPeriod: p.RecoveryPeriod.Uint64(),
		SetupAtBlock:   ev.Block,
		SetupAtTx:      ev.TxHash,
	})
	if err != nil {
		return err
	}
	if err := r.store.DeactivateGuardians(ctx, p.Wallet); err != nil {
		return err
	}
	guardians := make([]store.RecoveryGuardian, len(p.Guardians))
	for i, g := range p.Guardians {
		guardians[i] = store.RecoveryGuardian{
			WalletAddress:   p.Wallet,
			GuardianAddress: g,
			AddedAtBlock:    ev.Block,
			AddedAtTx:       ev.TxHash,
		}
	}
	return r.store.InsertGuardians(ctx, guardians)
}

// recoveryInitiated opens a pending recovery. Its execution time is the
// timestamp of the initiating block plus the wallet's configured recovery
// period; if the block timestamp cannot be fetched the wall clock stands in,
// loudly, because a silently absent deadline would hide an imminent owner
// rotation. The approval count stays at zero until guardians approve.
func (r *Registry) recoveryInitiated(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.RecoveryInitiated](ev)
	if err != nil {
		return err
	}
	cfg, err := r.store.RecoveryConfigFor(ctx, p.Wallet)
	if err != nil {
		return err
	}
	var period, required uint64
	if cfg != nil {
		period = cfg.RecoveryPeriod
		required = cfg.Threshold
	} else {
		r.logger.Warn("Recovery initiated without an indexed setup",
			"wallet", p.Wallet, "recoveryHash", p.RecoveryHash)
	}
	var execTime uint64
	ts, err := r.chain.BlockTimestamp(ctx, ev.Block)
	if err != nil {
		execTime = uint64(r.now().Unix()) + period
		r.logger.Warn("Using wall clock for recovery execution time",
			"wallet", p.Wallet, "recoveryHash", p.RecoveryHash, "block", ev.Block, "err", err)
	} else {
		execTime = ts + period
	}
	return r.store.UpsertRecovery(ctx, store.Recovery{
		WalletAddress:     p.Wallet,
		RecoveryHash:      p.RecoveryHash,
		NewOwners:         p.NewOwners,
		NewThreshold:      p.NewThreshold.Uint64(),
		InitiatedBy:       p.Initiator,
		InitiatedAtBlock:  ev.Block,
		InitiatedAtTx:     ev.TxHash,
		RequiredThreshold: required,
		ExecutionTime:     execTime,
	})
}

func (r *Registry) recoveryApproved(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.RecoveryApproved](ev)
	if err != nil {
		return err
	}
	return r.store.InsertRecoveryApproval(ctx, store.RecoveryApproval{
		WalletAddress:   p.Wallet,
		RecoveryHash:    p.RecoveryHash,
		GuardianAddress: p.Guardian,
		ApprovedAtBlock: ev.Block,
		ApprovedAtTx:    ev.TxHash,
	})
}

func (r *Registry) recoveryApprovalRevoked(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.RecoveryApprovalRevoked](ev)
	if err != nil {
		return err
	}
	return r.store.RevokeRecoveryApproval(ctx, p.Wallet, p.RecoveryHash, p.Guardian, ev.Block, ev.TxHash)
}

func (r *Registry) recoveryExecuted(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.RecoveryExecuted](ev)
	if err != nil {
		return err
	}
	return r.store.MarkRecoveryExecuted(ctx, p.Wallet, p.RecoveryHash, ev.Block, ev.TxHash)
}

func (r *Registry) recoveryCancelled(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.RecoveryCancelled](ev)
	if err != nil {
		return err
	}
	return r.store.MarkRecoveryCancelled(ctx, p.Wallet, p.RecoveryHash, ev.Block, ev.TxHash)
}
