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
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quaiwallet/indexer/internal/events"
	"github.com/quaiwallet/indexer/internal/store"
)

// Selectors for the wallet contract views read back on registration.
var (
	getOwnersSelector = crypto.Keccak256([]byte("getOwners()"))[:4]
	thresholdSelector = crypto.Keccak256([]byte("threshold()"))[:4]
)

func (r *Registry) walletCreated(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.WalletCreated](ev)
	if err != nil {
		return err
	}
	err = r.store.UpsertWallet(ctx, store.Wallet{
		Address:        p.Wallet,
		Threshold:      p.Threshold.Uint64(),
		OwnerCount:     uint64(len(p.Owners)),
		CreatedAtBlock: ev.Block,
		CreatedAtTx:    ev.TxHash,
	})
	if err != nil {
		return err
	}
	return r.store.InsertOwners(ctx, ownerRows(p.Wallet, p.Owners, ev))
}

// walletRegistered handles late discovery of a wallet the factory did not
// deploy itself. The event names no owners, so both the owner set and the
// threshold are read from the wallet contract at the event's block; a failed
// or implausible read aborts the batch rather than recording a wallet with
// made-up state.
func (r *Registry) walletRegistered(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.WalletRegistered](ev)
	if err != nil {
		return err
	}
	owners, threshold, err := r.readWalletState(ctx, p.Wallet, ev.Block)
	if err != nil {
		return fmt.Errorf("read state of wallet %s: %w", p.Wallet, err)
	}
	err = r.store.UpsertWallet(ctx, store.Wallet{
		Address:        p.Wallet,
		Threshold:      threshold,
		OwnerCount:     uint64(len(owners)),
		CreatedAtBlock: ev.Block,
		CreatedAtTx:    ev.TxHash,
	})
	if err != nil {
		return err
	}
	return r.store.InsertOwners(ctx, ownerRows(p.Wallet, owners, ev))
}

func (r *Registry) readWalletState(ctx context.Context, wallet string, block uint64) ([]string, uint64, error) {
	ret, err := r.chain.Call(ctx, wallet, getOwnersSelector, block)
	if err != nil {
		return nil, 0, fmt.Errorf("getOwners: %w", err)
	}
	owners, err := events.DecodeAddressArray(ret)
	if err != nil {
		return nil, 0, fmt.Errorf("getOwners: %w", err)
	}
	ret, err = r.chain.Call(ctx, wallet, thresholdSelector, block)
	if err != nil {
		return nil, 0, fmt.Errorf("threshold: %w", err)
	}
	threshold, err := events.DecodeUint256(ret)
	if err != nil {
		return nil, 0, fmt.Errorf("threshold: %w", err)
	}
	return owners, threshold.Uint64(), nil
}

func ownerRows(wallet string, owners []string, ev *events.Event) []store.WalletOwner {
	rows := make([]store.WalletOwner, len(owners))
	for i, o := range owners {
		rows[i] = store.WalletOwner{
			WalletAddress: wallet,
			OwnerAddress:  o,
			AddedAtBlock:  ev.Block,
			AddedAtTx:     ev.TxHash,
		}
	}
	return rows
}

// ownerAdded appends an owner ledger row and bumps the wallet's owner count.
// The count moves only when the insert actually wrote, so a replayed event
// cannot drift it.
func (r *Registry) ownerAdded(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.OwnerAdded](ev)
	if err != nil {
		return err
	}
	inserted, err := r.store.InsertOwner(ctx, store.WalletOwner{
		WalletAddress: ev.Emitter,
		OwnerAddress:  p.Owner,
		AddedAtBlock:  ev.Block,
		AddedAtTx:     ev.TxHash,
	})
	if err != nil || !inserted {
		return err
	}
	return r.store.IncrementOwnerCount(ctx, ev.Emitter, 1)
}

func (r *Registry) ownerRemoved(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.OwnerRemoved](ev)
	if err != nil {
		return err
	}
	removed, err := r.store.DeactivateOwner(ctx, ev.Emitter, p.Owner, ev.Block, ev.TxHash)
	if err != nil || !removed {
		return err
	}
	return r.store.IncrementOwnerCount(ctx, ev.Emitter, -1)
}

func (r *Registry) thresholdChanged(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.ThresholdChanged](ev)
	if err != nil {
		return err
	}
	return r.store.UpdateWalletThreshold(ctx, ev.Emitter, p.Threshold.Uint64())
}

func (r *Registry) moduleEnabled(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.ModuleEnabled](ev)
	if err != nil {
		return err
	}
	return r.store.UpsertModule(ctx, store.Module{
		WalletAddress:  ev.Emitter,
		ModuleAddress:  p.Module,
		EnabledAtBlock: ev.Block,
		EnabledAtTx:    ev.TxHash,
	})
}

func (r *Registry) moduleDisabled(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.ModuleDisabled](ev)
	if err != nil {
		return err
	}
	return r.store.DisableModule(ctx, ev.Emitter, p.Module, ev.Block, ev.TxHash)
}

func (r *Registry) received(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.Received](ev)
	if err != nil {
		return err
	}
	return r.store.InsertDeposit(ctx, store.Deposit{
		WalletAddress:    ev.Emitter,
		SenderAddress:    p.Sender,
		Amount:           p.Value.String(),
		DepositedAtBlock: ev.Block,
		DepositedAtTx:    ev.TxHash,
	})
}
