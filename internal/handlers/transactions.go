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
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/quaiwallet/indexer/internal/events"
	"github.com/quaiwallet/indexer/internal/store"
)

// transactionProposed records a pending multisig proposal together with a
// classification of its calldata. Whether the target is one of the
// configured module contracts decides how an unrecognized selector is
// classified.
func (r *Registry) transactionProposed(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.TransactionProposed](ev)
	if err != nil {
		return err
	}
	_, targetIsModule := r.cfg.ModuleAt(p.To)
	call := r.dec.DecodeCalldata(p.Data, targetIsModule)
	params, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encode decoded params: %w", err)
	}
	return r.store.UpsertTransaction(ctx, store.Transaction{
		WalletAddress:    ev.Emitter,
		TxHash:           p.TxHash,
		To:               p.To,
		Value:            p.Value.String(),
		Data:             hexutil.Encode(p.Data),
		TransactionType:  string(call.Type),
		DecodedParams:    params,
		SubmittedBy:      p.Proposer,
		SubmittedAtBlock: ev.Block,
		SubmittedAtTx:    ev.TxHash,
	})
}

func (r *Registry) transactionApproved(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.TransactionApproved](ev)
	if err != nil {
		return err
	}
	return r.store.InsertConfirmation(ctx, store.Confirmation{
		WalletAddress:    ev.Emitter,
		TxHash:           p.TxHash,
		OwnerAddress:     p.Owner,
		ConfirmedAtBlock: ev.Block,
		ConfirmedAtTx:    ev.TxHash,
	})
}

func (r *Registry) approvalRevoked(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.ApprovalRevoked](ev)
	if err != nil {
		return err
	}
	return r.store.RevokeConfirmation(ctx, ev.Emitter, p.TxHash, p.Owner, ev.Block, ev.TxHash)
}

func (r *Registry) transactionExecuted(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.TransactionExecuted](ev)
	if err != nil {
		return err
	}
	return r.store.MarkTransactionExecuted(ctx, ev.Emitter, p.TxHash, ev.Block, ev.TxHash)
}

func (r *Registry) transactionCancelled(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.TransactionCancelled](ev)
	if err != nil {
		return err
	}
	return r.store.MarkTransactionCancelled(ctx, ev.Emitter, p.TxHash, ev.Block, ev.TxHash)
}
