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

package store

import "context"

// UpsertTransaction projects a TransactionProposed event. Re-proposal of
// the same content hash resets the row to pending; the trigger-maintained
// confirmation count is never written here.
func (s *Store) UpsertTransaction(ctx context.Context, t Transaction) error {
	wallet, err := normAddress("wallet_address", t.WalletAddress)
	if err != nil {
		return err
	}
	hash, err := normHash("tx_hash", t.TxHash)
	if err != nil {
		return err
	}
	to, err := normAddress("to_address", t.To)
	if err != nil {
		return err
	}
	submitter, err := normAddress("submitted_by", t.SubmittedBy)
	if err != nil {
		return err
	}
	chainTx, err := normHash("submitted_at_tx", t.SubmittedAtTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "upsert transaction", `
		INSERT INTO transactions (
			wallet_address, tx_hash, to_address, value, data,
			transaction_type, decoded_params, status,
			submitted_by, submitted_at_block, submitted_at_tx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10)
		ON CONFLICT (wallet_address, tx_hash) DO UPDATE
		   SET to_address = EXCLUDED.to_address,
		       value = EXCLUDED.value,
		       data = EXCLUDED.data,
		       transaction_type = EXCLUDED.transaction_type,
		       decoded_params = EXCLUDED.decoded_params,
		       status = 'pending',
		       submitted_by = EXCLUDED.submitted_by,
		       submitted_at_block = EXCLUDED.submitted_at_block,
		       submitted_at_tx = EXCLUDED.submitted_at_tx`,
		wallet, hash, to, t.Value, t.Data, t.TransactionType, t.DecodedParams,
		submitter, t.SubmittedAtBlock, chainTx)
}

// MarkTransactionExecuted moves a transaction to its executed terminal
// state.
func (s *Store) MarkTransactionExecuted(ctx context.Context, wallet, txHash string, block uint64, chainTx string) error {
	return s.setTransactionTerminal(ctx, "mark transaction executed", `
		UPDATE transactions
		   SET status = 'executed', executed_at_block = $3, executed_at_tx = $4
		 WHERE wallet_address = $1 AND tx_hash = $2`,
		wallet, txHash, block, chainTx)
}

// MarkTransactionCancelled moves a transaction to its cancelled terminal
// state.
func (s *Store) MarkTransactionCancelled(ctx context.Context, wallet, txHash string, block uint64, chainTx string) error {
	return s.setTransactionTerminal(ctx, "mark transaction cancelled", `
		UPDATE transactions
		   SET status = 'cancelled', cancelled_at_block = $3, cancelled_at_tx = $4
		 WHERE wallet_address = $1 AND tx_hash = $2`,
		wallet, txHash, block, chainTx)
}

func (s *Store) setTransactionTerminal(ctx context.Context, op, sql, wallet, txHash string, block uint64, chainTx string) error {
	walletAddr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	hash, err := normHash("tx_hash", txHash)
	if err != nil {
		return err
	}
	chain, err := normHash("chain_tx", chainTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, op, sql, walletAddr, hash, block, chain)
}

// InsertConfirmation records one approval ledger row. Duplicates are
// swallowed; the count on the transaction row is maintained by a trigger.
func (s *Store) InsertConfirmation(ctx context.Context, c Confirmation) error {
	wallet, err := normAddress("wallet_address", c.WalletAddress)
	if err != nil {
		return err
	}
	hash, err := normHash("tx_hash", c.TxHash)
	if err != nil {
		return err
	}
	owner, err := normAddress("owner_address", c.OwnerAddress)
	if err != nil {
		return err
	}
	chainTx, err := normHash("confirmed_at_tx", c.ConfirmedAtTx)
	if err != nil {
		return err
	}
	_, err = s.execIdempotent(ctx, "insert confirmation", `
		INSERT INTO confirmations (wallet_address, tx_hash, owner_address, confirmed_at_block, confirmed_at_tx)
		VALUES ($1, $2, $3, $4, $5)`,
		wallet, hash, owner, c.ConfirmedAtBlock, chainTx)
	return err
}

// RevokeConfirmation closes the active approval of owner for one proposal.
func (s *Store) RevokeConfirmation(ctx context.Context, wallet, txHash, owner string, block uint64, chainTx string) error {
	walletAddr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	hash, err := normHash("tx_hash", txHash)
	if err != nil {
		return err
	}
	ownerAddr, err := normAddress("owner_address", owner)
	if err != nil {
		return err
	}
	chain, err := normHash("revoked_at_tx", chainTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "revoke confirmation", `
		UPDATE confirmations
		   SET is_active = FALSE, revoked_at_block = $4, revoked_at_tx = $5
		 WHERE wallet_address = $1 AND tx_hash = $2 AND owner_address = $3 AND is_active`,
		walletAddr, hash, ownerAddr, block, chain)
}
