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

// UpsertModule enables a module for a wallet. Re-enabling updates the
// existing (wallet, module) row and clears its disabled marks.
func (s *Store) UpsertModule(ctx context.Context, m Module) error {
	wallet, err := normAddress("wallet_address", m.WalletAddress)
	if err != nil {
		return err
	}
	module, err := normAddress("module_address", m.ModuleAddress)
	if err != nil {
		return err
	}
	tx, err := normHash("enabled_at_tx", m.EnabledAtTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "upsert module", `
		INSERT INTO wallet_modules (wallet_address, module_address, enabled_at_block, enabled_at_tx, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (wallet_address, module_address) DO UPDATE
		   SET is_active = TRUE,
		       enabled_at_block = EXCLUDED.enabled_at_block,
		       enabled_at_tx = EXCLUDED.enabled_at_tx,
		       disabled_at_block = NULL,
		       disabled_at_tx = NULL`,
		wallet, module, m.EnabledAtBlock, tx)
}

// DisableModule marks a module inactive, keeping the row for history.
func (s *Store) DisableModule(ctx context.Context, wallet, module string, block uint64, txHash string) error {
	walletAddr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	moduleAddr, err := normAddress("module_address", module)
	if err != nil {
		return err
	}
	tx, err := normHash("disabled_at_tx", txHash)
	if err != nil {
		return err
	}
	return s.exec(ctx, "disable module", `
		UPDATE wallet_modules
		   SET is_active = FALSE, disabled_at_block = $3, disabled_at_tx = $4
		 WHERE wallet_address = $1 AND module_address = $2`,
		walletAddr, moduleAddr, block, tx)
}

// InsertModuleTransaction appends one module spend to the history. The
// (wallet, chain tx, log index) key makes replays idempotent.
func (s *Store) InsertModuleTransaction(ctx context.Context, mt ModuleTransaction) error {
	wallet, err := normAddress("wallet_address", mt.WalletAddress)
	if err != nil {
		return err
	}
	module, err := normAddress("module_address", mt.ModuleAddress)
	if err != nil {
		return err
	}
	to, err := normAddress("to_address", mt.To)
	if err != nil {
		return err
	}
	tx, err := normHash("executed_at_tx", mt.ExecutedAtTx)
	if err != nil {
		return err
	}
	var remaining interface{}
	if mt.RemainingLimit != "" {
		remaining = mt.RemainingLimit
	}
	_, err = s.execIdempotent(ctx, "insert module transaction", `
		INSERT INTO module_transactions (
			wallet_address, module_type, module_address, to_address, value,
			remaining_limit, executed_at_block, executed_at_tx, log_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wallet, mt.ModuleType, module, to, mt.Value, remaining,
		mt.ExecutedAtBlock, tx, mt.LogIndex)
	return err
}
