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

// InsertDeposit appends one deposit row, idempotent on the containing chain
// transaction.
func (s *Store) InsertDeposit(ctx context.Context, d Deposit) error {
	wallet, err := normAddress("wallet_address", d.WalletAddress)
	if err != nil {
		return err
	}
	sender, err := normAddress("sender_address", d.SenderAddress)
	if err != nil {
		return err
	}
	tx, err := normHash("deposited_at_tx", d.DepositedAtTx)
	if err != nil {
		return err
	}
	_, err = s.execIdempotent(ctx, "insert deposit", `
		INSERT INTO deposits (wallet_address, sender_address, amount, deposited_at_block, deposited_at_tx)
		VALUES ($1, $2, $3, $4, $5)`,
		wallet, sender, d.Amount, d.DepositedAtBlock, tx)
	return err
}
