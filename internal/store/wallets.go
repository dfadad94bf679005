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

import (
	"context"
	"fmt"
)

// walletPageSize bounds one page of the full wallet scan. The backing
// store caps result sets at the same size, so anything larger would be
// silently truncated instead of paged.
const walletPageSize = 1000

// UpsertWallet creates or refreshes the wallet row keyed by address.
func (s *Store) UpsertWallet(ctx context.Context, w Wallet) error {
	addr, err := normAddress("wallet_address", w.Address)
	if err != nil {
		return err
	}
	tx, err := normHash("created_at_tx", w.CreatedAtTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "upsert wallet", `
		INSERT INTO wallets (address, threshold, owner_count, created_at_block, created_at_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE
		   SET threshold = EXCLUDED.threshold,
		       owner_count = EXCLUDED.owner_count,
		       updated_at = now()`,
		addr, w.Threshold, w.OwnerCount, w.CreatedAtBlock, tx)
}

// UpdateWalletThreshold applies a ThresholdChanged projection.
func (s *Store) UpdateWalletThreshold(ctx context.Context, wallet string, threshold uint64) error {
	addr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	return s.exec(ctx, "update wallet threshold", `
		UPDATE wallets SET threshold = $2, updated_at = now() WHERE address = $1`,
		addr, threshold)
}

// IncrementOwnerCount adjusts the wallet's owner count atomically on the
// server, so concurrent-looking replays cannot interleave a read-modify-
// write.
func (s *Store) IncrementOwnerCount(ctx context.Context, wallet string, delta int64) error {
	addr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	return s.exec(ctx, "increment owner count",
		`SELECT increment_owner_count($1, $2)`, addr, delta)
}

// AllWalletAddresses streams every known wallet address, paging by id so a
// projection larger than the store's query cap is still read completely.
func (s *Store) AllWalletAddresses(ctx context.Context) ([]string, error) {
	var (
		out    []string
		lastID int64
	)
	for {
		rows, err := s.pool.Query(ctx, `
			SELECT id, address FROM wallets
			WHERE id > $1 ORDER BY id LIMIT $2`,
			lastID, walletPageSize)
		if err != nil {
			return nil, fmt.Errorf("list wallets: %w", err)
		}
		page := 0
		for rows.Next() {
			var addr string
			if err := rows.Scan(&lastID, &addr); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan wallet: %w", err)
			}
			out = append(out, addr)
			page++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("list wallets: %w", err)
		}
		if page < walletPageSize {
			return out, nil
		}
	}
}

// InsertOwner records one owner ledger row. Duplicates are swallowed; the
// returned flag is true only when the row was actually written, which lets
// callers keep the wallet's owner count in step under replays.
func (s *Store) InsertOwner(ctx context.Context, o WalletOwner) (bool, error) {
	wallet, err := normAddress("wallet_address", o.WalletAddress)
	if err != nil {
		return false, err
	}
	owner, err := normAddress("owner_address", o.OwnerAddress)
	if err != nil {
		return false, err
	}
	tx, err := normHash("added_at_tx", o.AddedAtTx)
	if err != nil {
		return false, err
	}
	return s.execIdempotent(ctx, "insert owner", `
		INSERT INTO wallet_owners (wallet_address, owner_address, added_at_block, added_at_tx)
		VALUES ($1, $2, $3, $4)`,
		wallet, owner, o.AddedAtBlock, tx)
}

// InsertOwners records the initial owner set of a wallet.
func (s *Store) InsertOwners(ctx context.Context, owners []WalletOwner) error {
	for _, o := range owners {
		if _, err := s.InsertOwner(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateOwner closes the active ledger row for (wallet, owner). The
// returned flag is true when an active row existed; a replay finds the row
// already closed and reports false.
func (s *Store) DeactivateOwner(ctx context.Context, wallet, owner string, block uint64, txHash string) (bool, error) {
	walletAddr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return false, err
	}
	ownerAddr, err := normAddress("owner_address", owner)
	if err != nil {
		return false, err
	}
	tx, err := normHash("removed_at_tx", txHash)
	if err != nil {
		return false, err
	}
	rows, err := s.execRows(ctx, "deactivate owner", `
		UPDATE wallet_owners
		   SET is_active = FALSE, removed_at_block = $3, removed_at_tx = $4
		 WHERE wallet_address = $1 AND owner_address = $2 AND is_active`,
		walletAddr, ownerAddr, block, tx)
	return rows > 0, err
}
