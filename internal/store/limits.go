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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertDailyLimit projects a DailyLimitSet event: the limit is replaced
// and the day's spend restarts from zero.
func (s *Store) UpsertDailyLimit(ctx context.Context, st DailyLimitState) error {
	wallet, err := normAddress("wallet_address", st.WalletAddress)
	if err != nil {
		return err
	}
	tx, err := normHash("updated_at_tx", st.UpdatedAtTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "upsert daily limit", `
		INSERT INTO daily_limit_states (wallet_address, daily_limit, spent_today, last_reset_day, updated_at_block, updated_at_tx)
		VALUES ($1, $2, $3, $4::date, $5, $6)
		ON CONFLICT (wallet_address) DO UPDATE
		   SET daily_limit = EXCLUDED.daily_limit,
		       spent_today = EXCLUDED.spent_today,
		       last_reset_day = EXCLUDED.last_reset_day,
		       updated_at_block = EXCLUDED.updated_at_block,
		       updated_at_tx = EXCLUDED.updated_at_tx`,
		wallet, st.DailyLimit, st.SpentToday, st.LastResetDay, st.UpdatedAtBlock, tx)
}

// ResetDailySpend zeroes the day's spend, keeping the configured limit.
func (s *Store) ResetDailySpend(ctx context.Context, wallet, day string, block uint64, txHash string) error {
	addr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	tx, err := normHash("updated_at_tx", txHash)
	if err != nil {
		return err
	}
	return s.exec(ctx, "reset daily spend", `
		UPDATE daily_limit_states
		   SET spent_today = '0', last_reset_day = $2::date, updated_at_block = $3, updated_at_tx = $4
		 WHERE wallet_address = $1`,
		addr, day, block, tx)
}

// UpdateDailySpend stores the recomputed spend for the wallet's current day.
func (s *Store) UpdateDailySpend(ctx context.Context, wallet, spent string, block uint64, txHash string) error {
	addr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	tx, err := normHash("updated_at_tx", txHash)
	if err != nil {
		return err
	}
	return s.exec(ctx, "update daily spend", `
		UPDATE daily_limit_states
		   SET spent_today = $2, updated_at_block = $3, updated_at_tx = $4
		 WHERE wallet_address = $1`,
		addr, spent, block, tx)
}

// DailyLimitFor returns the wallet's daily limit state, or nil when the
// module has never been configured for it.
func (s *Store) DailyLimitFor(ctx context.Context, wallet string) (*DailyLimitState, error) {
	addr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return nil, err
	}
	var st DailyLimitState
	err = s.pool.QueryRow(ctx, `
		SELECT wallet_address, daily_limit, spent_today, last_reset_day::text
		  FROM daily_limit_states WHERE wallet_address = $1`, addr).
		Scan(&st.WalletAddress, &st.DailyLimit, &st.SpentToday, &st.LastResetDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load daily limit: %w", err)
	}
	return &st, nil
}

// InsertWhitelistEntry records one whitelisting. Duplicates are swallowed.
func (s *Store) InsertWhitelistEntry(ctx context.Context, e WhitelistEntry) error {
	wallet, err := normAddress("wallet_address", e.WalletAddress)
	if err != nil {
		return err
	}
	target, err := normAddress("whitelisted_address", e.WhitelistedAddress)
	if err != nil {
		return err
	}
	tx, err := normHash("added_at_tx", e.AddedAtTx)
	if err != nil {
		return err
	}
	_, err = s.execIdempotent(ctx, "insert whitelist entry", `
		INSERT INTO whitelist_entries (wallet_address, whitelisted_address, limit_amount, added_at_block, added_at_tx)
		VALUES ($1, $2, $3, $4, $5)`,
		wallet, target, e.Limit, e.AddedAtBlock, tx)
	return err
}

// DeactivateWhitelistEntry closes the active entry for (wallet, target).
func (s *Store) DeactivateWhitelistEntry(ctx context.Context, wallet, target string, block uint64, txHash string) error {
	walletAddr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	targetAddr, err := normAddress("whitelisted_address", target)
	if err != nil {
		return err
	}
	tx, err := normHash("removed_at_tx", txHash)
	if err != nil {
		return err
	}
	return s.exec(ctx, "deactivate whitelist entry", `
		UPDATE whitelist_entries
		   SET is_active = FALSE, removed_at_block = $3, removed_at_tx = $4
		 WHERE wallet_address = $1 AND whitelisted_address = $2 AND is_active`,
		walletAddr, targetAddr, block, tx)
}
