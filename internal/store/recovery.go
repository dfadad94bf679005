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

// UpsertRecoveryConfig replaces a wallet's guardian configuration.
func (s *Store) UpsertRecoveryConfig(ctx context.Context, rc RecoveryConfig) error {
	wallet, err := normAddress("wallet_address", rc.WalletAddress)
	if err != nil {
		return err
	}
	tx, err := normHash("setup_at_tx", rc.SetupAtTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "upsert recovery config", `
		INSERT INTO recovery_configs (wallet_address, threshold, recovery_period, setup_at_block, setup_at_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_address) DO UPDATE
		   SET threshold = EXCLUDED.threshold,
		       recovery_period = EXCLUDED.recovery_period,
		       setup_at_block = EXCLUDED.setup_at_block,
		       setup_at_tx = EXCLUDED.setup_at_tx`,
		wallet, rc.Threshold, rc.RecoveryPeriod, rc.SetupAtBlock, tx)
}

// RecoveryConfigFor returns the wallet's guardian configuration, or nil
// when none has been indexed.
func (s *Store) RecoveryConfigFor(ctx context.Context, wallet string) (*RecoveryConfig, error) {
	addr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return nil, err
	}
	var rc RecoveryConfig
	err = s.pool.QueryRow(ctx, `
		SELECT wallet_address, threshold, recovery_period, setup_at_block, setup_at_tx
		  FROM recovery_configs WHERE wallet_address = $1`, addr).
		Scan(&rc.WalletAddress, &rc.Threshold, &rc.RecoveryPeriod, &rc.SetupAtBlock, &rc.SetupAtTx)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recovery config: %w", err)
	}
	return &rc, nil
}

// DeactivateGuardians retires every active guardian of a wallet, ahead of a
// fresh setup inserting the replacement set.
func (s *Store) DeactivateGuardians(ctx context.Context, wallet string) error {
	addr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	return s.exec(ctx, "deactivate guardians", `
		UPDATE recovery_guardians SET is_active = FALSE
		 WHERE wallet_address = $1 AND is_active`, addr)
}

// InsertGuardians records a wallet's guardian set. A replayed setup has
// already closed these rows via DeactivateGuardians, so the conflict arm
// reactivates instead of swallowing.
func (s *Store) InsertGuardians(ctx context.Context, guardians []RecoveryGuardian) error {
	for _, g := range guardians {
		wallet, err := normAddress("wallet_address", g.WalletAddress)
		if err != nil {
			return err
		}
		guardian, err := normAddress("guardian_address", g.GuardianAddress)
		if err != nil {
			return err
		}
		tx, err := normHash("added_at_tx", g.AddedAtTx)
		if err != nil {
			return err
		}
		err = s.exec(ctx, "insert guardian", `
			INSERT INTO recovery_guardians (wallet_address, guardian_address, added_at_block, added_at_tx)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (wallet_address, guardian_address, added_at_block) DO UPDATE
			   SET is_active = TRUE`,
			wallet, guardian, g.AddedAtBlock, tx)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertRecovery projects a RecoveryInitiated event. The approval count is
// trigger-maintained and never written here.
func (s *Store) UpsertRecovery(ctx context.Context, r Recovery) error {
	wallet, err := normAddress("wallet_address", r.WalletAddress)
	if err != nil {
		return err
	}
	hash, err := normHash("recovery_hash", r.RecoveryHash)
	if err != nil {
		return err
	}
	owners, err := normAddresses("new_owners", r.NewOwners)
	if err != nil {
		return err
	}
	initiator, err := normAddress("initiated_by", r.InitiatedBy)
	if err != nil {
		return err
	}
	tx, err := normHash("initiated_at_tx", r.InitiatedAtTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "upsert recovery", `
		INSERT INTO recoveries (
			wallet_address, recovery_hash, new_owners, new_threshold,
			initiated_by, initiated_at_block, initiated_at_tx,
			required_threshold, execution_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending')
		ON CONFLICT (wallet_address, recovery_hash) DO UPDATE
		   SET new_owners = EXCLUDED.new_owners,
		       new_threshold = EXCLUDED.new_threshold,
		       initiated_by = EXCLUDED.initiated_by,
		       initiated_at_block = EXCLUDED.initiated_at_block,
		       initiated_at_tx = EXCLUDED.initiated_at_tx,
		       required_threshold = EXCLUDED.required_threshold,
		       execution_time = EXCLUDED.execution_time,
		       status = 'pending'`,
		wallet, hash, owners, r.NewThreshold, initiator,
		r.InitiatedAtBlock, tx, r.RequiredThreshold, r.ExecutionTime)
}

// InsertRecoveryApproval records one guardian approval. Duplicates are
// swallowed; the count is trigger-maintained.
func (s *Store) InsertRecoveryApproval(ctx context.Context, a RecoveryApproval) error {
	wallet, err := normAddress("wallet_address", a.WalletAddress)
	if err != nil {
		return err
	}
	hash, err := normHash("recovery_hash", a.RecoveryHash)
	if err != nil {
		return err
	}
	guardian, err := normAddress("guardian_address", a.GuardianAddress)
	if err != nil {
		return err
	}
	tx, err := normHash("approved_at_tx", a.ApprovedAtTx)
	if err != nil {
		return err
	}
	_, err = s.execIdempotent(ctx, "insert recovery approval", `
		INSERT INTO recovery_approvals (wallet_address, recovery_hash, guardian_address, approved_at_block, approved_at_tx)
		VALUES ($1, $2, $3, $4, $5)`,
		wallet, hash, guardian, a.ApprovedAtBlock, tx)
	return err
}

// RevokeRecoveryApproval closes a guardian's active approval.
func (s *Store) RevokeRecoveryApproval(ctx context.Context, wallet, recoveryHash, guardian string, block uint64, chainTx string) error {
	walletAddr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	hash, err := normHash("recovery_hash", recoveryHash)
	if err != nil {
		return err
	}
	guardianAddr, err := normAddress("guardian_address", guardian)
	if err != nil {
		return err
	}
	chain, err := normHash("revoked_at_tx", chainTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, "revoke recovery approval", `
		UPDATE recovery_approvals
		   SET is_active = FALSE, revoked_at_block = $4, revoked_at_tx = $5
		 WHERE wallet_address = $1 AND recovery_hash = $2 AND guardian_address = $3 AND is_active`,
		walletAddr, hash, guardianAddr, block, chain)
}

// MarkRecoveryExecuted moves a recovery to its executed terminal state.
func (s *Store) MarkRecoveryExecuted(ctx context.Context, wallet, recoveryHash string, block uint64, chainTx string) error {
	return s.setRecoveryTerminal(ctx, "mark recovery executed", `
		UPDATE recoveries
		   SET status = 'executed', executed_at_block = $3, executed_at_tx = $4
		 WHERE wallet_address = $1 AND recovery_hash = $2`,
		wallet, recoveryHash, block, chainTx)
}

// MarkRecoveryCancelled moves a recovery to its cancelled terminal state.
func (s *Store) MarkRecoveryCancelled(ctx context.Context, wallet, recoveryHash string, block uint64, chainTx string) error {
	return s.setRecoveryTerminal(ctx, "mark recovery cancelled", `
		UPDATE recoveries
		   SET status = 'cancelled', cancelled_at_block = $3, cancelled_at_tx = $4
		 WHERE wallet_address = $1 AND recovery_hash = $2`,
		wallet, recoveryHash, block, chainTx)
}

func (s *Store) setRecoveryTerminal(ctx context.Context, op, sql, wallet, recoveryHash string, block uint64, chainTx string) error {
	walletAddr, err := normAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	hash, err := normHash("recovery_hash", recoveryHash)
	if err != nil {
		return err
	}
	chain, err := normHash("chain_tx", chainTx)
	if err != nil {
		return err
	}
	return s.exec(ctx, op, sql, walletAddr, hash, block, chain)
}
