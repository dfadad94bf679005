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

// Checkpoint returns the highest fully indexed block. A missing row reads
// as zero, which restarts indexing from the configured start block.
func (s *Store) Checkpoint(ctx context.Context) (uint64, error) {
	var block uint64
	err := s.pool.QueryRow(ctx,
		`SELECT last_indexed_block FROM indexer_checkpoint WHERE id = 1`).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	return block, nil
}

// SetCheckpoint advances the checkpoint after a block range commits. The
// stored value never moves backwards, so a backfill over an already indexed
// range cannot make the daemon re-index everything behind it. The row is
// upserted so a wiped store heals on the next write.
func (s *Store) SetCheckpoint(ctx context.Context, block uint64) error {
	return s.exec(ctx, "set checkpoint", `
		INSERT INTO indexer_checkpoint (id, last_indexed_block, last_indexed_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		   SET last_indexed_block = GREATEST(indexer_checkpoint.last_indexed_block, EXCLUDED.last_indexed_block),
		       last_indexed_at = now()`,
		block)
}

// SetSyncing flags a long backfill in progress, which the health probe
// treats as an excuse for lag.
func (s *Store) SetSyncing(ctx context.Context, syncing bool) error {
	return s.exec(ctx, "set syncing", `
		INSERT INTO indexer_checkpoint (id, is_syncing) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET is_syncing = EXCLUDED.is_syncing`,
		syncing)
}
