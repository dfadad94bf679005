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
	"math/big"

	"github.com/quaiwallet/indexer/internal/config"
	"github.com/quaiwallet/indexer/internal/events"
	"github.com/quaiwallet/indexer/internal/store"
)

// dailyLimitSet starts a fresh accounting window: the spend is zeroed and
// the window anchored to the current UTC day.
func (r *Registry) dailyLimitSet(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.DailyLimitSet](ev)
	if err != nil {
		return err
	}
	return r.store.UpsertDailyLimit(ctx, store.DailyLimitState{
		WalletAddress:  p.Wallet,
		DailyLimit:     p.Limit.String(),
		SpentToday:     "0",
		LastResetDay:   r.today(),
		UpdatedAtBlock: ev.Block,
		UpdatedAtTx:    ev.TxHash,
	})
}

func (r *Registry) dailyLimitReset(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.DailyLimitReset](ev)
	if err != nil {
		return err
	}
	return r.store.ResetDailySpend(ctx, p.Wallet, r.today(), ev.Block, ev.TxHash)
}

// dailyLimitExecution appends the spend to the module history and rederives
// spentToday from the remaining allowance the module reported. The event is
// authoritative for the remainder, so the projection never does its own
// additive accounting and replays converge on the same value.
func (r *Registry) dailyLimitExecution(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.DailyLimitTransactionExecuted](ev)
	if err != nil {
		return err
	}
	err = r.store.InsertModuleTransaction(ctx, store.ModuleTransaction{
		WalletAddress:   p.Wallet,
		ModuleType:      string(config.ModuleDailyLimit),
		ModuleAddress:   ev.Emitter,
		To:              p.To,
		Value:           p.Value.String(),
		RemainingLimit:  p.RemainingLimit.String(),
		ExecutedAtBlock: ev.Block,
		ExecutedAtTx:    ev.TxHash,
		LogIndex:        ev.LogIndex,
	})
	if err != nil {
		return err
	}
	st, err := r.store.DailyLimitFor(ctx, p.Wallet)
	if err != nil {
		return err
	}
	if st == nil {
		// The limit was configured before our start block; the history row
		// above is still recorded.
		r.logger.Warn("Daily limit spend without indexed limit state", "wallet", p.Wallet)
		return nil
	}
	limit, ok := new(big.Int).SetString(st.DailyLimit, 10)
	if !ok {
		return fmt.Errorf("stored daily limit %q of %s is not a decimal", st.DailyLimit, p.Wallet)
	}
	spent := new(big.Int).Sub(limit, p.RemainingLimit)
	// A limit raised mid-window can leave more allowance than the limit
	// itself; the spend never goes negative.
	if spent.Sign() < 0 {
		spent.SetUint64(0)
	}
	return r.store.UpdateDailySpend(ctx, p.Wallet, spent.String(), ev.Block, ev.TxHash)
}

func (r *Registry) addressWhitelisted(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.AddressWhitelisted](ev)
	if err != nil {
		return err
	}
	return r.store.InsertWhitelistEntry(ctx, store.WhitelistEntry{
		WalletAddress:      p.Wallet,
		WhitelistedAddress: p.Target,
		Limit:              p.Limit.String(),
		AddedAtBlock:       ev.Block,
		AddedAtTx:          ev.TxHash,
	})
}

func (r *Registry) addressRemovedFromWhitelist(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.AddressRemovedFromWhitelist](ev)
	if err != nil {
		return err
	}
	return r.store.DeactivateWhitelistEntry(ctx, p.Wallet, p.Target, ev.Block, ev.TxHash)
}

func (r *Registry) whitelistExecution(ctx context.Context, ev *events.Event) error {
	p, err := payload[events.WhitelistTransactionExecuted](ev)
	if err != nil {
		return err
	}
	return r.store.InsertModuleTransaction(ctx, store.ModuleTransaction{
		WalletAddress:   p.Wallet,
		ModuleType:      string(config.ModuleWhitelist),
		ModuleAddress:   ev.Emitter,
		To:              p.To,
		Value:           p.Value.String(),
		ExecutedAtBlock: ev.Block,
		ExecutedAtTx:    ev.TxHash,
		LogIndex:        ev.LogIndex,
	})
}
