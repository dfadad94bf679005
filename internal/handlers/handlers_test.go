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
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/quaiwallet/indexer/internal/config"
	"github.com/quaiwallet/indexer/internal/events"
	"github.com/quaiwallet/indexer/internal/store"
	"github.com/quaiwallet/indexer/internal/testlog"
)

const (
	wallet         = "0x00000000000000000000000000000000000000a1"
	ownerA         = "0x00000000000000000000000000000000000000b1"
	ownerB         = "0x00000000000000000000000000000000000000b2"
	ownerC         = "0x00000000000000000000000000000000000000b3"
	guardianA      = "0x00000000000000000000000000000000000000c1"
	guardianB      = "0x00000000000000000000000000000000000000c2"
	dailyLimitAddr = "0x00000000000000000000000000000000000000d1"
	whitelistAddr  = "0x00000000000000000000000000000000000000d2"
	recipient      = "0x00000000000000000000000000000000000000e1"

	chainTx      = "0x00000000000000000000000000000000000000000000000000000000000000f1"
	contentHash  = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	recoveryHash = "0x00000000000000000000000000000000000000000000000000000000000000bb"
)

var nowStub = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeStore journals every write so tests can assert both the payloads and
// their order. Typed captures are kept where field-level checks matter.
type fakeStore struct {
	journal []string

	wallets      []store.Wallet
	transactions []store.Transaction
	recoveries   []store.Recovery
	dailyLimits  []store.DailyLimitState
	moduleTxs    []store.ModuleTransaction
	deposits     []store.Deposit
	whitelist    []store.WhitelistEntry
	spends       []string

	// Per-call results for InsertOwner / DeactivateOwner; empty means the
	// write succeeded and touched a row.
	ownerInserts []bool
	ownerCloses  []bool

	recoveryCfg *store.RecoveryConfig
	limitState  *store.DailyLimitState

	errOn string
}

func (f *fakeStore) log(format string, args ...interface{}) {
	f.journal = append(f.journal, fmt.Sprintf(format, args...))
}

func (f *fakeStore) fail(method string) error {
	if f.errOn == method {
		return errors.New(method + " refused")
	}
	return nil
}

func popFlag(s *[]bool) bool {
	if len(*s) == 0 {
		return true
	}
	v := (*s)[0]
	*s = (*s)[1:]
	return v
}

func (f *fakeStore) UpsertWallet(_ context.Context, w store.Wallet) error {
	f.log("UpsertWallet %s", w.Address)
	f.wallets = append(f.wallets, w)
	return f.fail("UpsertWallet")
}

func (f *fakeStore) UpdateWalletThreshold(_ context.Context, wallet string, threshold uint64) error {
	f.log("UpdateWalletThreshold %s %d", wallet, threshold)
	return f.fail("UpdateWalletThreshold")
}

func (f *fakeStore) IncrementOwnerCount(_ context.Context, wallet string, delta int64) error {
	f.log("IncrementOwnerCount %s %+d", wallet, delta)
	return f.fail("IncrementOwnerCount")
}

func (f *fakeStore) InsertOwner(_ context.Context, o store.WalletOwner) (bool, error) {
	f.log("InsertOwner %s %s", o.WalletAddress, o.OwnerAddress)
	return popFlag(&f.ownerInserts), f.fail("InsertOwner")
}

func (f *fakeStore) InsertOwners(ctx context.Context, owners []store.WalletOwner) error {
	for _, o := range owners {
		if _, err := f.InsertOwner(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) DeactivateOwner(_ context.Context, wallet, owner string, block uint64, txHash string) (bool, error) {
	f.log("DeactivateOwner %s %s", wallet, owner)
	return popFlag(&f.ownerCloses), f.fail("DeactivateOwner")
}

func (f *fakeStore) UpsertTransaction(_ context.Context, t store.Transaction) error {
	f.log("UpsertTransaction %s %s", t.WalletAddress, t.TxHash)
	f.transactions = append(f.transactions, t)
	return f.fail("UpsertTransaction")
}

func (f *fakeStore) MarkTransactionExecuted(_ context.Context, wallet, txHash string, block uint64, chainTx string) error {
	f.log("MarkTransactionExecuted %s %s", wallet, txHash)
	return f.fail("MarkTransactionExecuted")
}

func (f *fakeStore) MarkTransactionCancelled(_ context.Context, wallet, txHash string, block uint64, chainTx string) error {
	f.log("MarkTransactionCancelled %s %s", wallet, txHash)
	return f.fail("MarkTransactionCancelled")
}

func (f *fakeStore) InsertConfirmation(_ context.Context, c store.Confirmation) error {
	f.log("InsertConfirmation %s %s %s", c.WalletAddress, c.TxHash, c.OwnerAddress)
	return f.fail("InsertConfirmation")
}

func (f *fakeStore) RevokeConfirmation(_ context.Context, wallet, txHash, owner string, block uint64, chainTx string) error {
	f.log("RevokeConfirmation %s %s %s", wallet, txHash, owner)
	return f.fail("RevokeConfirmation")
}

func (f *fakeStore) UpsertModule(_ context.Context, m store.Module) error {
	f.log("UpsertModule %s %s", m.WalletAddress, m.ModuleAddress)
	return f.fail("UpsertModule")
}

func (f *fakeStore) DisableModule(_ context.Context, wallet, module string, block uint64, txHash string) error {
	f.log("DisableModule %s %s", wallet, module)
	return f.fail("DisableModule")
}

func (f *fakeStore) InsertModuleTransaction(_ context.Context, mt store.ModuleTransaction) error {
	f.log("InsertModuleTransaction %s %s", mt.WalletAddress, mt.ModuleType)
	f.moduleTxs = append(f.moduleTxs, mt)
	return f.fail("InsertModuleTransaction")
}

func (f *fakeStore) InsertDeposit(_ context.Context, d store.Deposit) error {
	f.log("InsertDeposit %s %s", d.WalletAddress, d.Amount)
	f.deposits = append(f.deposits, d)
	return f.fail("InsertDeposit")
}

func (f *fakeStore) UpsertRecoveryConfig(_ context.Context, rc store.RecoveryConfig) error {
	f.log("UpsertRecoveryConfig %s", rc.WalletAddress)
	return f.fail("UpsertRecoveryConfig")
}

func (f *fakeStore) RecoveryConfigFor(_ context.Context, wallet string) (*store.RecoveryConfig, error) {
	return f.recoveryCfg, f.fail("RecoveryConfigFor")
}

func (f *fakeStore) DeactivateGuardians(_ context.Context, wallet string) error {
	f.log("DeactivateGuardians %s", wallet)
	return f.fail("DeactivateGuardians")
}

func (f *fakeStore) InsertGuardians(_ context.Context, guardians []store.RecoveryGuardian) error {
	for _, g := range guardians {
		f.log("InsertGuardian %s %s", g.WalletAddress, g.GuardianAddress)
	}
	return f.fail("InsertGuardians")
}

func (f *fakeStore) UpsertRecovery(_ context.Context, r store.Recovery) error {
	f.log("UpsertRecovery %s %s", r.WalletAddress, r.RecoveryHash)
	f.recoveries = append(f.recoveries, r)
	return f.fail("UpsertRecovery")
}

func (f *fakeStore) InsertRecoveryApproval(_ context.Context, a store.RecoveryApproval) error {
	f.log("InsertRecoveryApproval %s %s %s", a.WalletAddress, a.RecoveryHash, a.GuardianAddress)
	return f.fail("InsertRecoveryApproval")
}

func (f *fakeStore) RevokeRecoveryApproval(_ context.Context, wallet, recoveryHash, guardian string, block uint64, chainTx string) error {
	f.log("RevokeRecoveryApproval %s %s %s", wallet, recoveryHash, guardian)
	return f.fail("RevokeRecoveryApproval")
}

func (f *fakeStore) MarkRecoveryExecuted(_ context.Context, wallet, recoveryHash string, block uint64, chainTx string) error {
	f.log("MarkRecoveryExecuted %s %s", wallet, recoveryHash)
	return f.fail("MarkRecoveryExecuted")
}

func (f *fakeStore) MarkRecoveryCancelled(_ context.Context, wallet, recoveryHash string, block uint64, chainTx string) error {
	f.log("MarkRecoveryCancelled %s %s", wallet, recoveryHash)
	return f.fail("MarkRecoveryCancelled")
}

func (f *fakeStore) UpsertDailyLimit(_ context.Context, st store.DailyLimitState) error {
	f.log("UpsertDailyLimit %s %s", st.WalletAddress, st.DailyLimit)
	f.dailyLimits = append(f.dailyLimits, st)
	return f.fail("UpsertDailyLimit")
}

func (f *fakeStore) ResetDailySpend(_ context.Context, wallet, day string, block uint64, txHash string) error {
	f.log("ResetDailySpend %s %s", wallet, day)
	return f.fail("ResetDailySpend")
}

func (f *fakeStore) UpdateDailySpend(_ context.Context, wallet, spent string, block uint64, txHash string) error {
	f.log("UpdateDailySpend %s %s", wallet, spent)
	f.spends = append(f.spends, spent)
	return f.fail("UpdateDailySpend")
}

func (f *fakeStore) DailyLimitFor(_ context.Context, wallet string) (*store.DailyLimitState, error) {
	return f.limitState, f.fail("DailyLimitFor")
}

func (f *fakeStore) InsertWhitelistEntry(_ context.Context, e store.WhitelistEntry) error {
	f.log("InsertWhitelistEntry %s %s", e.WalletAddress, e.WhitelistedAddress)
	f.whitelist = append(f.whitelist, e)
	return f.fail("InsertWhitelistEntry")
}

func (f *fakeStore) DeactivateWhitelistEntry(_ context.Context, wallet, target string, block uint64, txHash string) error {
	f.log("DeactivateWhitelistEntry %s %s", wallet, target)
	return f.fail("DeactivateWhitelistEntry")
}

type chainCall struct {
	to    string
	data  []byte
	block uint64
}

type fakeChain struct {
	calls   []chainCall
	returns map[string][]byte // keyed by the hex of the request data
	callErr error
	ts      uint64
	tsErr   error
}

func (f *fakeChain) Call(_ context.Context, to string, data []byte, block uint64) ([]byte, error) {
	f.calls = append(f.calls, chainCall{to: to, data: data, block: block})
	if f.callErr != nil {
		return nil, f.callErr
	}
	ret, ok := f.returns[hexutil.Encode(data)]
	if !ok {
		return nil, fmt.Errorf("unexpected contract call %s", hexutil.Encode(data))
	}
	return ret, nil
}

func (f *fakeChain) BlockTimestamp(context.Context, uint64) (uint64, error) {
	if f.tsErr != nil {
		return 0, f.tsErr
	}
	return f.ts, nil
}

func newTestRegistry(t *testing.T, st *fakeStore, chain *fakeChain) *Registry {
	t.Helper()
	cfg := &config.Config{ModuleAddrs: map[config.Module]string{
		config.ModuleDailyLimit: dailyLimitAddr,
		config.ModuleWhitelist:  whitelistAddr,
	}}
	r := NewRegistry(st, chain, cfg, testlog.Logger(t, log.LevelDebug))
	r.now = func() time.Time { return nowStub }
	return r
}

func newEvent(kind events.Kind, emitter string, payload interface{}) *events.Event {
	return &events.Event{
		Kind:     kind,
		Emitter:  emitter,
		Block:    120,
		TxHash:   chainTx,
		LogIndex: 3,
		Payload:  payload,
	}
}

func packAddressArray(t *testing.T, addrs ...string) []byte {
	t.Helper()
	typ, err := abi.NewType("address[]", "", nil)
	require.NoError(t, err)
	raw := make([]common.Address, len(addrs))
	for i, a := range addrs {
		raw[i] = common.HexToAddress(a)
	}
	packed, err := abi.Arguments{{Type: typ}}.Pack(raw)
	require.NoError(t, err)
	return packed
}

func TestWalletCreatedProjectsWalletAndOwners(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindWalletCreated, "0x00000000000000000000000000000000000000fa", events.WalletCreated{
		Wallet:    wallet,
		Owners:    []string{ownerA, ownerB},
		Threshold: big.NewInt(2),
		Creator:   ownerA,
		SaltHash:  contentHash,
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.wallets, 1)
	w := st.wallets[0]
	require.Equal(t, wallet, w.Address)
	require.Equal(t, uint64(2), w.Threshold)
	require.Equal(t, uint64(2), w.OwnerCount)
	require.Equal(t, uint64(120), w.CreatedAtBlock)
	require.Equal(t, chainTx, w.CreatedAtTx)

	require.Equal(t, []string{
		"UpsertWallet " + wallet,
		"InsertOwner " + wallet + " " + ownerA,
		"InsertOwner " + wallet + " " + ownerB,
	}, st.journal)
}

func TestWalletRegisteredReadsContractState(t *testing.T) {
	st := &fakeStore{}
	chain := &fakeChain{returns: map[string][]byte{
		hexutil.Encode(getOwnersSelector): packAddressArray(t, ownerA, ownerB, ownerC),
		hexutil.Encode(thresholdSelector): common.LeftPadBytes(big.NewInt(2).Bytes(), 32),
	}}
	r := newTestRegistry(t, st, chain)

	ev := newEvent(events.KindWalletRegistered, "0x00000000000000000000000000000000000000fa", events.WalletRegistered{
		Wallet:    wallet,
		Registrar: ownerA,
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	// Both reads are pinned to the event's block on the wallet contract.
	require.Len(t, chain.calls, 2)
	for _, call := range chain.calls {
		require.Equal(t, wallet, call.to)
		require.Equal(t, uint64(120), call.block)
	}
	require.Equal(t, getOwnersSelector, chain.calls[0].data)
	require.Equal(t, thresholdSelector, chain.calls[1].data)

	require.Len(t, st.wallets, 1)
	require.Equal(t, uint64(2), st.wallets[0].Threshold)
	require.Equal(t, uint64(3), st.wallets[0].OwnerCount)
	require.Contains(t, st.journal, "InsertOwner "+wallet+" "+ownerC)
}

func TestWalletRegisteredOversizedOwnerList(t *testing.T) {
	// A 1001-entry length prefix must be rejected before any slot is read.
	blob := make([]byte, 64)
	blob[31] = 0x20
	big.NewInt(1001).FillBytes(blob[32:64])

	st := &fakeStore{}
	chain := &fakeChain{returns: map[string][]byte{
		hexutil.Encode(getOwnersSelector): blob,
	}}
	r := newTestRegistry(t, st, chain)

	ev := newEvent(events.KindWalletRegistered, wallet, events.WalletRegistered{Wallet: wallet, Registrar: ownerA})
	err := r.Handle(context.Background(), ev)
	require.ErrorIs(t, err, events.ErrLengthOutOfRange)
	require.Empty(t, st.wallets)
	require.Empty(t, st.journal)
}

func TestWalletRegisteredCallFailureAborts(t *testing.T) {
	st := &fakeStore{}
	chain := &fakeChain{callErr: errors.New("node unavailable")}
	r := newTestRegistry(t, st, chain)

	ev := newEvent(events.KindWalletRegistered, wallet, events.WalletRegistered{Wallet: wallet, Registrar: ownerA})
	err := r.Handle(context.Background(), ev)
	require.ErrorContains(t, err, "node unavailable")
	require.Empty(t, st.wallets)
}

func TestOwnerAddedAdjustsCountOnce(t *testing.T) {
	// The second application replays over an existing row; the count must
	// move exactly once.
	st := &fakeStore{ownerInserts: []bool{true, false}}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindOwnerAdded, wallet, events.OwnerAdded{Owner: ownerC})
	require.NoError(t, r.Handle(context.Background(), ev))
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Equal(t, []string{
		"InsertOwner " + wallet + " " + ownerC,
		"IncrementOwnerCount " + wallet + " +1",
		"InsertOwner " + wallet + " " + ownerC,
	}, st.journal)
}

func TestOwnerRemovedSkipsCountWhenAlreadyClosed(t *testing.T) {
	st := &fakeStore{ownerCloses: []bool{true, false}}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindOwnerRemoved, wallet, events.OwnerRemoved{Owner: ownerB})
	require.NoError(t, r.Handle(context.Background(), ev))
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Equal(t, []string{
		"DeactivateOwner " + wallet + " " + ownerB,
		"IncrementOwnerCount " + wallet + " -1",
		"DeactivateOwner " + wallet + " " + ownerB,
	}, st.journal)
}

func TestThresholdChanged(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindThresholdChanged, wallet, events.ThresholdChanged{Threshold: big.NewInt(3)})
	require.NoError(t, r.Handle(context.Background(), ev))
	require.Equal(t, []string{"UpdateWalletThreshold " + wallet + " 3"}, st.journal)
}

func TestModuleLifecycle(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	enable := newEvent(events.KindModuleEnabled, wallet, events.ModuleEnabled{Module: dailyLimitAddr})
	disable := newEvent(events.KindModuleDisabled, wallet, events.ModuleDisabled{Module: dailyLimitAddr})
	require.NoError(t, r.Handle(context.Background(), enable))
	require.NoError(t, r.Handle(context.Background(), disable))

	require.Equal(t, []string{
		"UpsertModule " + wallet + " " + dailyLimitAddr,
		"DisableModule " + wallet + " " + dailyLimitAddr,
	}, st.journal)
}

func TestReceivedRecordsDeposit(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindReceived, wallet, events.Received{Sender: ownerA, Value: big.NewInt(1500)})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.deposits, 1)
	d := st.deposits[0]
	require.Equal(t, wallet, d.WalletAddress)
	require.Equal(t, ownerA, d.SenderAddress)
	require.Equal(t, "1500", d.Amount)
	require.Equal(t, chainTx, d.DepositedAtTx)
}

func TestTransactionProposedClassifiesCalldata(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	sel := crypto.Keccak256([]byte("addOwner(address)"))[:4]
	data := append(append([]byte{}, sel...), common.LeftPadBytes(common.HexToAddress(ownerC).Bytes(), 32)...)

	ev := newEvent(events.KindTransactionProposed, wallet, events.TransactionProposed{
		TxHash:   contentHash,
		Proposer: ownerA,
		To:       wallet,
		Value:    big.NewInt(0),
		Data:     data,
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.transactions, 1)
	tx := st.transactions[0]
	require.Equal(t, contentHash, tx.TxHash)
	require.Equal(t, "wallet_admin", tx.TransactionType)
	require.Equal(t, hexutil.Encode(data), tx.Data)
	require.Equal(t, ownerA, tx.SubmittedBy)
	require.JSONEq(t, fmt.Sprintf(`{"function":"addOwner","args":{"owner":"%s"}}`, ownerC), string(tx.DecodedParams))
}

func TestTransactionProposedModuleTarget(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	// An unrecognised selector aimed at a configured module address.
	ev := newEvent(events.KindTransactionProposed, wallet, events.TransactionProposed{
		TxHash:   contentHash,
		Proposer: ownerA,
		To:       dailyLimitAddr,
		Value:    big.NewInt(0),
		Data:     []byte{0xde, 0xad, 0xbe, 0xef, 0x01},
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.transactions, 1)
	require.Equal(t, "module_config", st.transactions[0].TransactionType)
}

func TestTransactionProposedPlainTransfer(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindTransactionProposed, wallet, events.TransactionProposed{
		TxHash:   contentHash,
		Proposer: ownerA,
		To:       recipient,
		Value:    big.NewInt(500000000000000000),
		Data:     nil,
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.transactions, 1)
	tx := st.transactions[0]
	require.Equal(t, "transfer", tx.TransactionType)
	require.Equal(t, "500000000000000000", tx.Value)
	require.Equal(t, "0x", tx.Data)
	require.JSONEq(t, `{}`, string(tx.DecodedParams))
}

func TestTransactionLifecycle(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ctx := context.Background()
	require.NoError(t, r.Handle(ctx, newEvent(events.KindTransactionApproved, wallet,
		events.TransactionApproved{TxHash: contentHash, Owner: ownerA})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindApprovalRevoked, wallet,
		events.ApprovalRevoked{TxHash: contentHash, Owner: ownerA})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindTransactionExecuted, wallet,
		events.TransactionExecuted{TxHash: contentHash, Executor: ownerB})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindTransactionCancelled, wallet,
		events.TransactionCancelled{TxHash: contentHash, Canceller: ownerB})))

	require.Equal(t, []string{
		"InsertConfirmation " + wallet + " " + contentHash + " " + ownerA,
		"RevokeConfirmation " + wallet + " " + contentHash + " " + ownerA,
		"MarkTransactionExecuted " + wallet + " " + contentHash,
		"MarkTransactionCancelled " + wallet + " " + contentHash,
	}, st.journal)
}

func TestRecoverySetupReplacesGuardianSet(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindRecoverySetup, whitelistAddr, events.RecoverySetup{
		Wallet:         wallet,
		Guardians:      []string{guardianA, guardianB},
		Threshold:      big.NewInt(2),
		RecoveryPeriod: big.NewInt(86400),
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Equal(t, []string{
		"UpsertRecoveryConfig " + wallet,
		"DeactivateGuardians " + wallet,
		"InsertGuardian " + wallet + " " + guardianA,
		"InsertGuardian " + wallet + " " + guardianB,
	}, st.journal)
}

func TestRecoveryInitiatedComputesExecutionTime(t *testing.T) {
	st := &fakeStore{recoveryCfg: &store.RecoveryConfig{
		WalletAddress:  wallet,
		Threshold:      2,
		RecoveryPeriod: 86400,
	}}
	chain := &fakeChain{ts: 1700000000}
	r := newTestRegistry(t, st, chain)

	ev := newEvent(events.KindRecoveryInitiated, whitelistAddr, events.RecoveryInitiated{
		Wallet:       wallet,
		RecoveryHash: recoveryHash,
		NewOwners:    []string{ownerC},
		NewThreshold: big.NewInt(1),
		Initiator:    guardianA,
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.recoveries, 1)
	rec := st.recoveries[0]
	require.Equal(t, uint64(1700000000+86400), rec.ExecutionTime)
	require.Equal(t, uint64(2), rec.RequiredThreshold)
	require.Equal(t, []string{ownerC}, rec.NewOwners)
	require.Equal(t, guardianA, rec.InitiatedBy)
	// Approvals arrive as their own events; initiation records none.
	require.Equal(t, []string{"UpsertRecovery " + wallet + " " + recoveryHash}, st.journal)
}

func TestRecoveryInitiatedFallsBackToWallClock(t *testing.T) {
	st := &fakeStore{recoveryCfg: &store.RecoveryConfig{
		WalletAddress:  wallet,
		Threshold:      1,
		RecoveryPeriod: 3600,
	}}
	chain := &fakeChain{tsErr: errors.New("block lookup failed")}
	r := newTestRegistry(t, st, chain)

	ev := newEvent(events.KindRecoveryInitiated, whitelistAddr, events.RecoveryInitiated{
		Wallet:       wallet,
		RecoveryHash: recoveryHash,
		NewOwners:    []string{ownerC},
		NewThreshold: big.NewInt(1),
		Initiator:    guardianA,
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.recoveries, 1)
	require.Equal(t, uint64(nowStub.Unix())+3600, st.recoveries[0].ExecutionTime)
}

func TestRecoveryInitiatedWithoutConfig(t *testing.T) {
	st := &fakeStore{}
	chain := &fakeChain{ts: 1700000000}
	r := newTestRegistry(t, st, chain)

	ev := newEvent(events.KindRecoveryInitiated, whitelistAddr, events.RecoveryInitiated{
		Wallet:       wallet,
		RecoveryHash: recoveryHash,
		NewOwners:    []string{ownerC},
		NewThreshold: big.NewInt(1),
		Initiator:    guardianA,
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.recoveries, 1)
	require.Equal(t, uint64(1700000000), st.recoveries[0].ExecutionTime)
	require.Equal(t, uint64(0), st.recoveries[0].RequiredThreshold)
}

func TestRecoveryApprovalFlow(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ctx := context.Background()
	require.NoError(t, r.Handle(ctx, newEvent(events.KindRecoveryApproved, whitelistAddr,
		events.RecoveryApproved{Wallet: wallet, RecoveryHash: recoveryHash, Guardian: guardianA})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindRecoveryApprovalRevoked, whitelistAddr,
		events.RecoveryApprovalRevoked{Wallet: wallet, RecoveryHash: recoveryHash, Guardian: guardianA})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindRecoveryExecuted, whitelistAddr,
		events.RecoveryExecuted{Wallet: wallet, RecoveryHash: recoveryHash})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindRecoveryCancelled, whitelistAddr,
		events.RecoveryCancelled{Wallet: wallet, RecoveryHash: recoveryHash})))

	require.Equal(t, []string{
		"InsertRecoveryApproval " + wallet + " " + recoveryHash + " " + guardianA,
		"RevokeRecoveryApproval " + wallet + " " + recoveryHash + " " + guardianA,
		"MarkRecoveryExecuted " + wallet + " " + recoveryHash,
		"MarkRecoveryCancelled " + wallet + " " + recoveryHash,
	}, st.journal)
}

func TestDailyLimitSetResetsWindow(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindDailyLimitSet, dailyLimitAddr, events.DailyLimitSet{
		Wallet: wallet,
		Limit:  big.NewInt(1000),
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.dailyLimits, 1)
	state := st.dailyLimits[0]
	require.Equal(t, "1000", state.DailyLimit)
	require.Equal(t, "0", state.SpentToday)
	require.Equal(t, "2024-05-01", state.LastResetDay)
}

func TestDailyLimitReset(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindDailyLimitReset, dailyLimitAddr, events.DailyLimitReset{Wallet: wallet})
	require.NoError(t, r.Handle(context.Background(), ev))
	require.Equal(t, []string{"ResetDailySpend " + wallet + " 2024-05-01"}, st.journal)
}

func TestDailyLimitSpendRecomputed(t *testing.T) {
	st := &fakeStore{limitState: &store.DailyLimitState{
		WalletAddress: wallet,
		DailyLimit:    "1000",
		SpentToday:    "0",
	}}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindDailyLimitTransactionExecuted, dailyLimitAddr, events.DailyLimitTransactionExecuted{
		Wallet:         wallet,
		To:             recipient,
		Value:          big.NewInt(300),
		RemainingLimit: big.NewInt(300),
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	require.Len(t, st.moduleTxs, 1)
	mt := st.moduleTxs[0]
	require.Equal(t, "daily_limit", mt.ModuleType)
	require.Equal(t, dailyLimitAddr, mt.ModuleAddress)
	require.Equal(t, "300", mt.RemainingLimit)
	require.Equal(t, uint(3), mt.LogIndex)
	require.Equal(t, []string{"700"}, st.spends)
}

func TestDailyLimitSpendClampedAtZero(t *testing.T) {
	// A limit raised mid-window leaves more allowance than the stored limit;
	// the spend clamps at zero instead of going negative.
	st := &fakeStore{limitState: &store.DailyLimitState{
		WalletAddress: wallet,
		DailyLimit:    "1000",
	}}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindDailyLimitTransactionExecuted, dailyLimitAddr, events.DailyLimitTransactionExecuted{
		Wallet:         wallet,
		To:             recipient,
		Value:          big.NewInt(10),
		RemainingLimit: big.NewInt(1200),
	})
	require.NoError(t, r.Handle(context.Background(), ev))
	require.Equal(t, []string{"0"}, st.spends)
}

func TestDailyLimitSpendWithoutState(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindDailyLimitTransactionExecuted, dailyLimitAddr, events.DailyLimitTransactionExecuted{
		Wallet:         wallet,
		To:             recipient,
		Value:          big.NewInt(10),
		RemainingLimit: big.NewInt(990),
	})
	require.NoError(t, r.Handle(context.Background(), ev))

	// The history row lands even when no limit state is indexed.
	require.Len(t, st.moduleTxs, 1)
	require.Empty(t, st.spends)
}

func TestWhitelistFlow(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st, &fakeChain{})

	ctx := context.Background()
	require.NoError(t, r.Handle(ctx, newEvent(events.KindAddressWhitelisted, whitelistAddr,
		events.AddressWhitelisted{Wallet: wallet, Target: recipient, Limit: big.NewInt(5000)})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindWhitelistTransactionExecuted, whitelistAddr,
		events.WhitelistTransactionExecuted{Wallet: wallet, To: recipient, Value: big.NewInt(200)})))
	require.NoError(t, r.Handle(ctx, newEvent(events.KindAddressRemovedFromWhitelist, whitelistAddr,
		events.AddressRemovedFromWhitelist{Wallet: wallet, Target: recipient})))

	require.Len(t, st.whitelist, 1)
	require.Equal(t, "5000", st.whitelist[0].Limit)

	require.Len(t, st.moduleTxs, 1)
	mt := st.moduleTxs[0]
	require.Equal(t, "whitelist", mt.ModuleType)
	require.Equal(t, whitelistAddr, mt.ModuleAddress)
	require.Empty(t, mt.RemainingLimit)

	require.Equal(t, "DeactivateWhitelistEntry "+wallet+" "+recipient, st.journal[len(st.journal)-1])
}

func TestHandleUnknownKind(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{}, &fakeChain{})
	err := r.Handle(context.Background(), &events.Event{Kind: "Reorged"})
	require.ErrorContains(t, err, "no handler registered")
}

func TestHandleWrapsStoreErrors(t *testing.T) {
	st := &fakeStore{errOn: "InsertDeposit"}
	r := newTestRegistry(t, st, &fakeChain{})

	ev := newEvent(events.KindReceived, wallet, events.Received{Sender: ownerA, Value: big.NewInt(1)})
	err := r.Handle(context.Background(), ev)
	require.ErrorContains(t, err, "handle Received")
	require.ErrorContains(t, err, "InsertDeposit refused")
}

func TestHandlePayloadMismatch(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{}, &fakeChain{})
	ev := newEvent(events.KindReceived, wallet, events.OwnerAdded{Owner: ownerA})
	err := r.Handle(context.Background(), ev)
	require.ErrorContains(t, err, "payload has type")
}
