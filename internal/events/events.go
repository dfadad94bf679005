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

// Package events decodes chain logs emitted by the wallet factory, the
// wallet implementation and the attached modules into typed records, and
// classifies the calldata of proposed multisig transactions.
package events

import "math/big"

// Kind identifies a decoded event. The daily limit module emits a
// TransactionExecuted event whose signature differs from the wallet's; it
// carries its own kind so handlers never need to inspect the emitter.
type Kind string

const (
	KindWalletCreated    Kind = "WalletCreated"
	KindWalletRegistered Kind = "WalletRegistered"

	KindTransactionProposed  Kind = "TransactionProposed"
	KindTransactionApproved  Kind = "TransactionApproved"
	KindApprovalRevoked      Kind = "ApprovalRevoked"
	KindTransactionExecuted  Kind = "TransactionExecuted"
	KindTransactionCancelled Kind = "TransactionCancelled"
	KindOwnerAdded           Kind = "OwnerAdded"
	KindOwnerRemoved         Kind = "OwnerRemoved"
	KindThresholdChanged     Kind = "ThresholdChanged"
	KindModuleEnabled        Kind = "ModuleEnabled"
	KindModuleDisabled       Kind = "ModuleDisabled"
	KindReceived             Kind = "Received"

	KindRecoverySetup           Kind = "RecoverySetup"
	KindRecoveryInitiated       Kind = "RecoveryInitiated"
	KindRecoveryApproved        Kind = "RecoveryApproved"
	KindRecoveryApprovalRevoked Kind = "RecoveryApprovalRevoked"
	KindRecoveryExecuted        Kind = "RecoveryExecuted"
	KindRecoveryCancelled       Kind = "RecoveryCancelled"

	KindDailyLimitSet                 Kind = "DailyLimitSet"
	KindDailyLimitReset               Kind = "DailyLimitReset"
	KindDailyLimitTransactionExecuted Kind = "DailyLimitTransactionExecuted"

	KindAddressWhitelisted           Kind = "AddressWhitelisted"
	KindAddressRemovedFromWhitelist  Kind = "AddressRemovedFromWhitelist"
	KindWhitelistTransactionExecuted Kind = "WhitelistTransactionExecuted"
)

// Event is a decoded log. Emitter, TxHash and all payload addresses are
// lowercased hex; Payload holds one of the typed records below.
type Event struct {
	Kind     Kind
	Emitter  string
	Block    uint64
	TxHash   string
	LogIndex uint
	Payload  interface{}
}

// WalletAddress resolves the wallet an event belongs to. Wallet contract
// events carry it implicitly as the emitter; factory and module events name
// the wallet in their payload.
func (e *Event) WalletAddress() string {
	switch p := e.Payload.(type) {
	case WalletCreated:
		return p.Wallet
	case WalletRegistered:
		return p.Wallet
	case RecoverySetup:
		return p.Wallet
	case RecoveryInitiated:
		return p.Wallet
	case RecoveryApproved:
		return p.Wallet
	case RecoveryApprovalRevoked:
		return p.Wallet
	case RecoveryExecuted:
		return p.Wallet
	case RecoveryCancelled:
		return p.Wallet
	case DailyLimitSet:
		return p.Wallet
	case DailyLimitReset:
		return p.Wallet
	case DailyLimitTransactionExecuted:
		return p.Wallet
	case AddressWhitelisted:
		return p.Wallet
	case AddressRemovedFromWhitelist:
		return p.Wallet
	case WhitelistTransactionExecuted:
		return p.Wallet
	default:
		return e.Emitter
	}
}

// WalletCreated is the factory's deployment event for a new wallet.
type WalletCreated struct {
	Wallet    string
	Owners    []string
	Threshold *big.Int
	Creator   string
	SaltHash  string
}

// WalletRegistered is the factory's late-discovery event. It carries no
// owner list; the handler reads owners and threshold back from the wallet
// contract.
type WalletRegistered struct {
	Wallet    string
	Registrar string
}

// TransactionProposed announces a pending multisig transaction. TxHash is
// the on-chain content hash of the proposal, not the hash of the containing
// chain transaction.
type TransactionProposed struct {
	TxHash   string
	Proposer string
	To       string
	Value    *big.Int
	Data     []byte
}

type TransactionApproved struct {
	TxHash string
	Owner  string
}

type ApprovalRevoked struct {
	TxHash string
	Owner  string
}

type TransactionExecuted struct {
	TxHash   string
	Executor string
}

type TransactionCancelled struct {
	TxHash    string
	Canceller string
}

type OwnerAdded struct {
	Owner string
}

type OwnerRemoved struct {
	Owner string
}

type ThresholdChanged struct {
	Threshold *big.Int
}

type ModuleEnabled struct {
	Module string
}

type ModuleDisabled struct {
	Module string
}

// Received is a native value deposit into the wallet.
type Received struct {
	Sender string
	Value  *big.Int
}

// RecoverySetup replaces a wallet's guardian configuration wholesale.
type RecoverySetup struct {
	Wallet         string
	Guardians      []string
	Threshold      *big.Int
	RecoveryPeriod *big.Int
}

type RecoveryInitiated struct {
	Wallet       string
	RecoveryHash string
	NewOwners    []string
	NewThreshold *big.Int
	Initiator    string
}

type RecoveryApproved struct {
	Wallet       string
	RecoveryHash string
	Guardian     string
}

type RecoveryApprovalRevoked struct {
	Wallet       string
	RecoveryHash string
	Guardian     string
}

type RecoveryExecuted struct {
	Wallet       string
	RecoveryHash string
}

type RecoveryCancelled struct {
	Wallet       string
	RecoveryHash string
}

type DailyLimitSet struct {
	Wallet string
	Limit  *big.Int
}

type DailyLimitReset struct {
	Wallet string
}

// DailyLimitTransactionExecuted reports a spend through the daily limit
// module together with the limit remaining after it.
type DailyLimitTransactionExecuted struct {
	Wallet         string
	To             string
	Value          *big.Int
	RemainingLimit *big.Int
}

type AddressWhitelisted struct {
	Wallet string
	Target string
	Limit  *big.Int
}

type AddressRemovedFromWhitelist struct {
	Wallet string
	Target string
}

type WhitelistTransactionExecuted struct {
	Wallet string
	To     string
	Value  *big.Int
}
