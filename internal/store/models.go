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

// Wallet is the projection of one deployed multisig wallet.
type Wallet struct {
	Address        string
	Threshold      uint64
	OwnerCount     uint64
	CreatedAtBlock uint64
	CreatedAtTx    string
}

type WalletOwner struct {
	WalletAddress string
	OwnerAddress  string
	AddedAtBlock  uint64
	AddedAtTx     string
}

type Module struct {
	WalletAddress  string
	ModuleAddress  string
	EnabledAtBlock uint64
	EnabledAtTx    string
}

// Transaction is a proposed multisig transaction. TxHash is the on-chain
// content hash of the proposal. Value is a decimal string; Data and the
// submission references are hex strings. ConfirmationCount lives in the
// database and is trigger-maintained, so it has no field here.
type Transaction struct {
	WalletAddress    string
	TxHash           string
	To               string
	Value            string
	Data             string
	TransactionType  string
	DecodedParams    []byte
	SubmittedBy      string
	SubmittedAtBlock uint64
	SubmittedAtTx    string
}

type Confirmation struct {
	WalletAddress    string
	TxHash           string
	OwnerAddress     string
	ConfirmedAtBlock uint64
	ConfirmedAtTx    string
}

type Deposit struct {
	WalletAddress    string
	SenderAddress    string
	Amount           string
	DepositedAtBlock uint64
	DepositedAtTx    string
}

type RecoveryConfig struct {
	WalletAddress  string
	Threshold      uint64
	RecoveryPeriod uint64
	SetupAtBlock   uint64
	SetupAtTx      string
}

type RecoveryGuardian struct {
	WalletAddress   string
	GuardianAddress string
	AddedAtBlock    uint64
	AddedAtTx       string
}

// Recovery is an in-flight owner recovery. ApprovalCount is
// trigger-maintained and deliberately absent.
type Recovery struct {
	WalletAddress     string
	RecoveryHash      string
	NewOwners         []string
	NewThreshold      uint64
	InitiatedBy       string
	InitiatedAtBlock  uint64
	InitiatedAtTx     string
	RequiredThreshold uint64
	ExecutionTime     uint64
}

type RecoveryApproval struct {
	WalletAddress   string
	RecoveryHash    string
	GuardianAddress string
	ApprovedAtBlock uint64
	ApprovedAtTx    string
}

// DailyLimitState mirrors the daily limit module's accounting for one
// wallet. DailyLimit and SpentToday are decimal strings; LastResetDay is an
// ISO date.
type DailyLimitState struct {
	WalletAddress  string
	DailyLimit     string
	SpentToday     string
	LastResetDay   string
	UpdatedAtBlock uint64
	UpdatedAtTx    string
}

type WhitelistEntry struct {
	WalletAddress      string
	WhitelistedAddress string
	Limit              string
	AddedAtBlock       uint64
	AddedAtTx          string
}

// ModuleTransaction is one append-only history row for a spend executed
// through a module. RemainingLimit is empty for modules without a limit
// concept. LogIndex disambiguates multiple module spends inside one chain
// transaction.
type ModuleTransaction struct {
	WalletAddress   string
	ModuleType      string
	ModuleAddress   string
	To              string
	Value           string
	RemainingLimit  string
	ExecutedAtBlock uint64
	ExecutedAtTx    string
	LogIndex        uint
}
