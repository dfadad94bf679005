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

package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const factoryABIJSON = `[
	{"type":"event","name":"WalletCreated","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"owners","type":"address[]","indexed":false},
		{"name":"threshold","type":"uint256","indexed":false},
		{"name":"creator","type":"address","indexed":true},
		{"name":"saltHash","type":"bytes32","indexed":false}]},
	{"type":"event","name":"WalletRegistered","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"registrar","type":"address","indexed":true}]}
]`

const walletABIJSON = `[
	{"type":"event","name":"TransactionProposed","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"proposer","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":false},
		{"name":"value","type":"uint256","indexed":false},
		{"name":"data","type":"bytes","indexed":false}]},
	{"type":"event","name":"TransactionApproved","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"ApprovalRevoked","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"TransactionExecuted","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"executor","type":"address","indexed":true}]},
	{"type":"event","name":"TransactionCancelled","inputs":[
		{"name":"txHash","type":"bytes32","indexed":true},
		{"name":"canceller","type":"address","indexed":true}]},
	{"type":"event","name":"OwnerAdded","inputs":[
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"OwnerRemoved","inputs":[
		{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"ThresholdChanged","inputs":[
		{"name":"threshold","type":"uint256","indexed":false}]},
	{"type":"event","name":"ModuleEnabled","inputs":[
		{"name":"module","type":"address","indexed":true}]},
	{"type":"event","name":"ModuleDisabled","inputs":[
		{"name":"module","type":"address","indexed":true}]},
	{"type":"event","name":"Received","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]}
]`

const recoveryABIJSON = `[
	{"type":"event","name":"RecoverySetup","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"guardians","type":"address[]","indexed":false},
		{"name":"threshold","type":"uint256","indexed":false},
		{"name":"recoveryPeriod","type":"uint256","indexed":false}]},
	{"type":"event","name":"RecoveryInitiated","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true},
		{"name":"newOwners","type":"address[]","indexed":false},
		{"name":"newThreshold","type":"uint256","indexed":false},
		{"name":"initiator","type":"address","indexed":true}]},
	{"type":"event","name":"RecoveryApproved","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true},
		{"name":"guardian","type":"address","indexed":true}]},
	{"type":"event","name":"RecoveryApprovalRevoked","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true},
		{"name":"guardian","type":"address","indexed":true}]},
	{"type":"event","name":"RecoveryExecuted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true}]},
	{"type":"event","name":"RecoveryCancelled","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"recoveryHash","type":"bytes32","indexed":true}]}
]`

const dailyLimitABIJSON = `[
	{"type":"event","name":"DailyLimitSet","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"limit","type":"uint256","indexed":false}]},
	{"type":"event","name":"DailyLimitReset","inputs":[
		{"name":"wallet","type":"address","indexed":true}]},
	{"type":"event","name":"TransactionExecuted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false},
		{"name":"remainingLimit","type":"uint256","indexed":false}]}
]`

const whitelistABIJSON = `[
	{"type":"event","name":"AddressWhitelisted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"target","type":"address","indexed":true},
		{"name":"limit","type":"uint256","indexed":false}]},
	{"type":"event","name":"AddressRemovedFromWhitelist","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"target","type":"address","indexed":true}]},
	{"type":"event","name":"WhitelistTransactionExecuted","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]}
]`

var (
	factoryABI    = mustABI(factoryABIJSON)
	walletABI     = mustABI(walletABIJSON)
	recoveryABI   = mustABI(recoveryABIJSON)
	dailyLimitABI = mustABI(dailyLimitABIJSON)
	whitelistABI  = mustABI(whitelistABIJSON)
)

// mustABI parses a static ABI definition. The inputs are compile-time
// constants, so a parse failure is a programming error.
func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// entry binds a topic0 hash to the ABI event it decodes with.
type entry struct {
	abi  *abi.ABI
	ev   abi.Event
	kind Kind
}

// newRegistry indexes every known event by its topic0 hash. The two
// TransactionExecuted signatures hash differently, so routing is unambiguous
// without consulting the emitter.
func newRegistry() map[common.Hash]entry {
	reg := make(map[common.Hash]entry)
	add := func(a *abi.ABI, name string, kind Kind) {
		ev, ok := a.Events[name]
		if !ok {
			panic("events: unknown event " + name)
		}
		reg[ev.ID] = entry{abi: a, ev: ev, kind: kind}
	}
	add(&factoryABI, "WalletCreated", KindWalletCreated)
	add(&factoryABI, "WalletRegistered", KindWalletRegistered)

	add(&walletABI, "TransactionProposed", KindTransactionProposed)
	add(&walletABI, "TransactionApproved", KindTransactionApproved)
	add(&walletABI, "ApprovalRevoked", KindApprovalRevoked)
	add(&walletABI, "TransactionExecuted", KindTransactionExecuted)
	add(&walletABI, "TransactionCancelled", KindTransactionCancelled)
	add(&walletABI, "OwnerAdded", KindOwnerAdded)
	add(&walletABI, "OwnerRemoved", KindOwnerRemoved)
	add(&walletABI, "ThresholdChanged", KindThresholdChanged)
	add(&walletABI, "ModuleEnabled", KindModuleEnabled)
	add(&walletABI, "ModuleDisabled", KindModuleDisabled)
	add(&walletABI, "Received", KindReceived)

	add(&recoveryABI, "RecoverySetup", KindRecoverySetup)
	add(&recoveryABI, "RecoveryInitiated", KindRecoveryInitiated)
	add(&recoveryABI, "RecoveryApproved", KindRecoveryApproved)
	add(&recoveryABI, "RecoveryApprovalRevoked", KindRecoveryApprovalRevoked)
	add(&recoveryABI, "RecoveryExecuted", KindRecoveryExecuted)
	add(&recoveryABI, "RecoveryCancelled", KindRecoveryCancelled)

	add(&dailyLimitABI, "DailyLimitSet", KindDailyLimitSet)
	add(&dailyLimitABI, "DailyLimitReset", KindDailyLimitReset)
	add(&dailyLimitABI, "TransactionExecuted", KindDailyLimitTransactionExecuted)

	add(&whitelistABI, "AddressWhitelisted", KindAddressWhitelisted)
	add(&whitelistABI, "AddressRemovedFromWhitelist", KindAddressRemovedFromWhitelist)
	add(&whitelistABI, "WhitelistTransactionExecuted", KindWhitelistTransactionExecuted)
	return reg
}

// FactoryTopics returns the topic0 hashes of the factory's events, in a
// stable order suitable for a getLogs filter.
func FactoryTopics() []common.Hash {
	return topicsOf(factoryABI, "WalletCreated", "WalletRegistered")
}

// WalletTopics returns the topic0 hashes of every wallet contract event.
func WalletTopics() []common.Hash {
	return topicsOf(walletABI,
		"TransactionProposed", "TransactionApproved", "ApprovalRevoked",
		"TransactionExecuted", "TransactionCancelled",
		"OwnerAdded", "OwnerRemoved", "ThresholdChanged",
		"ModuleEnabled", "ModuleDisabled", "Received",
	)
}

// ModuleTopics returns the topic0 hashes of every module event across the
// recovery, daily limit and whitelist modules.
func ModuleTopics() []common.Hash {
	topics := topicsOf(recoveryABI,
		"RecoverySetup", "RecoveryInitiated", "RecoveryApproved",
		"RecoveryApprovalRevoked", "RecoveryExecuted", "RecoveryCancelled",
	)
	topics = append(topics, topicsOf(dailyLimitABI, "DailyLimitSet", "DailyLimitReset", "TransactionExecuted")...)
	topics = append(topics, topicsOf(whitelistABI, "AddressWhitelisted", "AddressRemovedFromWhitelist", "WhitelistTransactionExecuted")...)
	return topics
}

func topicsOf(a abi.ABI, names ...string) []common.Hash {
	topics := make([]common.Hash, 0, len(names))
	for _, name := range names {
		topics = append(topics, a.Events[name].ID)
	}
	return topics
}
