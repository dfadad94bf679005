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
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Decoder turns raw chain logs into typed events. It is pure: all tables
// are derived from static ABI definitions at construction.
type Decoder struct {
	registry map[common.Hash]entry
	methods  abi.ABI
}

// NewDecoder builds the topic and selector tables.
func NewDecoder() *Decoder {
	return &Decoder{
		registry: newRegistry(),
		methods:  walletMethodsABI,
	}
}

// Decode parses a single log. Logs with an unknown topic0 return (nil, nil)
// and are simply not ours; a log that matches a known topic but cannot be
// parsed returns an error, which callers drop with a debug line rather than
// halting the batch.
func (d *Decoder) Decode(l types.Log) (*Event, error) {
	if len(l.Topics) == 0 {
		return nil, nil
	}
	ent, ok := d.registry[l.Topics[0]]
	if !ok {
		return nil, nil
	}
	args := make(argMap)
	if len(ent.ev.Inputs.NonIndexed()) > 0 {
		if err := ent.abi.UnpackIntoMap(args, ent.ev.Name, l.Data); err != nil {
			return nil, fmt.Errorf("%s: unpack data: %w", ent.kind, err)
		}
	}
	var indexed abi.Arguments
	for _, input := range ent.ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%s: %d topics, want %d", ent.kind, len(l.Topics)-1, len(indexed))
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%s: parse topics: %w", ent.kind, err)
	}
	payload, err := buildPayload(ent.kind, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ent.kind, err)
	}
	return &Event{
		Kind:     ent.kind,
		Emitter:  strings.ToLower(l.Address.Hex()),
		Block:    l.BlockNumber,
		TxHash:   l.TxHash.Hex(),
		LogIndex: l.Index,
		Payload:  payload,
	}, nil
}

func buildPayload(kind Kind, args argMap) (interface{}, error) {
	switch kind {
	case KindWalletCreated:
		return argStruct(func() (WalletCreated, error) {
			var p WalletCreated
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.Owners, err = args.addrSlice("owners"); err != nil {
				return p, err
			}
			if p.Threshold, err = args.bigInt("threshold"); err != nil {
				return p, err
			}
			if p.Creator, err = args.addr("creator"); err != nil {
				return p, err
			}
			p.SaltHash, err = args.hash("saltHash")
			return p, err
		})
	case KindWalletRegistered:
		return argStruct(func() (WalletRegistered, error) {
			var p WalletRegistered
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			p.Registrar, err = args.addr("registrar")
			return p, err
		})
	case KindTransactionProposed:
		return argStruct(func() (TransactionProposed, error) {
			var p TransactionProposed
			var err error
			if p.TxHash, err = args.hash("txHash"); err != nil {
				return p, err
			}
			if p.Proposer, err = args.addr("proposer"); err != nil {
				return p, err
			}
			if p.To, err = args.addr("to"); err != nil {
				return p, err
			}
			if p.Value, err = args.bigInt("value"); err != nil {
				return p, err
			}
			p.Data, err = args.bytes("data")
			return p, err
		})
	case KindTransactionApproved:
		return argStruct(func() (TransactionApproved, error) {
			var p TransactionApproved
			var err error
			if p.TxHash, err = args.hash("txHash"); err != nil {
				return p, err
			}
			p.Owner, err = args.addr("owner")
			return p, err
		})
	case KindApprovalRevoked:
		return argStruct(func() (ApprovalRevoked, error) {
			var p ApprovalRevoked
			var err error
			if p.TxHash, err = args.hash("txHash"); err != nil {
				return p, err
			}
			p.Owner, err = args.addr("owner")
			return p, err
		})
	case KindTransactionExecuted:
		return argStruct(func() (TransactionExecuted, error) {
			var p TransactionExecuted
			var err error
			if p.TxHash, err = args.hash("txHash"); err != nil {
				return p, err
			}
			p.Executor, err = args.addr("executor")
			return p, err
		})
	case KindTransactionCancelled:
		return argStruct(func() (TransactionCancelled, error) {
			var p TransactionCancelled
			var err error
			if p.TxHash, err = args.hash("txHash"); err != nil {
				return p, err
			}
			p.Canceller, err = args.addr("canceller")
			return p, err
		})
	case KindOwnerAdded:
		return argStruct(func() (OwnerAdded, error) {
			owner, err := args.addr("owner")
			return OwnerAdded{Owner: owner}, err
		})
	case KindOwnerRemoved:
		return argStruct(func() (OwnerRemoved, error) {
			owner, err := args.addr("owner")
			return OwnerRemoved{Owner: owner}, err
		})
	case KindThresholdChanged:
		return argStruct(func() (ThresholdChanged, error) {
			threshold, err := args.bigInt("threshold")
			return ThresholdChanged{Threshold: threshold}, err
		})
	case KindModuleEnabled:
		return argStruct(func() (ModuleEnabled, error) {
			module, err := args.addr("module")
			return ModuleEnabled{Module: module}, err
		})
	case KindModuleDisabled:
		return argStruct(func() (ModuleDisabled, error) {
			module, err := args.addr("module")
			return ModuleDisabled{Module: module}, err
		})
	case KindReceived:
		return argStruct(func() (Received, error) {
			var p Received
			var err error
			if p.Sender, err = args.addr("sender"); err != nil {
				return p, err
			}
			p.Value, err = args.bigInt("value")
			return p, err
		})
	case KindRecoverySetup:
		return argStruct(func() (RecoverySetup, error) {
			var p RecoverySetup
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.Guardians, err = args.addrSlice("guardians"); err != nil {
				return p, err
			}
			if p.Threshold, err = args.bigInt("threshold"); err != nil {
				return p, err
			}
			p.RecoveryPeriod, err = args.bigInt("recoveryPeriod")
			return p, err
		})
	case KindRecoveryInitiated:
		return argStruct(func() (RecoveryInitiated, error) {
			var p RecoveryInitiated
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.RecoveryHash, err = args.hash("recoveryHash"); err != nil {
				return p, err
			}
			if p.NewOwners, err = args.addrSlice("newOwners"); err != nil {
				return p, err
			}
			if p.NewThreshold, err = args.bigInt("newThreshold"); err != nil {
				return p, err
			}
			p.Initiator, err = args.addr("initiator")
			return p, err
		})
	case KindRecoveryApproved:
		return argStruct(func() (RecoveryApproved, error) {
			var p RecoveryApproved
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.RecoveryHash, err = args.hash("recoveryHash"); err != nil {
				return p, err
			}
			p.Guardian, err = args.addr("guardian")
			return p, err
		})
	case KindRecoveryApprovalRevoked:
		return argStruct(func() (RecoveryApprovalRevoked, error) {
			var p RecoveryApprovalRevoked
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.RecoveryHash, err = args.hash("recoveryHash"); err != nil {
				return p, err
			}
			p.Guardian, err = args.addr("guardian")
			return p, err
		})
	case KindRecoveryExecuted:
		return argStruct(func() (RecoveryExecuted, error) {
			var p RecoveryExecuted
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			p.RecoveryHash, err = args.hash("recoveryHash")
			return p, err
		})
	case KindRecoveryCancelled:
		return argStruct(func() (RecoveryCancelled, error) {
			var p RecoveryCancelled
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			p.RecoveryHash, err = args.hash("recoveryHash")
			return p, err
		})
	case KindDailyLimitSet:
		return argStruct(func() (DailyLimitSet, error) {
			var p DailyLimitSet
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			p.Limit, err = args.bigInt("limit")
			return p, err
		})
	case KindDailyLimitReset:
		return argStruct(func() (DailyLimitReset, error) {
			wallet, err := args.addr("wallet")
			return DailyLimitReset{Wallet: wallet}, err
		})
	case KindDailyLimitTransactionExecuted:
		return argStruct(func() (DailyLimitTransactionExecuted, error) {
			var p DailyLimitTransactionExecuted
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.To, err = args.addr("to"); err != nil {
				return p, err
			}
			if p.Value, err = args.bigInt("value"); err != nil {
				return p, err
			}
			p.RemainingLimit, err = args.bigInt("remainingLimit")
			return p, err
		})
	case KindAddressWhitelisted:
		return argStruct(func() (AddressWhitelisted, error) {
			var p AddressWhitelisted
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.Target, err = args.addr("target"); err != nil {
				return p, err
			}
			p.Limit, err = args.bigInt("limit")
			return p, err
		})
	case KindAddressRemovedFromWhitelist:
		return argStruct(func() (AddressRemovedFromWhitelist, error) {
			var p AddressRemovedFromWhitelist
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			p.Target, err = args.addr("target")
			return p, err
		})
	case KindWhitelistTransactionExecuted:
		return argStruct(func() (WhitelistTransactionExecuted, error) {
			var p WhitelistTransactionExecuted
			var err error
			if p.Wallet, err = args.addr("wallet"); err != nil {
				return p, err
			}
			if p.To, err = args.addr("to"); err != nil {
				return p, err
			}
			p.Value, err = args.bigInt("value")
			return p, err
		})
	default:
		return nil, fmt.Errorf("no payload builder for %s", kind)
	}
}

// argStruct adapts a typed builder to the interface-returning payload path.
func argStruct[T any](build func() (T, error)) (interface{}, error) {
	p, err := build()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// argMap holds the raw unpacked arguments of one log.
type argMap map[string]interface{}

func (m argMap) addr(name string) (string, error) {
	v, ok := m[name].(common.Address)
	if !ok {
		return "", fmt.Errorf("argument %q: want address, have %T", name, m[name])
	}
	return strings.ToLower(v.Hex()), nil
}

func (m argMap) addrSlice(name string) ([]string, error) {
	v, ok := m[name].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("argument %q: want address array, have %T", name, m[name])
	}
	out := make([]string, len(v))
	for i, a := range v {
		out[i] = strings.ToLower(a.Hex())
	}
	return out, nil
}

func (m argMap) bigInt(name string) (*big.Int, error) {
	v, ok := m[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("argument %q: want uint256, have %T", name, m[name])
	}
	return v, nil
}

// hash accepts both representations of bytes32: indexed topics surface as
// common.Hash, data fields as a fixed byte array.
func (m argMap) hash(name string) (string, error) {
	switch v := m[name].(type) {
	case common.Hash:
		return v.Hex(), nil
	case [32]byte:
		return hexutil.Encode(v[:]), nil
	default:
		return "", fmt.Errorf("argument %q: want bytes32, have %T", name, m[name])
	}
}

func (m argMap) bytes(name string) ([]byte, error) {
	v, ok := m[name].([]byte)
	if !ok {
		return nil, fmt.Errorf("argument %q: want bytes, have %T", name, m[name])
	}
	return v, nil
}
