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
)

// TxType classifies a proposed multisig transaction by its calldata.
type TxType string

const (
	TxTypeTransfer      TxType = "transfer"
	TxTypeModuleConfig  TxType = "module_config"
	TxTypeWalletAdmin   TxType = "wallet_admin"
	TxTypeRecoverySetup TxType = "recovery_setup"
	TxTypeExternalCall  TxType = "external_call"
	TxTypeUnknown       TxType = "unknown"
)

// DecodedCall is the classification result for one proposal's calldata. Its
// JSON form is stored verbatim as the transaction's decoded parameters.
type DecodedCall struct {
	Type     TxType                 `json:"-"`
	Function string                 `json:"function,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
}

// walletMethodsABIJSON lists the wallet functions the classifier recognises
// by selector.
const walletMethodsABIJSON = `[
	{"type":"function","name":"transfer","inputs":[
		{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"addOwner","inputs":[
		{"name":"owner","type":"address"}]},
	{"type":"function","name":"removeOwner","inputs":[
		{"name":"owner","type":"address"}]},
	{"type":"function","name":"changeThreshold","inputs":[
		{"name":"threshold","type":"uint256"}]},
	{"type":"function","name":"enableModule","inputs":[
		{"name":"module","type":"address"}]},
	{"type":"function","name":"disableModule","inputs":[
		{"name":"module","type":"address"}]},
	{"type":"function","name":"setDailyLimit","inputs":[
		{"name":"limit","type":"uint256"}]},
	{"type":"function","name":"addToWhitelist","inputs":[
		{"name":"target","type":"address"},{"name":"limit","type":"uint256"}]},
	{"type":"function","name":"removeFromWhitelist","inputs":[
		{"name":"target","type":"address"}]},
	{"type":"function","name":"setupRecovery","inputs":[
		{"name":"guardians","type":"address[]"},{"name":"threshold","type":"uint256"},{"name":"recoveryPeriod","type":"uint256"}]}
]`

var walletMethodsABI = mustABI(walletMethodsABIJSON)

// methodTypes assigns the transaction type to each recognised function.
var methodTypes = map[string]TxType{
	"transfer":            TxTypeTransfer,
	"addOwner":            TxTypeWalletAdmin,
	"removeOwner":         TxTypeWalletAdmin,
	"changeThreshold":     TxTypeWalletAdmin,
	"enableModule":        TxTypeModuleConfig,
	"disableModule":       TxTypeModuleConfig,
	"setDailyLimit":       TxTypeModuleConfig,
	"addToWhitelist":      TxTypeModuleConfig,
	"removeFromWhitelist": TxTypeModuleConfig,
	"setupRecovery":       TxTypeRecoverySetup,
}

// DecodeCalldata classifies proposal calldata. Empty data is a plain value
// transfer. A recognised selector yields its table entry, keeping the table
// type even when argument decoding fails. An unrecognised selector is a
// module configuration call when the target is a configured module address,
// an external call otherwise.
func (d *Decoder) DecodeCalldata(data []byte, targetIsModule bool) DecodedCall {
	if len(data) == 0 {
		return DecodedCall{Type: TxTypeTransfer}
	}
	if method, err := d.methods.MethodById(data); err == nil {
		txType := methodTypes[method.Name]
		values, err := method.Inputs.UnpackValues(data[4:])
		if err != nil {
			return DecodedCall{Type: txType, Function: "unknown", Args: rawArgs(data)}
		}
		args := make(map[string]interface{}, len(values))
		for i, input := range method.Inputs {
			args[inputName(input, i)] = neutralValue(values[i])
		}
		return DecodedCall{Type: txType, Function: method.Name, Args: args}
	}
	if targetIsModule {
		return DecodedCall{Type: TxTypeModuleConfig, Function: "unknown", Args: rawArgs(data)}
	}
	return DecodedCall{Type: TxTypeExternalCall, Function: "unknown", Args: rawArgs(data)}
}

func rawArgs(data []byte) map[string]interface{} {
	return map[string]interface{}{"rawData": hexutil.Encode(data)}
}

func inputName(input abi.Argument, i int) string {
	if input.Name != "" {
		return input.Name
	}
	return fmt.Sprintf("arg%d", i)
}

// neutralValue renders a decoded ABI value for JSON storage: big integers
// as decimal strings, addresses lowercased, byte blobs as hex.
func neutralValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return strings.ToLower(val.Hex())
	case []common.Address:
		out := make([]string, len(val))
		for i, a := range val {
			out[i] = strings.ToLower(a.Hex())
		}
		return out
	case common.Hash:
		return val.Hex()
	case [32]byte:
		return hexutil.Encode(val[:])
	case []byte:
		return hexutil.Encode(val)
	case bool:
		return val
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
