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
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrTruncatedData reports return data too short for its declared
	// shape.
	ErrTruncatedData = errors.New("return data truncated")

	// ErrLengthOutOfRange reports an address array whose declared length
	// exceeds the sanity bound. Contract return data is attacker-influenced,
	// so an absurd length aborts instead of allocating.
	ErrLengthOutOfRange = errors.New("address array length out of range")
)

// maxAddressArrayLen bounds how many addresses a contract read-back may
// declare.
const maxAddressArrayLen = 1000

// DecodeAddressArray decodes the return data of a call yielding address[]:
// a 32-byte offset to the array head, a 32-byte element count, then one
// address per 32-byte slot, occupying the low 20 bytes. Addresses are
// returned lowercased.
func DecodeAddressArray(ret []byte) ([]string, error) {
	if len(ret) < 64 {
		return nil, fmt.Errorf("%w: have %d bytes, want at least 64", ErrTruncatedData, len(ret))
	}
	offset := new(big.Int).SetBytes(ret[:32])
	if !offset.IsUint64() || offset.Uint64()+32 > uint64(len(ret)) {
		return nil, fmt.Errorf("%w: array offset %s out of bounds", ErrTruncatedData, offset)
	}
	head := offset.Uint64()
	count := new(big.Int).SetBytes(ret[head : head+32])
	if !count.IsUint64() || count.Uint64() > maxAddressArrayLen {
		return nil, fmt.Errorf("%w: declared length %s", ErrLengthOutOfRange, count)
	}
	n := count.Uint64()
	if need := head + 32 + 32*n; uint64(len(ret)) < need {
		return nil, fmt.Errorf("%w: have %d bytes, want %d for %d elements", ErrTruncatedData, len(ret), need, n)
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		slot := ret[head+32+32*i : head+64+32*i]
		out = append(out, strings.ToLower(common.BytesToAddress(slot).Hex()))
	}
	return out, nil
}

// DecodeUint256 decodes the return data of a call yielding a single uint256.
func DecodeUint256(ret []byte) (*big.Int, error) {
	if len(ret) < 32 {
		return nil, fmt.Errorf("%w: have %d bytes, want 32", ErrTruncatedData, len(ret))
	}
	return new(big.Int).SetBytes(ret[:32]), nil
}
