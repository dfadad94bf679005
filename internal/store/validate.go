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
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidationError reports a malformed address or hash reaching the store
// boundary. It aborts the batch: a bad identifier is an upstream bug, not a
// transient condition.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

var (
	hashPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// normAddress validates a chain address and lowercases it. The 0x prefix is
// required so every stored key has one canonical spelling.
func normAddress(field, value string) (string, error) {
	if !strings.HasPrefix(value, "0x") || !common.IsHexAddress(value) {
		return "", &ValidationError{Field: field, Value: value}
	}
	return strings.ToLower(value), nil
}

// normAddresses validates and lowercases a slice in place order.
func normAddresses(field string, values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		normed, err := normAddress(field, v)
		if err != nil {
			return nil, err
		}
		out[i] = normed
	}
	return out, nil
}

// normHash validates a 32-byte hex hash and lowercases it.
func normHash(field, value string) (string, error) {
	if !hashPattern.MatchString(value) {
		return "", &ValidationError{Field: field, Value: value}
	}
	return strings.ToLower(value), nil
}
