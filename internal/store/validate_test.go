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
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestNormAddress(t *testing.T) {
	got, err := normAddress("wallet_address", "0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B")
	require.NoError(t, err)
	require.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", got)

	// Idempotent: normalising twice changes nothing.
	again, err := normAddress("wallet_address", got)
	require.NoError(t, err)
	require.Equal(t, got, again)

	for _, bad := range []string{
		"",
		"0x",
		"ab5801a7d398351b8be11c439e05c5b3259aec9b", // missing prefix
		"0xab5801a7d398351b8be11c439e05c5b3259aec",  // short
		"0xab5801a7d398351b8be11c439e05c5b3259aeczz",
	} {
		_, err := normAddress("wallet_address", bad)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "input %q", bad)
		require.Equal(t, "wallet_address", verr.Field)
		require.Equal(t, bad, verr.Value)
	}
}

func TestNormAddresses(t *testing.T) {
	got, err := normAddresses("new_owners", []string{
		"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}, got)

	_, err = normAddresses("new_owners", []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "nope"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNormHash(t *testing.T) {
	in := "0x" + strings.Repeat("AB", 32)
	got, err := normHash("tx_hash", in)
	require.NoError(t, err)
	require.Equal(t, "0x"+strings.Repeat("ab", 32), got)

	for _, bad := range []string{
		"",
		"0x1234",
		strings.Repeat("ab", 32),        // missing prefix
		"0x" + strings.Repeat("ab", 31), // short
		"0x" + strings.Repeat("zz", 32),
	} {
		_, err := normHash("tx_hash", bad)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "input %q", bad)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "owner_address", Value: "bogus"}
	require.Equal(t, `invalid owner_address: "bogus"`, err.Error())
}

func TestSchemaPattern(t *testing.T) {
	for _, ok := range []string{"public", "testnet", "mainnet_v2", "_scratch"} {
		require.True(t, schemaPattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "Public", "1schema", "drop;table", "a-b"} {
		require.False(t, schemaPattern.MatchString(bad), bad)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.True(t, isUniqueViolation(fmt.Errorf("insert owner: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(errors.New("boom")))
	require.False(t, isUniqueViolation(nil))
}

func TestMigrationsEmbeddedInOrder(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		require.True(t, strings.HasSuffix(e.Name(), ".sql"), e.Name())
		names = append(names, e.Name())
	}
	require.True(t, sort.StringsAreSorted(names))
	require.Equal(t, "0001_schema.sql", names[0])

	// The schema file must create every projected table.
	body, err := migrationFS.ReadFile("migrations/0001_schema.sql")
	require.NoError(t, err)
	for _, table := range []string{
		"wallets", "wallet_owners", "wallet_modules", "transactions",
		"confirmations", "deposits", "recovery_configs", "recovery_guardians",
		"recoveries", "recovery_approvals", "daily_limit_states",
		"whitelist_entries", "module_transactions", "indexer_checkpoint",
	} {
		require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table, table)
	}

	body, err = migrationFS.ReadFile("migrations/0002_triggers.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "refresh_confirmation_count")
	require.Contains(t, string(body), "refresh_approval_count")
	require.Contains(t, string(body), "increment_owner_count")
}
