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

// Package store is the typed gateway to the relational projection of chain
// state. Every write path validates and lowercases addresses and hashes at
// the boundary, duplicate inserts of ledger-like rows are swallowed, and the
// derived counters are maintained by database triggers rather than by this
// package.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	writeMeter     = metrics.NewRegisteredMeter("store/writes", nil)
	duplicateMeter = metrics.NewRegisteredMeter("store/duplicates", nil)
	errorMeter     = metrics.NewRegisteredMeter("store/errors", nil)
)

// Options configure the connection to the store.
type Options struct {
	// URL is the database connection string. When ServiceKey is set it
	// overrides the password embedded in the URL, so deployments can keep
	// the credential out of it.
	URL        string
	ServiceKey string

	// Schema selects the namespace all tables live in, isolating one
	// network's projection from another on a shared database.
	Schema string
}

// Store is the gateway handle. It is safe for concurrent use; the pipeline
// and the health probe share one instance.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger log.Logger
}

// Open connects, creates the configured schema when missing, and applies
// pending migrations.
func Open(ctx context.Context, opts Options, logger log.Logger) (*Store, error) {
	schema := opts.Schema
	if schema == "" {
		schema = "public"
	}
	if !schemaPattern.MatchString(schema) {
		return nil, &ValidationError{Field: "schema", Value: schema}
	}
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if opts.ServiceKey != "" {
		cfg.ConnConfig.Password = opts.ServiceKey
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.ConnConfig.RuntimeParams["application_name"] = "qwindex"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{pool: pool, schema: schema, logger: logger}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	if s.schema != "public" {
		ident := pgx.Identifier{s.schema}.Sanitize()
		if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
			return fmt.Errorf("create schema %s: %w", s.schema, err)
		}
	}
	return s.migrate(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports store reachability for the health probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// exec runs a write statement, wrapping failures with the operation name.
func (s *Store) exec(ctx context.Context, op, sql string, args ...interface{}) error {
	_, err := s.execRows(ctx, op, sql, args...)
	return err
}

// execRows runs a write statement and reports how many rows it touched, so
// callers can distinguish a fresh write from a replayed no-op.
func (s *Store) execRows(ctx context.Context, op, sql string, args ...interface{}) (int64, error) {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		errorMeter.Mark(1)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	writeMeter.Mark(1)
	return tag.RowsAffected(), nil
}

// execIdempotent runs an insert whose natural key makes duplicates
// meaningless. A unique violation is logged and swallowed; at-least-once
// delivery replays ledger rows and the first write already holds the truth.
// The returned flag is true only when a row was actually written.
func (s *Store) execIdempotent(ctx context.Context, op, sql string, args ...interface{}) (bool, error) {
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			duplicateMeter.Mark(1)
			s.logger.Debug("Duplicate insert swallowed", "op", op)
			return false, nil
		}
		errorMeter.Mark(1)
		return false, fmt.Errorf("%s: %w", op, err)
	}
	writeMeter.Mark(1)
	return true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
