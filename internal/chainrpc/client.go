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

// Package chainrpc implements the typed client for the chain's JSON-RPC
// endpoint. All calls are rate limited through a shared token bucket and
// retried with exponential backoff before an error is surfaced to the
// pipeline.
package chainrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// methodPrefix is the chain's JSON-RPC namespace.
const methodPrefix = "quai"

var (
	// ErrBlockNotFound is returned when the node reports no block, or a
	// block without a usable timestamp, for a requested height.
	ErrBlockNotFound = errors.New("block not found or missing timestamp")

	// errMalformedLogs marks a getLogs response whose result was neither
	// null nor an array of log objects. Such responses are retried, since
	// intermediate proxies occasionally emit empty or truncated payloads.
	errMalformedLogs = errors.New("malformed getLogs response")
)

var (
	requestMeter   = metrics.NewRegisteredMeter("chainrpc/requests", nil)
	retryMeter     = metrics.NewRegisteredMeter("chainrpc/retries", nil)
	failureMeter   = metrics.NewRegisteredMeter("chainrpc/failures", nil)
	cacheHitMeter  = metrics.NewRegisteredMeter("chainrpc/tscache/hits", nil)
	cacheMissMeter = metrics.NewRegisteredMeter("chainrpc/tscache/misses", nil)
)

// Transport is the JSON-RPC call surface the client runs on. It is satisfied
// by *rpc.Client and by test doubles.
type Transport interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// Options tune the client. The zero value selects the documented defaults.
type Options struct {
	// RateLimit is the number of requests admitted per RateWindow.
	RateLimit  int
	RateWindow time.Duration

	// MaxAttempts bounds the total tries per logical call.
	MaxAttempts int

	// TimestampCacheSize is the capacity of the block timestamp LRU.
	TimestampCacheSize int
}

func (o Options) withDefaults() Options {
	if o.RateLimit <= 0 {
		o.RateLimit = 50
	}
	if o.RateWindow <= 0 {
		o.RateWindow = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.TimestampCacheSize <= 0 {
		o.TimestampCacheSize = 1000
	}
	return o
}

// Client is a rate-limited, retrying JSON-RPC client with a block timestamp
// cache. It is used from the single pipeline goroutine and by the health
// probe's head check; both paths go through the same limiter.
type Client struct {
	transport  Transport
	limiter    *rate.Limiter
	attempts   int
	timestamps *lru.Cache[uint64, uint64]
	newBackOff func() backoff.BackOff
	logger     log.Logger
}

// Dial connects to the endpoint and wraps it in a Client. When wsURL is
// non-empty the websocket endpoint is used as the transport; polling remains
// the only consumption model either way.
func Dial(ctx context.Context, rpcURL, wsURL string, opts Options, logger log.Logger) (*Client, error) {
	endpoint := rpcURL
	if wsURL != "" {
		endpoint = wsURL
	}
	raw, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return NewClient(raw, opts, logger)
}

// NewClient wraps an established transport. It is split from Dial so tests
// can substitute the transport.
func NewClient(transport Transport, opts Options, logger log.Logger) (*Client, error) {
	opts = opts.withDefaults()
	cache, err := lru.New[uint64, uint64](opts.TimestampCacheSize)
	if err != nil {
		return nil, err
	}
	interval := rate.Every(opts.RateWindow / time.Duration(opts.RateLimit))
	return &Client{
		transport:  transport,
		limiter:    rate.NewLimiter(interval, opts.RateLimit),
		attempts:   opts.MaxAttempts,
		timestamps: cache,
		newBackOff: defaultBackOff,
		logger:     logger,
	}, nil
}

// defaultBackOff is the production retry policy: exponential from 1s,
// doubling, capped at 30s. The attempt budget is applied per call.
func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

// Close tears down the underlying transport.
func (c *Client) Close() {
	c.transport.Close()
}

// do runs op under the rate limiter and retry policy. Every error except a
// backoff.Permanent is retried uniformly; the last error is surfaced once
// the attempt budget is spent.
func (c *Client) do(ctx context.Context, name string, op func(context.Context) error) error {
	attempt := 0
	wrapped := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		requestMeter.Mark(1)
		attempt++
		err := op(ctx)
		if err != nil && attempt < c.attempts {
			retryMeter.Mark(1)
			c.logger.Debug("RPC call failed, retrying", "method", name, "attempt", attempt, "err", err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.attempts-1)), ctx)
	if err := backoff.Retry(wrapped, policy); err != nil {
		failureMeter.Mark(1)
		return fmt.Errorf("%s_%s: %w", methodPrefix, name, err)
	}
	return nil
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	err := c.do(ctx, "blockNumber", func(ctx context.Context) error {
		return c.transport.CallContext(ctx, &head, methodPrefix+"_blockNumber")
	})
	return uint64(head), err
}

// Query selects the logs to fetch. Addresses may hold one or many contract
// addresses; Topics follows the positional OR-of-ANDs filter convention.
type Query struct {
	Addresses []string
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// filterArg is the wire form of a Query. A single address is encoded as a
// bare string since some providers reject one-element arrays.
type filterArg struct {
	Address   interface{}     `json:"address,omitempty"`
	Topics    [][]common.Hash `json:"topics,omitempty"`
	FromBlock string          `json:"fromBlock"`
	ToBlock   string          `json:"toBlock"`
}

func (q Query) wire() filterArg {
	arg := filterArg{
		Topics:    q.Topics,
		FromBlock: hexutil.EncodeUint64(q.FromBlock),
		ToBlock:   hexutil.EncodeUint64(q.ToBlock),
	}
	// Providers filter address fields case-sensitively, so lowercase here
	// regardless of what the caller held.
	lowered := make([]string, len(q.Addresses))
	for i, addr := range q.Addresses {
		lowered[i] = strings.ToLower(addr)
	}
	switch len(lowered) {
	case 0:
	case 1:
		arg.Address = lowered[0]
	default:
		arg.Address = lowered
	}
	return arg
}

// FilterLogs fetches the logs matching q. A null result is an empty slice;
// any other non-array result is malformed and retried.
func (c *Client) FilterLogs(ctx context.Context, q Query) ([]types.Log, error) {
	var logs []types.Log
	err := c.do(ctx, "getLogs", func(ctx context.Context) error {
		logs = nil
		err := c.transport.CallContext(ctx, &logs, methodPrefix+"_getLogs", q.wire())
		if errors.Is(err, rpc.ErrNoResult) {
			return nil
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %v", errMalformedLogs, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// callArg is the wire form of a read-only contract call.
type callArg struct {
	To   string        `json:"to"`
	Data hexutil.Bytes `json:"data"`
}

// Call executes a read-only contract call pinned to the given block height,
// so projections derived from it are consistent with the event that
// triggered the read.
func (c *Client) Call(ctx context.Context, to string, data []byte, blockNumber uint64) ([]byte, error) {
	var out hexutil.Bytes
	arg := callArg{To: strings.ToLower(to), Data: data}
	err := c.do(ctx, "call", func(ctx context.Context) error {
		return c.transport.CallContext(ctx, &out, methodPrefix+"_call", arg, hexutil.EncodeUint64(blockNumber))
	})
	return out, err
}

// rpcBlock carries the two places a block timestamp can live. The work
// object header is authoritative; older nodes expose a flat field.
type rpcBlock struct {
	WoHeader struct {
		Timestamp *hexutil.Uint64 `json:"timestamp"`
	} `json:"woHeader"`
	Timestamp *hexutil.Uint64 `json:"timestamp"`
}

// BlockTimestamp returns the unix timestamp of block n, consulting the LRU
// cache first. Cache hits refresh recency and never touch the wire.
func (c *Client) BlockTimestamp(ctx context.Context, n uint64) (uint64, error) {
	if ts, ok := c.timestamps.Get(n); ok {
		cacheHitMeter.Mark(1)
		return ts, nil
	}
	cacheMissMeter.Mark(1)

	var block rpcBlock
	err := c.do(ctx, "getBlockByNumber", func(ctx context.Context) error {
		err := c.transport.CallContext(ctx, &block, methodPrefix+"_getBlockByNumber", hexutil.EncodeUint64(n), false)
		if errors.Is(err, rpc.ErrNoResult) {
			return backoff.Permanent(ErrBlockNotFound)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	var ts uint64
	switch {
	case block.WoHeader.Timestamp != nil:
		ts = uint64(*block.WoHeader.Timestamp)
	case block.Timestamp != nil:
		ts = uint64(*block.Timestamp)
	default:
		return 0, fmt.Errorf("block %d: %w", n, ErrBlockNotFound)
	}
	c.timestamps.Add(n, ts)
	return ts, nil
}
