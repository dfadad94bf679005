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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quaiwallet/indexer/internal/config"
)

var (
	envFileFlag = &cli.StringFlag{
		Name:  "env-file",
		Usage: "dotenv file loaded into the environment before flags resolve",
		Value: ".env",
	}

	rpcURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "chain JSON-RPC endpoint",
		Value:   config.DefaultRPCURL,
		EnvVars: []string{"RPC_URL"},
	}
	wsURLFlag = &cli.StringFlag{
		Name:    "ws-url",
		Usage:   "optional websocket endpoint used as the transport",
		EnvVars: []string{"WS_URL"},
	}
	storeURLFlag = &cli.StringFlag{
		Name:    "store-url",
		Usage:   "database connection string",
		EnvVars: []string{"STORE_URL"},
	}
	storeServiceKeyFlag = &cli.StringFlag{
		Name:    "store-service-key",
		Usage:   "database credential, overrides the password in the URL",
		EnvVars: []string{"STORE_SERVICE_KEY"},
	}
	storeSchemaFlag = &cli.StringFlag{
		Name:    "store-schema",
		Usage:   "database schema holding the projection tables",
		Value:   config.DefaultStoreSchema,
		EnvVars: []string{"STORE_SCHEMA"},
	}
	factoryAddressFlag = &cli.StringFlag{
		Name:    "factory-address",
		Usage:   "wallet factory contract address",
		EnvVars: []string{"FACTORY_ADDRESS"},
	}
	walletImplAddressFlag = &cli.StringFlag{
		Name:    "wallet-impl-address",
		Usage:   "wallet implementation contract address",
		EnvVars: []string{"WALLET_IMPL_ADDRESS"},
	}
	dailyLimitModuleFlag = &cli.StringFlag{
		Name:    "daily-limit-module",
		Usage:   "daily limit module address (empty disables)",
		EnvVars: []string{"DAILY_LIMIT_MODULE"},
	}
	whitelistModuleFlag = &cli.StringFlag{
		Name:    "whitelist-module",
		Usage:   "whitelist module address (empty disables)",
		EnvVars: []string{"WHITELIST_MODULE"},
	}
	socialRecoveryModuleFlag = &cli.StringFlag{
		Name:    "social-recovery-module",
		Usage:   "social recovery module address (empty disables)",
		EnvVars: []string{"SOCIAL_RECOVERY_MODULE"},
	}
	batchSizeFlag = &cli.Uint64Flag{
		Name:    "batch-size",
		Usage:   "blocks per backfill window",
		Value:   config.DefaultBatchSize,
		EnvVars: []string{"BATCH_SIZE"},
	}
	pollIntervalFlag = &cli.Uint64Flag{
		Name:    "poll-interval-ms",
		Usage:   "head poll interval in milliseconds",
		Value:   5000,
		EnvVars: []string{"POLL_INTERVAL_MS"},
	}
	startBlockFlag = &cli.Uint64Flag{
		Name:    "start-block",
		Usage:   "lowest block ever indexed",
		EnvVars: []string{"START_BLOCK"},
	}
	confirmationsFlag = &cli.Uint64Flag{
		Name:    "confirmations",
		Usage:   "blocks held back from the head before indexing",
		Value:   config.DefaultConfirmations,
		EnvVars: []string{"CONFIRMATIONS"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "log verbosity (trace|debug|info|warn|error|crit)",
		Value:   config.DefaultLogLevel,
		EnvVars: []string{"LOG_LEVEL"},
	}
	logToFileFlag = &cli.BoolFlag{
		Name:    "log-to-file",
		Usage:   "write JSON logs to a rotated file instead of stderr",
		EnvVars: []string{"LOG_TO_FILE"},
	}
	logFileFlag = &cli.StringFlag{
		Name:    "log-file",
		Usage:   "log file path when file logging is on",
		Value:   config.DefaultLogFile,
		EnvVars: []string{"LOG_FILE"},
	}
	healthEnabledFlag = &cli.BoolFlag{
		Name:    "health-enabled",
		Usage:   "serve the health probe endpoints",
		Value:   true,
		EnvVars: []string{"HEALTH_ENABLED"},
	}
	healthPortFlag = &cli.IntFlag{
		Name:    "health-port",
		Usage:   "health probe listen port",
		Value:   config.DefaultHealthPort,
		EnvVars: []string{"HEALTH_PORT"},
	}
	maxBlocksBehindFlag = &cli.Uint64Flag{
		Name:    "max-blocks-behind",
		Usage:   "indexing lag tolerated before the probe reports unhealthy",
		Value:   config.DefaultMaxBlocksBehind,
		EnvVars: []string{"MAX_BLOCKS_BEHIND"},
	}
	rateLimitMaxFlag = &cli.IntFlag{
		Name:    "rate-limit-max",
		Usage:   "RPC requests admitted per rate window",
		Value:   config.DefaultRateLimitMax,
		EnvVars: []string{"RATE_LIMIT_MAX"},
	}
	rateLimitWindowFlag = &cli.Uint64Flag{
		Name:    "rate-limit-window-ms",
		Usage:   "RPC rate window in milliseconds",
		Value:   1000,
		EnvVars: []string{"RATE_LIMIT_WINDOW_MS"},
	}
	timestampCacheSizeFlag = &cli.IntFlag{
		Name:    "timestamp-cache-size",
		Usage:   "block timestamp LRU capacity",
		Value:   config.DefaultTimestampCacheSize,
		EnvVars: []string{"TIMESTAMP_CACHE_SIZE"},
	}

	backfillFromFlag = &cli.Uint64Flag{
		Name:     "from",
		Usage:    "first block of the range",
		Required: true,
		EnvVars:  []string{"BACKFILL_FROM"},
	}
	backfillToFlag = &cli.Uint64Flag{
		Name:     "to",
		Usage:    "last block of the range",
		Required: true,
		EnvVars:  []string{"BACKFILL_TO"},
	}
)

// flagEnv maps each configuration flag to the environment key the loader
// reads. Set flags are pushed back into the environment so that parsing and
// validation stay in one place.
var flagEnv = []struct {
	flag cli.Flag
	key  string
}{
	{rpcURLFlag, "RPC_URL"},
	{wsURLFlag, "WS_URL"},
	{storeURLFlag, "STORE_URL"},
	{storeServiceKeyFlag, "STORE_SERVICE_KEY"},
	{storeSchemaFlag, "STORE_SCHEMA"},
	{factoryAddressFlag, "FACTORY_ADDRESS"},
	{walletImplAddressFlag, "WALLET_IMPL_ADDRESS"},
	{dailyLimitModuleFlag, "DAILY_LIMIT_MODULE"},
	{whitelistModuleFlag, "WHITELIST_MODULE"},
	{socialRecoveryModuleFlag, "SOCIAL_RECOVERY_MODULE"},
	{batchSizeFlag, "BATCH_SIZE"},
	{pollIntervalFlag, "POLL_INTERVAL_MS"},
	{startBlockFlag, "START_BLOCK"},
	{confirmationsFlag, "CONFIRMATIONS"},
	{logLevelFlag, "LOG_LEVEL"},
	{logToFileFlag, "LOG_TO_FILE"},
	{logFileFlag, "LOG_FILE"},
	{healthEnabledFlag, "HEALTH_ENABLED"},
	{healthPortFlag, "HEALTH_PORT"},
	{maxBlocksBehindFlag, "MAX_BLOCKS_BEHIND"},
	{rateLimitMaxFlag, "RATE_LIMIT_MAX"},
	{rateLimitWindowFlag, "RATE_LIMIT_WINDOW_MS"},
	{timestampCacheSizeFlag, "TIMESTAMP_CACHE_SIZE"},
}

func configFlags() []cli.Flag {
	fl := make([]cli.Flag, len(flagEnv))
	for i, fe := range flagEnv {
		fl[i] = fe.flag
	}
	return fl
}

// loadConfig resolves the effective configuration: explicitly set flags win
// over environment keys, which win over defaults.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	for _, fe := range flagEnv {
		name := fe.flag.Names()[0]
		if !ctx.IsSet(name) {
			continue
		}
		if err := os.Setenv(fe.key, fmt.Sprint(ctx.Value(name))); err != nil {
			return nil, err
		}
	}
	return config.FromEnv()
}

// setupLogging builds the process logger: a colored terminal handler on
// stderr, or a JSON handler over a rotated file when file logging is on.
// The returned closer is non-nil only in the file case.
func setupLogging(cfg *config.Config) (log.Logger, io.Closer, error) {
	level, err := logLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var (
		handler slog.Handler
		closer  io.Closer
	)
	if cfg.LogToFile {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			Compress:   true,
		}
		handler = log.JSONHandlerWithLevel(rotator, level)
		closer = rotator
	} else {
		useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, level, useColor)
	}

	logger := log.NewLogger(handler)
	log.SetDefault(logger)
	return logger, closer, nil
}

func logLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
