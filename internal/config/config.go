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

// Package config resolves the indexer configuration from the process
// environment, optionally seeded from a dotenv file.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Defaults for every optional key. Required keys have none.
const (
	DefaultRPCURL             = "https://rpc.quai.network"
	DefaultBatchSize          = 1000
	DefaultPollInterval       = 5000 * time.Millisecond
	DefaultStartBlock         = 0
	DefaultConfirmations      = 2
	DefaultLogLevel           = "info"
	DefaultLogFile            = "qwindex.log"
	DefaultHealthPort         = 3000
	DefaultMaxBlocksBehind    = 100
	DefaultRateLimitMax       = 50
	DefaultRateLimitWindow    = 1000 * time.Millisecond
	DefaultTimestampCacheSize = 1000
	DefaultStoreSchema        = "public"
)

// Module identifies one of the optional wallet extension contracts.
type Module string

const (
	ModuleDailyLimit     Module = "daily_limit"
	ModuleWhitelist      Module = "whitelist"
	ModuleSocialRecovery Module = "social_recovery"
)

// Config carries every runtime setting of the indexer. Addresses are
// normalised to lowercase at load time so that all later comparisons are
// byte-wise.
type Config struct {
	// Chain access.
	RPCURL string
	WSURL  string // optional websocket endpoint; used as transport only

	// Store access.
	StoreURL        string
	StoreServiceKey string
	StoreSchema     string

	// Contract addresses.
	FactoryAddress    string
	WalletImplAddress string
	ModuleAddrs       map[Module]string // absent key = module disabled

	// Pipeline tuning.
	BatchSize     uint64
	PollInterval  time.Duration
	StartBlock    uint64
	Confirmations uint64

	// Logging.
	LogLevel  string
	LogToFile bool
	LogFile   string

	// Health surface.
	HealthEnabled   bool
	HealthPort      int
	MaxBlocksBehind uint64

	// RPC client limits.
	RateLimitMax       int
	RateLimitWindow    time.Duration
	TimestampCacheSize int
}

// MissingKeysError reports every required environment key that was absent,
// so a misconfigured deployment fails once with the full list.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// LoadEnvFile seeds the process environment from the given dotenv file.
// A missing file is only an error when the path was explicitly requested.
func LoadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err != nil && os.IsNotExist(err) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from the process environment, applying defaults
// and validating address shapes. Missing required keys are reported
// together via MissingKeysError.
func FromEnv() (*Config, error) {
	cfg := &Config{
		RPCURL:          getenv("RPC_URL", DefaultRPCURL),
		WSURL:           os.Getenv("WS_URL"),
		StoreURL:        os.Getenv("STORE_URL"),
		StoreServiceKey: os.Getenv("STORE_SERVICE_KEY"),
		StoreSchema:     getenv("STORE_SCHEMA", DefaultStoreSchema),
		LogLevel:        getenv("LOG_LEVEL", DefaultLogLevel),
		LogFile:         getenv("LOG_FILE", DefaultLogFile),
		ModuleAddrs:     make(map[Module]string),
	}

	var missing []string
	for _, key := range []string{"STORE_URL", "STORE_SERVICE_KEY", "FACTORY_ADDRESS", "WALLET_IMPL_ADDRESS"} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingKeysError{Keys: missing}
	}

	var err error
	if cfg.FactoryAddress, err = address("FACTORY_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.WalletImplAddress, err = address("WALLET_IMPL_ADDRESS"); err != nil {
		return nil, err
	}
	for key, mod := range map[string]Module{
		"DAILY_LIMIT_MODULE":     ModuleDailyLimit,
		"WHITELIST_MODULE":       ModuleWhitelist,
		"SOCIAL_RECOVERY_MODULE": ModuleSocialRecovery,
	} {
		if os.Getenv(key) == "" {
			continue
		}
		addr, err := address(key)
		if err != nil {
			return nil, err
		}
		cfg.ModuleAddrs[mod] = addr
	}

	if cfg.BatchSize, err = envUint("BATCH_SIZE", DefaultBatchSize); err != nil {
		return nil, err
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive")
	}
	if cfg.PollInterval, err = envMillis("POLL_INTERVAL_MS", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.StartBlock, err = envUint("START_BLOCK", DefaultStartBlock); err != nil {
		return nil, err
	}
	if cfg.Confirmations, err = envUint("CONFIRMATIONS", DefaultConfirmations); err != nil {
		return nil, err
	}
	if cfg.LogToFile, err = envBool("LOG_TO_FILE", false); err != nil {
		return nil, err
	}
	if cfg.HealthEnabled, err = envBool("HEALTH_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.HealthPort, err = envInt("HEALTH_PORT", DefaultHealthPort); err != nil {
		return nil, err
	}
	if cfg.MaxBlocksBehind, err = envUint("MAX_BLOCKS_BEHIND", DefaultMaxBlocksBehind); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", DefaultRateLimitMax); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envMillis("RATE_LIMIT_WINDOW_MS", DefaultRateLimitWindow); err != nil {
		return nil, err
	}
	if cfg.TimestampCacheSize, err = envInt("TIMESTAMP_CACHE_SIZE", DefaultTimestampCacheSize); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ModuleAddresses returns the configured module contract addresses in a
// stable order, for log filters and wire requests.
func (c *Config) ModuleAddresses() []string {
	addrs := make([]string, 0, len(c.ModuleAddrs))
	for _, mod := range []Module{ModuleDailyLimit, ModuleWhitelist, ModuleSocialRecovery} {
		if addr, ok := c.ModuleAddrs[mod]; ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// ModuleAt reports which module, if any, is deployed at addr. The lookup is
// case-insensitive since configured addresses are stored lowercased.
func (c *Config) ModuleAt(addr string) (Module, bool) {
	addr = strings.ToLower(addr)
	for mod, configured := range c.ModuleAddrs {
		if configured == addr {
			return mod, true
		}
	}
	return "", false
}

func address(key string) (string, error) {
	value := os.Getenv(key)
	if !common.IsHexAddress(value) {
		return "", fmt.Errorf("%s: %q is not a valid address", key, value)
	}
	return strings.ToLower(value), nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envMillis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
