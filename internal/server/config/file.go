package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for file decoding. Durations go through
// timex.Duration so files can say "30s"; amounts are strings like "1.500".
type fileConfig struct {
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr" toml:"grpc_addr"`
	OpsAddr  string `json:"ops_addr" yaml:"ops_addr" toml:"ops_addr"`

	StorageMode string `json:"storage" yaml:"storage" toml:"storage"`
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn" toml:"database_dsn"`

	GatewayMode  string         `json:"gateway" yaml:"gateway" toml:"gateway"`
	MockNetwork  string         `json:"mock_network" yaml:"mock_network" toml:"mock_network"`
	RPCEndpoint  string         `json:"rpc_endpoint" yaml:"rpc_endpoint" toml:"rpc_endpoint"`
	RPCToken     string         `json:"rpc_token" yaml:"rpc_token" toml:"rpc_token"`
	RPCRateLimit float64        `json:"rpc_rate_limit" yaml:"rpc_rate_limit" toml:"rpc_rate_limit"`
	RPCBurst     int            `json:"rpc_burst" yaml:"rpc_burst" toml:"rpc_burst"`
	RPCTimeout   timex.Duration `json:"rpc_timeout" yaml:"rpc_timeout" toml:"rpc_timeout"`

	RetryAttempts       int            `json:"retry_attempts" yaml:"retry_attempts" toml:"retry_attempts"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay" toml:"retry_base_delay"`
	RetryMaxDelay       timex.Duration `json:"retry_max_delay" yaml:"retry_max_delay" toml:"retry_max_delay"`
	RetryAttemptTimeout timex.Duration `json:"retry_attempt_timeout" yaml:"retry_attempt_timeout" toml:"retry_attempt_timeout"`

	SubmitTimeout      timex.Duration `json:"submit_timeout" yaml:"submit_timeout" toml:"submit_timeout"`
	ConfirmTimeout     timex.Duration `json:"confirm_timeout" yaml:"confirm_timeout" toml:"confirm_timeout"`
	ConfirmPoll        timex.Duration `json:"confirm_poll" yaml:"confirm_poll" toml:"confirm_poll"`
	MaxInFlightPerUser int            `json:"max_in_flight_per_user" yaml:"max_in_flight_per_user" toml:"max_in_flight_per_user"`

	SyncInterval    timex.Duration `json:"sync_interval" yaml:"sync_interval" toml:"sync_interval"`
	SyncPageSize    int            `json:"sync_page_size" yaml:"sync_page_size" toml:"sync_page_size"`
	SyncWaitTimeout timex.Duration `json:"sync_wait_timeout" yaml:"sync_wait_timeout" toml:"sync_wait_timeout"`
	SyncWorkers     int            `json:"sync_workers" yaml:"sync_workers" toml:"sync_workers"`

	CacheMode string         `json:"cache" yaml:"cache" toml:"cache"`
	CacheTTL  timex.Duration `json:"cache_ttl" yaml:"cache_ttl" toml:"cache_ttl"`
	RedisAddr string         `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisDB   int            `json:"redis_db" yaml:"redis_db" toml:"redis_db"`

	LogBackend string `json:"log_backend" yaml:"log_backend" toml:"log_backend"`
	LogFormat  string `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogLevel   string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile    string `json:"log_file" yaml:"log_file" toml:"log_file"`

	LowBalance money.HP `json:"low_balance_threshold" yaml:"low_balance_threshold" toml:"low_balance_threshold"`
}

func d(v time.Duration) timex.Duration { return timex.Duration{Duration: v} }

func toFile(c *Config) fileConfig {
	return fileConfig{
		GRPCAddr:            c.GRPCAddr,
		OpsAddr:             c.OpsAddr,
		StorageMode:         c.StorageMode,
		DatabaseDSN:         c.DatabaseDSN,
		GatewayMode:         c.GatewayMode,
		MockNetwork:         c.MockNetwork,
		RPCEndpoint:         c.RPCEndpoint,
		RPCToken:            c.RPCToken,
		RPCRateLimit:        c.RPCRateLimit,
		RPCBurst:            c.RPCBurst,
		RPCTimeout:          d(c.RPCTimeout),
		RetryAttempts:       c.RetryAttempts,
		RetryBaseDelay:      d(c.RetryBaseDelay),
		RetryMaxDelay:       d(c.RetryMaxDelay),
		RetryAttemptTimeout: d(c.RetryAttemptTimeout),
		SubmitTimeout:       d(c.SubmitTimeout),
		ConfirmTimeout:      d(c.ConfirmTimeout),
		ConfirmPoll:         d(c.ConfirmPoll),
		MaxInFlightPerUser:  c.MaxInFlightPerUser,
		SyncInterval:        d(c.SyncInterval),
		SyncPageSize:        c.SyncPageSize,
		SyncWaitTimeout:     d(c.SyncWaitTimeout),
		SyncWorkers:         c.SyncWorkers,
		CacheMode:           c.CacheMode,
		CacheTTL:            d(c.CacheTTL),
		RedisAddr:           c.RedisAddr,
		RedisDB:             c.RedisDB,
		LogBackend:          c.LogBackend,
		LogFormat:           c.LogFormat,
		LogLevel:            c.LogLevel,
		LogFile:             c.LogFile,
		LowBalance:          c.LowBalance,
	}
}

func (f fileConfig) apply(c *Config) {
	*c = Config{
		GRPCAddr:            f.GRPCAddr,
		OpsAddr:             f.OpsAddr,
		StorageMode:         f.StorageMode,
		DatabaseDSN:         f.DatabaseDSN,
		GatewayMode:         f.GatewayMode,
		MockNetwork:         f.MockNetwork,
		RPCEndpoint:         f.RPCEndpoint,
		RPCToken:            f.RPCToken,
		RPCRateLimit:        f.RPCRateLimit,
		RPCBurst:            f.RPCBurst,
		RPCTimeout:          f.RPCTimeout.Duration,
		RetryAttempts:       f.RetryAttempts,
		RetryBaseDelay:      f.RetryBaseDelay.Duration,
		RetryMaxDelay:       f.RetryMaxDelay.Duration,
		RetryAttemptTimeout: f.RetryAttemptTimeout.Duration,
		SubmitTimeout:       f.SubmitTimeout.Duration,
		ConfirmTimeout:      f.ConfirmTimeout.Duration,
		ConfirmPoll:         f.ConfirmPoll.Duration,
		MaxInFlightPerUser:  f.MaxInFlightPerUser,
		SyncInterval:        f.SyncInterval.Duration,
		SyncPageSize:        f.SyncPageSize,
		SyncWaitTimeout:     f.SyncWaitTimeout.Duration,
		SyncWorkers:         f.SyncWorkers,
		CacheMode:           f.CacheMode,
		CacheTTL:            f.CacheTTL.Duration,
		RedisAddr:           f.RedisAddr,
		RedisDB:             f.RedisDB,
		LogBackend:          f.LogBackend,
		LogFormat:           f.LogFormat,
		LogLevel:            f.LogLevel,
		LogFile:             f.LogFile,
		LowBalance:          f.LowBalance,
	}
}

// parseFile overlays cfg with the settings in path. Keys the file leaves
// out keep their current values. The format follows the extension.
func parseFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	fc := toFile(cfg)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}
