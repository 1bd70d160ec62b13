package config

import (
	"flag"

	"github.com/dmitrijs2005/happypaisa/internal/flagx"
)

var flagNames = []string{
	"-a", "-o", "-s", "-d", "-g", "-e", "-k", "-m", "-cache", "-r", "-i", "-l", "-log-format", "-log-file", "-low",
}

// parseFlags overrides cfg with the flags in args. Only the flags listed in
// flagNames are looked at, so other components can share the command line.
//
//	-a string        gRPC bind address
//	-o string        ops HTTP bind address ("" disables it)
//	-s string        storage: memory | postgres
//	-d string        PostgreSQL DSN
//	-g string        gateway: mock | rpc
//	-e string        chain RPC endpoint
//	-k string        chain RPC bearer token
//	-m int           max in-flight submissions per user
//	-cache string    balance cache: none | memory | redis
//	-r string        redis address
//	-i duration      reconciliation interval (0 disables)
//	-l string        log level
//	-log-format      json | text
//	-log-file        log file, rotated
//	-low string      low-balance alert threshold in HP
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, flagNames)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&cfg.GRPCAddr, "a", cfg.GRPCAddr, "address and port to run the gRPC server")
	fs.StringVar(&cfg.OpsAddr, "o", cfg.OpsAddr, "address and port of the ops HTTP server")
	fs.StringVar(&cfg.StorageMode, "s", cfg.StorageMode, "storage mode")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.GatewayMode, "g", cfg.GatewayMode, "chain gateway mode")
	fs.StringVar(&cfg.RPCEndpoint, "e", cfg.RPCEndpoint, "chain RPC endpoint")
	fs.StringVar(&cfg.RPCToken, "k", cfg.RPCToken, "chain RPC token")
	fs.IntVar(&cfg.MaxInFlightPerUser, "m", cfg.MaxInFlightPerUser, "max in-flight submissions per user")
	fs.StringVar(&cfg.CacheMode, "cache", cfg.CacheMode, "balance cache mode")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.DurationVar(&cfg.SyncInterval, "i", cfg.SyncInterval, "reconciliation interval")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file")
	fs.TextVar(&cfg.LowBalance, "low", cfg.LowBalance, "low-balance alert threshold")

	return fs.Parse(args)
}

