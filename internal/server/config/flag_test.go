package config

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseFlags(t *testing.T) {
	defaults := func() *Config {
		var c Config
		c.LoadDefaults()
		return &c
	}

	tests := []struct {
		name    string
		args    []string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name: "all",
			args: []string{
				"-a", "127.0.0.1:6000", "-o", "", "-s", "postgres", "-d", "db", "-g", "rpc",
				"-e", "http://endpoint", "-k", "token", "-m", "2", "-cache", "none", "-r", "redis:6379",
				"-i", "10s", "-l", "debug", "-log-format", "text", "-log-file", "/tmp/hp.log", "-low", "0.5",
			},
			mutate: func(c *Config) {
				c.GRPCAddr = "127.0.0.1:6000"
				c.OpsAddr = ""
				c.StorageMode = StoragePostgres
				c.DatabaseDSN = "db"
				c.GatewayMode = GatewayRPC
				c.RPCEndpoint = "http://endpoint"
				c.RPCToken = "token"
				c.MaxInFlightPerUser = 2
				c.CacheMode = CacheNone
				c.RedisAddr = "redis:6379"
				c.SyncInterval = 10 * time.Second
				c.LogLevel = "debug"
				c.LogFormat = "text"
				c.LogFile = "/tmp/hp.log"
				c.LowBalance = money.FromMilli(500)
			},
		},
		{
			name:   "foreign flags ignored",
			args:   []string{"-c", "server.json", "-test.v", "-a=:1234"},
			mutate: func(c *Config) { c.GRPCAddr = ":1234" },
		},
		{name: "bad duration", args: []string{"-i", "often"}, wantErr: true},
		{name: "bad amount", args: []string{"-low", "lots"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults()
			err := parseFlags(c, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)

			want := defaults()
			tt.mutate(want)
			if diff := cmp.Diff(want, c); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
