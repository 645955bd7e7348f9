package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolindexer/internal/model"
)

func validConfig() Config {
	return Config{
		RPCURL:              "https://rpc.example",
		Contract:            "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		BatchSize:           100,
		Store:               StoreMemory,
		ReconnectInitial:    time.Second,
		ReconnectMax:        time.Minute,
		ReconnectMultiplier: 2,
		Workers:             1,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Nil(t, cfg.ToBlock)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, time.Second, cfg.ReconnectInitial)
	assert.Equal(t, time.Minute, cfg.ReconnectMax)
	assert.Equal(t, 2.0, cfg.ReconnectMultiplier)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, uint64(12), cfg.ReorderWindow)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("POOLINDEXER_RPC", "https://env.example")
	t.Setenv("POOLINDEXER_PG_DSN", "postgres://u:p@localhost/pools")
	t.Setenv("POOLINDEXER_EVENTS", "deposited, poolcreated")
	t.Setenv("POOLINDEXER_TO", "900")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Uint64("from", 0, "")
	flags.Bool("concurrent-backfill", false, "")
	flags.Uint64("reorder-window", 12, "")
	require.NoError(t, flags.Parse([]string{"--rpc=https://flag.example", "--from=100", "--concurrent-backfill", "--reorder-window=3"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example", cfg.RPCURL)
	assert.Equal(t, uint64(100), cfg.FromBlock)
	require.NotNil(t, cfg.ToBlock)
	assert.Equal(t, uint64(900), *cfg.ToBlock)
	assert.True(t, cfg.ConcurrentBackfill)
	assert.Equal(t, uint64(3), cfg.ReorderWindow)
	assert.Equal(t, "postgres://u:p@localhost/pools", cfg.PGDSN)

	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []model.Kind{model.KindPoolCreated, model.KindDeposited}, kinds)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	content := "rpc: https://file.example\ncontract: \"0x5FbDB2315678afecb367f032d93F642f64180aa3\"\nstore: Memory\nto: latest\nreconnect-max: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example", cfg.RPCURL)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Nil(t, cfg.ToBlock)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMax)
	assert.NoError(t, cfg.Validate())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadRejectsBadToBlock(t *testing.T) {
	t.Setenv("POOLINDEXER_TO", "soon")
	_, err := Load("", nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	to := uint64(5)
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc", func(c *Config) { c.RPCURL = "" }},
		{"missing contract", func(c *Config) { c.Contract = "" }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"to before from", func(c *Config) { c.FromBlock = 10; c.ToBlock = &to }},
		{"postgres without dsn", func(c *Config) { c.Store = StorePostgres }},
		{"unknown store", func(c *Config) { c.Store = "mongo" }},
		{"zero reconnect", func(c *Config) { c.ReconnectInitial = 0 }},
		{"max below initial", func(c *Config) { c.ReconnectMax = time.Millisecond }},
		{"shrinking multiplier", func(c *Config) { c.ReconnectMultiplier = 0.5 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"unknown event", func(c *Config) { c.Events = []string{"Withdrawn"} }},
	}

	require.NoError(t, validConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseBlock(t *testing.T) {
	block, err := ParseBlock("")
	require.NoError(t, err)
	assert.Nil(t, block)

	block, err = ParseBlock(" Latest ")
	require.NoError(t, err)
	assert.Nil(t, block)

	block, err = ParseBlock("6637573")
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, uint64(6637573), *block)

	_, err = ParseBlock("-1")
	assert.Error(t, err)
}

func TestSubscribeURL(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "https://rpc.example", cfg.SubscribeURL())
	cfg.WSRPCURL = "wss://ws.example"
	assert.Equal(t, "wss://ws.example", cfg.SubscribeURL())
}
