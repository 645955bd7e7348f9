package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"poolindexer/internal/model"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	WSRPCURL string
	Contract string
	EventABI string
	Events   []string

	FromBlock uint64
	// ToBlock is nil when the backfill runs up to the chain head.
	ToBlock   *uint64
	BatchSize uint64

	Store         string
	PGDSN         string
	WatermarkFile string

	ReconnectInitial    time.Duration
	ReconnectMax        time.Duration
	ReconnectMultiplier float64

	MaxRetries         int
	RetryBackoff       time.Duration
	ConcurrentBackfill bool
	ReorderWindow      uint64
	Workers            int
	QueueDepth         int
	FlushInterval      time.Duration
	RPCRPS             int

	MetricsAddr string
	LogLevel    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLINDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("to", "latest")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("store", StorePostgres)
	v.SetDefault("reconnect-initial", time.Second)
	v.SetDefault("reconnect-max", time.Minute)
	v.SetDefault("reconnect-multiplier", 2.0)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("reorder-window", uint64(12))
	v.SetDefault("workers", 4)
	v.SetDefault("queue-depth", 256)
	v.SetDefault("flush-interval", 5*time.Second)
	v.SetDefault("rpc-rps", 10)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	toBlock, err := ParseBlock(v.GetString("to"))
	if err != nil {
		return Config{}, fmt.Errorf("parse to: %w", err)
	}

	cfg := Config{
		RPCURL:              strings.TrimSpace(v.GetString("rpc")),
		WSRPCURL:            strings.TrimSpace(v.GetString("ws-rpc")),
		Contract:            strings.TrimSpace(v.GetString("contract")),
		EventABI:            v.GetString("event-abi"),
		Events:              getStringSlice(v, "events"),
		FromBlock:           v.GetUint64("from"),
		ToBlock:             toBlock,
		BatchSize:           v.GetUint64("batch-size"),
		Store:               strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:               v.GetString("pg-dsn"),
		WatermarkFile:       v.GetString("watermark-file"),
		ReconnectInitial:    v.GetDuration("reconnect-initial"),
		ReconnectMax:        v.GetDuration("reconnect-max"),
		ReconnectMultiplier: v.GetFloat64("reconnect-multiplier"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		ConcurrentBackfill:  v.GetBool("concurrent-backfill"),
		ReorderWindow:       v.GetUint64("reorder-window"),
		Workers:             v.GetInt("workers"),
		QueueDepth:          v.GetInt("queue-depth"),
		FlushInterval:       v.GetDuration("flush-interval"),
		RPCRPS:              v.GetInt("rpc-rps"),
		MetricsAddr:         v.GetString("metrics-addr"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings needed to ingest events.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Contract == "" {
		return fmt.Errorf("contract address is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if c.ToBlock != nil && *c.ToBlock < c.FromBlock {
		return fmt.Errorf("to block %d is before from block %d", *c.ToBlock, c.FromBlock)
	}
	switch c.Store {
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StorePostgres, StoreMemory)
	}
	if c.ReconnectInitial <= 0 {
		return fmt.Errorf("reconnect-initial must be positive")
	}
	if c.ReconnectMax < c.ReconnectInitial {
		return fmt.Errorf("reconnect-max must be >= reconnect-initial")
	}
	if c.ReconnectMultiplier < 1 {
		return fmt.Errorf("reconnect-multiplier must be >= 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than zero")
	}
	if c.RPCRPS < 0 {
		return fmt.Errorf("rpc-rps must not be negative")
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}
	return nil
}

// SubscribeURL is the endpoint used for live log subscriptions.
func (c Config) SubscribeURL() string {
	if c.WSRPCURL != "" {
		return c.WSRPCURL
	}
	return c.RPCURL
}

// Kinds resolves the configured event names. An empty list selects every kind.
func (c Config) Kinds() ([]model.Kind, error) {
	if len(c.Events) == 0 {
		return model.AllKinds(), nil
	}
	selected := make(map[model.Kind]bool, len(c.Events))
	for _, name := range c.Events {
		kind, ok := model.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown event %q", name)
		}
		selected[kind] = true
	}
	// keep lifecycle order regardless of how the list was written
	kinds := make([]model.Kind, 0, len(selected))
	for _, kind := range model.AllKinds() {
		if selected[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// ParseBlock parses a block number. Empty input and "latest" return nil.
func ParseBlock(input string) (*uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "latest") {
		return nil, nil
	}
	block, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid block %q: %w", input, err)
	}
	return &block, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
