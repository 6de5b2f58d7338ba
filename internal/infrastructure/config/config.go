package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type SeedUser struct {
	ID            int64    `toml:"id"`
	Email         string   `toml:"email"`
	Name          string   `toml:"name"`
	Subscriptions []string `toml:"subscriptions"`
}

type Config struct {
	App struct {
		HTTPAddr string `toml:"http_addr"`
		LogLevel string `toml:"log_level"`
		Console  bool   `toml:"console"` // render a live quote line on stdout
	} `toml:"app"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	Prices struct {
		InitialBase   float64 `toml:"initial_base"`
		InitialSpread float64 `toml:"initial_spread"`
		MaxChange     float64 `toml:"max_change"`
		Seed          uint64  `toml:"seed"` // 0 = time based
	} `toml:"prices"`

	Broadcast struct {
		IntervalMs    int `toml:"interval_ms"`
		PushTimeoutMs int `toml:"push_timeout_ms"`
		SinkTimeoutMs int `toml:"sink_timeout_ms"`
		FanoutWorkers int `toml:"fanout_workers"`
	} `toml:"broadcast"`

	HTTP struct {
		CORSOrigin string `toml:"cors_origin"`
	} `toml:"http"`

	Users struct {
		Seed []SeedUser `toml:"seed"`
	} `toml:"users"`

	Storage struct {
		Driver string `toml:"driver"`
		DSN    string `toml:"dsn"`
	} `toml:"storage"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Prefix     string `toml:"prefix"`
		TTLSeconds int    `toml:"ttl_seconds"`
		Channel    string `toml:"channel"`
	} `toml:"redis"`

	Kafka struct {
		Enabled bool     `toml:"enabled"`
		Brokers []string `toml:"brokers"`
		Topic   string   `toml:"topic"`
	} `toml:"kafka"`
}

// Load decodes path, applies TICKCAST_* overrides (a .env file in the
// working directory is honoured), fills defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Broadcast.IntervalMs) * time.Millisecond
}

func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.Broadcast.PushTimeoutMs) * time.Millisecond
}

func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Broadcast.SinkTimeoutMs) * time.Millisecond
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TICKCAST_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("TICKCAST_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("TICKCAST_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("TICKCAST_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TICKCAST_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TICKCAST_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TICKCAST_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("TICKCAST_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TICKCAST_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.HTTPAddr) == "" {
		cfg.App.HTTPAddr = ":4000"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if len(cfg.Symbols.List) == 0 {
		cfg.Symbols.List = []string{"GOOG", "TSLA", "AMZN", "META", "NVDA"}
	}
	if cfg.Prices.InitialBase <= 0 {
		cfg.Prices.InitialBase = 100
	}
	if cfg.Prices.InitialSpread < 0 {
		cfg.Prices.InitialSpread = 0
	}
	if cfg.Prices.MaxChange == 0 {
		cfg.Prices.MaxChange = 0.001
	}
	if cfg.Broadcast.IntervalMs <= 0 {
		cfg.Broadcast.IntervalMs = 1000
	}
	// push and sink share one tick: half and a quarter of the interval
	if cfg.Broadcast.PushTimeoutMs <= 0 {
		cfg.Broadcast.PushTimeoutMs = cfg.Broadcast.IntervalMs / 2
	}
	if cfg.Broadcast.SinkTimeoutMs <= 0 {
		cfg.Broadcast.SinkTimeoutMs = cfg.Broadcast.IntervalMs / 4
	}
	if cfg.Broadcast.FanoutWorkers <= 0 {
		cfg.Broadcast.FanoutWorkers = 16
	}
	if cfg.HTTP.CORSOrigin == "" {
		cfg.HTTP.CORSOrigin = "http://localhost:3000"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = ":memory:"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "tickcast"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "tickcast.quotes"
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}
	if !(cfg.Prices.MaxChange > 0 && cfg.Prices.MaxChange < 1) {
		return fmt.Errorf("prices.max_change %v must be in (0, 1)", cfg.Prices.MaxChange)
	}

	b := cfg.Broadcast
	if b.PushTimeoutMs <= 0 || b.SinkTimeoutMs <= 0 {
		return fmt.Errorf("broadcast: interval_ms %d too small to derive push and sink timeouts", b.IntervalMs)
	}
	if b.PushTimeoutMs+b.SinkTimeoutMs >= b.IntervalMs {
		return fmt.Errorf("broadcast: push_timeout_ms %d + sink_timeout_ms %d must be below interval_ms %d",
			b.PushTimeoutMs, b.SinkTimeoutMs, b.IntervalMs)
	}

	known := make(map[string]struct{}, len(cfg.Symbols.List))
	for _, s := range cfg.Symbols.List {
		known[s] = struct{}{}
	}
	for i := range cfg.Users.Seed {
		su := &cfg.Users.Seed[i]
		if strings.TrimSpace(su.Email) == "" {
			return fmt.Errorf("users.seed[%d].email is empty", i)
		}
		su.Subscriptions = normalizeSymbols(su.Subscriptions)
		for _, s := range su.Subscriptions {
			if _, ok := known[s]; !ok {
				return fmt.Errorf("users.seed[%d]: %s not in symbols.list", i, s)
			}
		}
	}

	switch cfg.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn empty but driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q unsupported", cfg.Storage.Driver)
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Kafka.Enabled {
		cfg.Kafka.Brokers = trimAll(cfg.Kafka.Brokers)
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers empty but enabled")
		}
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
