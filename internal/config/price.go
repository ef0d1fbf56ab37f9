package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"pairScope/internal/pricing"
)

// Entity backends and pair resolvers accepted by the price command.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	ResolverStore   = "store"
	ResolverFactory = "factory"
)

// PriceConfig holds configuration for the price replay.
type PriceConfig struct {
	RPCURL        string
	Input         string
	Window        string
	PGDSN         string
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom string
	LogLevel      string
	ChainID       uint64
	EntityBackend string
	Resolver      string
	Factory       string
	MetricsAddr   string
	Redis         RedisConfig
	Pricing       pricing.Config
}

// RedisConfig addresses the shared entity store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// LoadPrice merges config file, environment variables, and flags into PriceConfig.
func LoadPrice(cfgFile string, flags *pflag.FlagSet) (PriceConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":     1000,
		"log-level":      "info",
		"window":         "5m",
		"state-name":     "price",
		"chain-id":       uint64(56),
		"entity-backend": BackendMemory,
		"resolver":       ResolverStore,
		"redis-prefix":   "pairscope:",
	})
	if err != nil {
		return PriceConfig{}, err
	}

	rules, err := LoadPricing(v)
	if err != nil {
		return PriceConfig{}, err
	}

	cfg := PriceConfig{
		RPCURL:        v.GetString("rpc"),
		Input:         v.GetString("in"),
		Window:        v.GetString("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		RecomputeFrom: v.GetString("recompute-from"),
		LogLevel:      v.GetString("log-level"),
		ChainID:       v.GetUint64("chain-id"),
		EntityBackend: strings.ToLower(v.GetString("entity-backend")),
		Resolver:      strings.ToLower(v.GetString("resolver")),
		Factory:       v.GetString("factory"),
		MetricsAddr:   v.GetString("metrics-addr"),
		Redis: RedisConfig{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
			Prefix:   v.GetString("redis-prefix"),
		},
		Pricing: rules,
	}

	if err := cfg.validate(); err != nil {
		return PriceConfig{}, err
	}
	return cfg, nil
}

func (c PriceConfig) validate() error {
	switch c.EntityBackend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis-addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown entity backend %q", c.EntityBackend)
	}

	switch c.Resolver {
	case ResolverStore:
	case ResolverFactory:
		if c.Factory == "" {
			return fmt.Errorf("factory address is required for the factory resolver")
		}
		if c.RPCURL == "" {
			return fmt.Errorf("rpc is required for the factory resolver")
		}
	default:
		return fmt.Errorf("unknown resolver %q", c.Resolver)
	}
	return nil
}

// ParseWindow parses a window size ("5m", "1h" or plain seconds).
func ParseWindow(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}
	dur, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("parse window: %w", err)
	}
	if dur < time.Second {
		return 0, fmt.Errorf("window must be at least 1s")
	}
	return uint64(dur / time.Second), nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
