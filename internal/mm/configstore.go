package mm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const configKeyPrefix = "config:"

// ConfigStore reads per-symbol configuration from Redis. Writes go through
// the config service; runners only ever read.
type ConfigStore struct {
	rdb *redis.Client
}

func NewConfigStore(rdb *redis.Client) *ConfigStore {
	return &ConfigStore{rdb: rdb}
}

// Fetch loads the stored configuration for one symbol. A missing key maps to
// ErrConfigMissing; transport or decode failures map to ErrConfigUnavailable
// so callers can keep quoting on the last good value.
func (s *ConfigStore) Fetch(ctx context.Context, symbol string) (SymbolConfig, error) {
	raw, err := s.rdb.Get(ctx, configKeyPrefix+symbol).Result()
	if err == redis.Nil {
		return SymbolConfig{}, fmt.Errorf("%w: %s", ErrConfigMissing, symbol)
	}
	if err != nil {
		return SymbolConfig{}, fmt.Errorf("%w: get %s: %v", ErrConfigUnavailable, symbol, err)
	}
	var cfg SymbolConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return SymbolConfig{}, fmt.Errorf("%w: decode %s: %v", ErrConfigUnavailable, symbol, err)
	}
	return cfg, nil
}

// Store persists a symbol configuration. Used by the config service after
// validation.
func (s *ConfigStore) Store(ctx context.Context, symbol string, cfg SymbolConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", symbol, err)
	}
	if err := s.rdb.Set(ctx, configKeyPrefix+symbol, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrConfigUnavailable, symbol, err)
	}
	return nil
}

// Symbols lists every symbol with a stored configuration.
func (s *ConfigStore) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	iter := s.rdb.Scan(ctx, 0, configKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		symbols = append(symbols, strings.TrimPrefix(iter.Val(), configKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrConfigUnavailable, err)
	}
	return symbols, nil
}
