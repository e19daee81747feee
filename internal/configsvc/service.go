package configsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/mm"
)

// Service listens for configuration updates on a pub/sub channel,
// validates them, and persists accepted values for the runners to poll.
// Rejected updates are logged and dropped; the stored value is untouched.
type Service struct {
	rdb      *redis.Client
	store    *mm.ConfigStore
	channel  string
	validate *validator.Validate
	logger   *zap.Logger
}

func New(rdb *redis.Client, store *mm.ConfigStore, channel string, logger *zap.Logger) *Service {
	return &Service{
		rdb:      rdb,
		store:    store,
		channel:  channel,
		validate: validator.New(),
		logger:   logger,
	}
}

// Run consumes the update channel until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	s.logger.Info("config service listening", zap.String("channel", s.channel))
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("config channel closed")
			}
			s.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (s *Service) handle(ctx context.Context, payload []byte) {
	var cfg mm.SymbolConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		s.logger.Warn("config update rejected, malformed payload", zap.Error(err))
		return
	}
	if err := s.Validate(cfg); err != nil {
		s.logger.Warn("config update rejected",
			zap.String("symbol", cfg.Symbol), zap.Error(err))
		return
	}
	if err := s.store.Store(ctx, cfg.Symbol, cfg); err != nil {
		s.logger.Error("config persist failed",
			zap.String("symbol", cfg.Symbol), zap.Error(err))
		return
	}
	s.logger.Info("configuration stored",
		zap.String("symbol", cfg.Symbol),
		zap.Uint16("daily_return_bps", cfg.DailyReturnBps),
		zap.Int("levels", len(cfg.QuoteLevels)),
		zap.Bool("enable_trading", cfg.EnableTrading))
}

// Validate applies struct tag rules plus the checks tags cannot express:
// level ordering and the vault address format.
func (s *Service) Validate(cfg mm.SymbolConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		return fmt.Errorf("field validation: %w", err)
	}
	if err := mm.ValidateLevels(cfg); err != nil {
		return err
	}
	if cfg.VaultAddress != "" && !common.IsHexAddress(cfg.VaultAddress) {
		return fmt.Errorf("vault address %q is not a valid EVM address", cfg.VaultAddress)
	}
	return nil
}

// LoadStored validates every stored configuration at startup and reports
// the symbols that fail, so operators see drift from older deployments.
func (s *Service) LoadStored(ctx context.Context) ([]string, error) {
	symbols, err := s.store.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	var bad []string
	for _, sym := range symbols {
		cfg, err := s.store.Fetch(ctx, sym)
		if err != nil {
			bad = append(bad, sym)
			s.logger.Warn("stored config unreadable", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if err := s.Validate(cfg); err != nil {
			bad = append(bad, sym)
			s.logger.Warn("stored config invalid", zap.String("symbol", sym), zap.Error(err))
		}
	}
	return bad, nil
}
