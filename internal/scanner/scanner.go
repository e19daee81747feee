package scanner

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/config"
	"github.com/permabid/permabid/internal/venue"
)

const (
	topSymbolsKey    = "top_symbols"
	symbolCandlesKey = "symbol_candles"
	candleInterval   = "1h"
)

// SymbolVolume is a symbol ranked by 24h USD volume.
type SymbolVolume struct {
	Symbol    string  `json:"symbol"`
	VolumeUSD float64 `json:"volume_usd"`
}

// Scanner periodically ranks the venue's universe by trailing 24h USD
// volume and stores the result for operators picking symbols to quote.
type Scanner struct {
	info   venue.InfoClient
	rdb    *redis.Client
	cfg    config.ScannerConfig
	logger *zap.Logger
}

func New(info venue.InfoClient, rdb *redis.Client, cfg config.ScannerConfig, logger *zap.Logger) *Scanner {
	return &Scanner{info: info, rdb: rdb, cfg: cfg, logger: logger}
}

// Run scans immediately, then at every interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	s.scan(ctx)
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scanner) scan(ctx context.Context) {
	started := time.Now()
	metas, err := s.info.Meta(ctx)
	if err != nil {
		s.logger.Warn("universe fetch failed, skipping scan", zap.Error(err))
		return
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)

	// One request per second keeps the scanner inside the venue's public
	// rate limits regardless of universe size.
	limiter := time.NewTicker(time.Second)
	defer limiter.Stop()

	volumes := make([]SymbolVolume, 0, len(metas))
	candlesBySymbol := make(map[string][]venue.Candle, len(metas))
	for _, meta := range metas {
		select {
		case <-ctx.Done():
			return
		case <-limiter.C:
		}

		candles, err := s.info.Candles(ctx, meta.Name, candleInterval, start.UnixMilli(), end.UnixMilli())
		if err != nil {
			s.logger.Warn("candle fetch failed, symbol skipped",
				zap.String("symbol", meta.Name), zap.Error(err))
			continue
		}
		volumes = append(volumes, SymbolVolume{
			Symbol:    meta.Name,
			VolumeUSD: usdVolume(candles),
		})
		candlesBySymbol[meta.Name] = candles
	}

	top := TopByVolume(volumes, s.cfg.TopN)
	if err := s.persist(ctx, top, candlesBySymbol); err != nil {
		s.logger.Error("scan result persist failed", zap.Error(err))
		return
	}
	s.logger.Info("symbol scan complete",
		zap.Int("universe", len(metas)),
		zap.Int("ranked", len(volumes)),
		zap.Int("top_n", len(top)),
		zap.Duration("took", time.Since(started)))
}

// usdVolume sums close*volume per bar. Bars with unparseable fields are
// skipped rather than failing the symbol.
func usdVolume(candles []venue.Candle) float64 {
	total := 0.0
	for _, c := range candles {
		closePx, err := strconv.ParseFloat(c.Close, 64)
		if err != nil {
			continue
		}
		vol, err := strconv.ParseFloat(c.Volume, 64)
		if err != nil {
			continue
		}
		total += closePx * vol
	}
	return total
}

// TopByVolume returns the n highest-volume symbols in descending order.
// Ties break by symbol name so the ranking is stable.
func TopByVolume(volumes []SymbolVolume, n int) []SymbolVolume {
	ranked := make([]SymbolVolume, len(volumes))
	copy(ranked, volumes)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].VolumeUSD != ranked[j].VolumeUSD {
			return ranked[i].VolumeUSD > ranked[j].VolumeUSD
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (s *Scanner) persist(ctx context.Context, top []SymbolVolume, candles map[string][]venue.Candle) error {
	payload, err := json.Marshal(top)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, topSymbolsKey, payload, 0).Err(); err != nil {
		return err
	}
	for _, sv := range top {
		raw, err := json.Marshal(candles[sv.Symbol])
		if err != nil {
			continue
		}
		if err := s.rdb.HSet(ctx, symbolCandlesKey, sv.Symbol, raw).Err(); err != nil {
			return err
		}
	}
	return nil
}
