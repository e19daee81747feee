package mm

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/venue"
)

// Precision is a symbol's decimal resolution for prices and sizes.
type Precision struct {
	PriceDecimals int32
	SizeDecimals  int32
}

// DefaultPrecision is the conservative fallback used when venue metadata
// is unavailable. Fewer decimals cannot produce prices the venue rejects
// for excess resolution.
var DefaultPrecision = Precision{PriceDecimals: 2, SizeDecimals: 2}

// TruncatePrice rounds a price toward zero to the symbol's resolution.
func TruncatePrice(x float64, p Precision) float64 {
	return truncate(x, p.PriceDecimals)
}

// TruncateSize rounds a size toward zero to the symbol's resolution.
func TruncateSize(x float64, p Precision) float64 {
	return truncate(x, p.SizeDecimals)
}

func truncate(x float64, decimals int32) float64 {
	if decimals < 0 {
		decimals = 0
	}
	f, _ := decimal.NewFromFloat(x).Truncate(decimals).Float64()
	return f
}

// PrecisionCache resolves and memoizes per-symbol precision from venue
// metadata. Resolution never fails: a metadata outage degrades to
// DefaultPrecision and is logged, so startup is never blocked.
type PrecisionCache struct {
	info   venue.InfoClient
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]Precision
}

// NewPrecisionCache creates an empty cache over the given info client.
func NewPrecisionCache(info venue.InfoClient, logger *zap.Logger) *PrecisionCache {
	return &PrecisionCache{
		info:   info,
		logger: logger,
		cache:  make(map[string]Precision),
	}
}

// Resolve returns the symbol's precision, fetching venue metadata on first
// use. Idempotent: later calls return the memoized value, including a
// memoized fallback.
func (c *PrecisionCache) Resolve(ctx context.Context, symbol string) Precision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.cache[symbol]; ok {
		return p
	}

	metas, err := c.info.Meta(ctx)
	if err != nil {
		c.logger.Warn("precision metadata unavailable, running degraded",
			zap.String("symbol", symbol), zap.Error(err))
		c.cache[symbol] = DefaultPrecision
		return DefaultPrecision
	}

	for _, m := range metas {
		p := Precision{PriceDecimals: m.PriceDecimals, SizeDecimals: m.SizeDecimals}
		if p.PriceDecimals < 0 || p.SizeDecimals < 0 {
			p = DefaultPrecision
		}
		c.cache[m.Name] = p
	}

	if p, ok := c.cache[symbol]; ok {
		return p
	}

	c.logger.Warn("symbol missing from venue metadata, running degraded",
		zap.String("symbol", symbol))
	c.cache[symbol] = DefaultPrecision
	return DefaultPrecision
}
