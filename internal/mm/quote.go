package mm

import (
	"fmt"

	"github.com/permabid/permabid/internal/venue"
)

// Quote is one desired price/size level for one side, ephemeral to a
// single cycle.
type Quote struct {
	Side       venue.Side
	Price      float64
	Size       float64
	LevelIndex int
	ReduceOnly bool
}

// ValidateLevels rejects level configurations that would produce crossed
// or degenerate prices. Levels must carry positive multipliers and be
// ordered so the effective half-spread strictly widens with the index.
func ValidateLevels(cfg SymbolConfig) error {
	if len(cfg.QuoteLevels) == 0 {
		return fmt.Errorf("%w: no levels configured", ErrInvalidLevelConfig)
	}
	prev := 0.0
	for i, lvl := range cfg.QuoteLevels {
		if lvl.SpreadMultiplier <= 0 {
			return fmt.Errorf("%w: level %d spread multiplier %v", ErrInvalidLevelConfig, i, lvl.SpreadMultiplier)
		}
		if lvl.SizeMultiplier <= 0 {
			return fmt.Errorf("%w: level %d size multiplier %v", ErrInvalidLevelConfig, i, lvl.SizeMultiplier)
		}
		weighted := float64(i+1) * lvl.SpreadMultiplier
		if weighted <= prev {
			return fmt.Errorf("%w: level %d crosses level %d", ErrInvalidLevelConfig, i, i-1)
		}
		prev = weighted
	}
	return nil
}

// ComputeQuotes derives the desired level set for both sides from the
// reference price, active configuration, and precision. A side is
// suppressed entirely when placing its full set would push the position's
// notional past the configured limit; in hedge-only state only the
// exposure-reducing side is emitted, flagged reduce-only.
func ComputeQuotes(mid float64, cfg SymbolConfig, prec Precision, pos Position, state State) ([]Quote, error) {
	if err := ValidateLevels(cfg); err != nil {
		return nil, err
	}
	if mid <= 0 {
		return nil, fmt.Errorf("non-positive reference price %v", mid)
	}

	// Total per-side notional this cycle, for the exposure clamp.
	sideNotional := 0.0
	for _, lvl := range cfg.QuoteLevels {
		sideNotional += cfg.NotionalPerSide * lvl.SizeMultiplier
	}

	signedNotional := pos.Size * mid
	wantBids := signedNotional+sideNotional <= cfg.MaxLongUSD
	wantAsks := -signedNotional+sideNotional <= cfg.MaxShortUSD

	reduceOnly := false
	if state == StateHedgeOnly {
		// Only the side that shrinks existing exposure; flat means no
		// new directional risk at all.
		reduceOnly = true
		wantBids = wantBids && pos.Size < 0
		wantAsks = wantAsks && pos.Size > 0
	}

	// daily_return_bps is the full quoted spread; each side carries half.
	baseHalfSpread := float64(cfg.DailyReturnBps) / 10_000 / 2

	quotes := make([]Quote, 0, 2*len(cfg.QuoteLevels))
	for i, lvl := range cfg.QuoteLevels {
		halfSpread := baseHalfSpread * float64(i+1) * lvl.SpreadMultiplier
		size := TruncateSize(cfg.NotionalPerSide*lvl.SizeMultiplier/mid, prec)
		if size <= 0 {
			continue
		}

		if wantBids {
			price := TruncatePrice(mid*(1-halfSpread), prec)
			if price > 0 {
				quotes = append(quotes, Quote{
					Side:       venue.SideBuy,
					Price:      price,
					Size:       size,
					LevelIndex: i,
					ReduceOnly: reduceOnly,
				})
			}
		}
		if wantAsks {
			price := TruncatePrice(mid*(1+halfSpread), prec)
			if price > 0 {
				quotes = append(quotes, Quote{
					Side:       venue.SideSell,
					Price:      price,
					Size:       size,
					LevelIndex: i,
					ReduceOnly: reduceOnly,
				})
			}
		}
	}
	return quotes, nil
}
