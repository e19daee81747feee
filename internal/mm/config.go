package mm

import (
	"encoding/json"
	"time"
)

// epsilon bounds float comparison for quote level multipliers.
const epsilon = 1e-9

// QuoteLevelConfig is one configured quoting level. Level 1 is closest to
// the mid price.
type QuoteLevelConfig struct {
	Level            uint16  `json:"level"`
	SpreadMultiplier float64 `json:"spread_multiplier"`
	SizeMultiplier   float64 `json:"size_multiplier"`
}

// SymbolConfig is the per-symbol quoting and risk configuration. It is
// replaced wholesale on any change, never mutated field by field.
type SymbolConfig struct {
	Symbol                    string             `json:"symbol" validate:"required"`
	DailyReturnBps            uint16             `json:"daily_return_bps" validate:"gt=0"`
	NotionalPerSide           float64            `json:"notional_per_side" validate:"gt=0"`
	DailyPnLStopLoss          float64            `json:"daily_pnl_stop_loss" validate:"gt=0"`
	TrailingTakeProfit        float64            `json:"trailing_take_profit" validate:"gte=0,lt=1"`
	TrailingStopLoss          float64            `json:"trailing_stop_loss" validate:"gte=0,lt=1"`
	HedgeOnlyMode             bool               `json:"hedge_only_mode"`
	ForceQuoteRefreshInterval uint64             `json:"force_quote_refresh_interval" validate:"gte=100"`
	MaxLongUSD                float64            `json:"max_long_usd" validate:"gte=0"`
	MaxShortUSD               float64            `json:"max_short_usd" validate:"gte=0"`
	EnableTrading             bool               `json:"enable_trading"`
	QuoteLevels               []QuoteLevelConfig `json:"quote_levels" validate:"min=1,dive"`
	VaultAddress              string             `json:"vault_address,omitempty"`
}

// DefaultQuoteLevels is a single level at 1.0x spread and 1.0x size.
func DefaultQuoteLevels() []QuoteLevelConfig {
	return []QuoteLevelConfig{{Level: 1, SpreadMultiplier: 1.0, SizeMultiplier: 1.0}}
}

func defaultSymbolConfig() SymbolConfig {
	return SymbolConfig{
		EnableTrading:             true,
		ForceQuoteRefreshInterval: 3000,
		QuoteLevels:               DefaultQuoteLevels(),
	}
}

// UnmarshalJSON applies documented defaults for absent fields so that
// partial or legacy payloads stay backward compatible.
func (c *SymbolConfig) UnmarshalJSON(data []byte) error {
	type alias SymbolConfig
	a := alias(defaultSymbolConfig())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = SymbolConfig(a)
	return nil
}

// RefreshInterval is the quote staleness bound as a duration.
func (c SymbolConfig) RefreshInterval() time.Duration {
	return time.Duration(c.ForceQuoteRefreshInterval) * time.Millisecond
}

// Equal reports whether two configurations are identical field by field,
// including quote levels and vault address. Change detection is field-wise
// equality, never identity.
func (c SymbolConfig) Equal(o SymbolConfig) bool {
	if c.Symbol != o.Symbol ||
		c.DailyReturnBps != o.DailyReturnBps ||
		c.NotionalPerSide != o.NotionalPerSide ||
		c.DailyPnLStopLoss != o.DailyPnLStopLoss ||
		c.TrailingTakeProfit != o.TrailingTakeProfit ||
		c.TrailingStopLoss != o.TrailingStopLoss ||
		c.HedgeOnlyMode != o.HedgeOnlyMode ||
		c.ForceQuoteRefreshInterval != o.ForceQuoteRefreshInterval ||
		c.MaxLongUSD != o.MaxLongUSD ||
		c.MaxShortUSD != o.MaxShortUSD ||
		c.EnableTrading != o.EnableTrading ||
		c.VaultAddress != o.VaultAddress {
		return false
	}
	return !quoteLevelsChanged(c.QuoteLevels, o.QuoteLevels)
}

func quoteLevelsChanged(a, b []QuoteLevelConfig) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i].Level != b[i].Level ||
			absf(a[i].SpreadMultiplier-b[i].SpreadMultiplier) > epsilon ||
			absf(a[i].SizeMultiplier-b[i].SizeMultiplier) > epsilon {
			return true
		}
	}
	return false
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Position is the engine's view of one symbol's exposure. It is owned
// exclusively by the symbol's runner.
type Position struct {
	Symbol           string  `json:"symbol"`
	Size             float64 `json:"size"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	RealizedPnLToday float64 `json:"realized_pnl_today"`
	NotionalUSD      float64 `json:"notional_usd"`
	TrailingExtreme  float64 `json:"trailing_extreme"`
}
