package mm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permabid/permabid/internal/venue"
)

func quoteConfig() SymbolConfig {
	return SymbolConfig{
		Symbol:          "BTC",
		DailyReturnBps:  10,
		NotionalPerSide: 150,
		MaxLongUSD:      10_000,
		MaxShortUSD:     10_000,
		EnableTrading:   true,
		QuoteLevels:     DefaultQuoteLevels(),
	}
}

func bySide(quotes []Quote) (bids, asks []Quote) {
	for _, q := range quotes {
		if q.Side == venue.SideBuy {
			bids = append(bids, q)
		} else {
			asks = append(asks, q)
		}
	}
	return bids, asks
}

func TestComputeQuotesSingleLevel(t *testing.T) {
	prec := Precision{PriceDecimals: 2, SizeDecimals: 5}

	quotes, err := ComputeQuotes(50_000, quoteConfig(), prec, Position{}, StateActive)
	require.NoError(t, err)

	bids, asks := bySide(quotes)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)

	// 10 bps of spread, 5 bps each side of 50,000.
	assert.InDelta(t, 49_975.0, bids[0].Price, 0.01)
	assert.InDelta(t, 50_025.0, asks[0].Price, 0.01)
	assert.InDelta(t, 0.003, bids[0].Size, 1e-9)
	assert.InDelta(t, 0.003, asks[0].Size, 1e-9)
	assert.False(t, bids[0].ReduceOnly)
}

func TestComputeQuotesMultiLevelWidens(t *testing.T) {
	cfg := quoteConfig()
	cfg.QuoteLevels = []QuoteLevelConfig{
		{Level: 1, SpreadMultiplier: 1.0, SizeMultiplier: 1.0},
		{Level: 2, SpreadMultiplier: 1.0, SizeMultiplier: 2.0},
	}
	prec := Precision{PriceDecimals: 2, SizeDecimals: 5}

	quotes, err := ComputeQuotes(50_000, cfg, prec, Position{}, StateActive)
	require.NoError(t, err)

	bids, asks := bySide(quotes)
	require.Len(t, bids, 2)
	require.Len(t, asks, 2)

	// Level 2 carries twice the half-spread and twice the size.
	assert.Less(t, bids[1].Price, bids[0].Price)
	assert.Greater(t, asks[1].Price, asks[0].Price)
	assert.InDelta(t, 2*bids[0].Size, bids[1].Size, 1e-9)
}

func TestComputeQuotesHedgeOnlyLong(t *testing.T) {
	prec := Precision{PriceDecimals: 2, SizeDecimals: 5}
	pos := Position{Symbol: "BTC", Size: 0.1}

	quotes, err := ComputeQuotes(50_000, quoteConfig(), prec, pos, StateHedgeOnly)
	require.NoError(t, err)

	bids, asks := bySide(quotes)
	assert.Empty(t, bids, "a long position gets no new bids in hedge-only")
	require.NotEmpty(t, asks)
	for _, q := range asks {
		assert.True(t, q.ReduceOnly)
	}
}

func TestComputeQuotesHedgeOnlyFlat(t *testing.T) {
	prec := Precision{PriceDecimals: 2, SizeDecimals: 5}

	quotes, err := ComputeQuotes(50_000, quoteConfig(), prec, Position{}, StateHedgeOnly)
	require.NoError(t, err)
	assert.Empty(t, quotes, "flat in hedge-only quotes nothing")
}

func TestComputeQuotesExposureClamp(t *testing.T) {
	cfg := quoteConfig()
	cfg.MaxLongUSD = 5_000
	prec := Precision{PriceDecimals: 2, SizeDecimals: 5}

	// 0.098 BTC at 50k is 4,900 USD; one more 150 USD bid set would
	// push past the long limit.
	pos := Position{Symbol: "BTC", Size: 0.098}
	quotes, err := ComputeQuotes(50_000, cfg, prec, pos, StateActive)
	require.NoError(t, err)

	bids, asks := bySide(quotes)
	assert.Empty(t, bids)
	assert.NotEmpty(t, asks, "the short side is unaffected")
}

func TestComputeQuotesTinySizeSkipped(t *testing.T) {
	cfg := quoteConfig()
	cfg.NotionalPerSide = 0.01
	prec := Precision{PriceDecimals: 2, SizeDecimals: 2}

	// 0.01/50000 truncates to zero at two size decimals.
	quotes, err := ComputeQuotes(50_000, cfg, prec, Position{}, StateActive)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestValidateLevels(t *testing.T) {
	cfg := quoteConfig()
	assert.NoError(t, ValidateLevels(cfg))

	cfg.QuoteLevels = nil
	assert.ErrorIs(t, ValidateLevels(cfg), ErrInvalidLevelConfig)

	cfg.QuoteLevels = []QuoteLevelConfig{{Level: 1, SpreadMultiplier: -1, SizeMultiplier: 1}}
	assert.ErrorIs(t, ValidateLevels(cfg), ErrInvalidLevelConfig)

	cfg.QuoteLevels = []QuoteLevelConfig{{Level: 1, SpreadMultiplier: 1, SizeMultiplier: 0}}
	assert.ErrorIs(t, ValidateLevels(cfg), ErrInvalidLevelConfig)

	// Level 2 at 0.4x weighting sits inside level 1's spread.
	cfg.QuoteLevels = []QuoteLevelConfig{
		{Level: 1, SpreadMultiplier: 1.0, SizeMultiplier: 1.0},
		{Level: 2, SpreadMultiplier: 0.4, SizeMultiplier: 1.0},
	}
	assert.ErrorIs(t, ValidateLevels(cfg), ErrInvalidLevelConfig)
}

func TestComputeQuotesRejectsBadInput(t *testing.T) {
	prec := Precision{PriceDecimals: 2, SizeDecimals: 5}

	_, err := ComputeQuotes(0, quoteConfig(), prec, Position{}, StateActive)
	assert.Error(t, err)

	cfg := quoteConfig()
	cfg.QuoteLevels = nil
	_, err = ComputeQuotes(50_000, cfg, prec, Position{}, StateActive)
	assert.ErrorIs(t, err, ErrInvalidLevelConfig)
}
