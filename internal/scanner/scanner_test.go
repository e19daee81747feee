package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permabid/permabid/internal/venue"
)

func TestTopByVolume(t *testing.T) {
	volumes := []SymbolVolume{
		{Symbol: "DOGE", VolumeUSD: 100},
		{Symbol: "BTC", VolumeUSD: 9_000},
		{Symbol: "SOL", VolumeUSD: 700},
		{Symbol: "ETH", VolumeUSD: 4_000},
	}

	top := TopByVolume(volumes, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "BTC", top[0].Symbol)
	assert.Equal(t, "ETH", top[1].Symbol)
	assert.Equal(t, "SOL", top[2].Symbol)

	// Input order is untouched.
	assert.Equal(t, "DOGE", volumes[0].Symbol)
}

func TestTopByVolumeTieBreaksBySymbol(t *testing.T) {
	volumes := []SymbolVolume{
		{Symbol: "ZRX", VolumeUSD: 500},
		{Symbol: "AAVE", VolumeUSD: 500},
	}
	top := TopByVolume(volumes, 2)
	assert.Equal(t, "AAVE", top[0].Symbol)
	assert.Equal(t, "ZRX", top[1].Symbol)
}

func TestTopByVolumeShortList(t *testing.T) {
	volumes := []SymbolVolume{{Symbol: "BTC", VolumeUSD: 1}}
	assert.Len(t, TopByVolume(volumes, 10), 1)
}

func TestUSDVolume(t *testing.T) {
	candles := []venue.Candle{
		{Close: "50000", Volume: "2"},
		{Close: "51000", Volume: "1"},
		{Close: "garbage", Volume: "5"},
		{Close: "49000", Volume: "bad"},
	}
	// Unparseable bars are skipped, not fatal.
	assert.InDelta(t, 151_000.0, usdVolume(candles), 1e-6)
}
