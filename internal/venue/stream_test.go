package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMidStreamSeed(t *testing.T) {
	s := NewMidStream("wss://example/ws", zap.NewNop())

	_, ok := s.Mid("BTC")
	assert.False(t, ok)

	s.Seed(map[string]float64{"BTC": 50_000, "ETH": 3_000, "BAD": 0})

	px, ok := s.Mid("BTC")
	assert.True(t, ok)
	assert.Equal(t, 50_000.0, px)

	_, ok = s.Mid("BAD")
	assert.False(t, ok, "non-positive seeds are dropped")

	// A later seed never overwrites a price already present.
	s.Seed(map[string]float64{"BTC": 49_000})
	px, _ = s.Mid("BTC")
	assert.Equal(t, 50_000.0, px)
}
