package mm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/config"
	"github.com/permabid/permabid/internal/venue"
)

type fakeConfigSource struct {
	cfg SymbolConfig
	err error
}

func (f *fakeConfigSource) Fetch(ctx context.Context, symbol string) (SymbolConfig, error) {
	if f.err != nil {
		return SymbolConfig{}, f.err
	}
	return f.cfg, nil
}

type fakeMids struct {
	mid float64
	ok  bool
}

func (f *fakeMids) Mid(symbol string) (float64, bool) { return f.mid, f.ok }

type fakeFactory struct {
	execs  []*fakeExec
	vaults []string
	err    error
}

func (f *fakeFactory) NewExecution(vault string) (venue.ExecutionClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	exec := &fakeExec{}
	f.execs = append(f.execs, exec)
	f.vaults = append(f.vaults, vault)
	return exec, nil
}

func runnerFixture(t *testing.T) (*Runner, *fakeConfigSource, *fakeMids, *fakeInfo, *fakeFactory) {
	t.Helper()
	source := &fakeConfigSource{cfg: SymbolConfig{
		Symbol:                    "BTC",
		DailyReturnBps:            10,
		NotionalPerSide:           150,
		DailyPnLStopLoss:          100,
		MaxLongUSD:                10_000,
		MaxShortUSD:               10_000,
		ForceQuoteRefreshInterval: 100,
		EnableTrading:             true,
		QuoteLevels:               DefaultQuoteLevels(),
	}}
	mids := &fakeMids{mid: 50_000, ok: true}
	info := &fakeInfo{metas: []venue.AssetMeta{{Name: "BTC", SizeDecimals: 5, PriceDecimals: 2}}}
	factory := &fakeFactory{}
	engine := config.EngineConfig{
		ConfigPollInterval: 0, // poll every cycle
		TickInterval:       time.Millisecond,
		MaxBackoff:         30 * time.Second,
		FlattenSlippage:    0.03,
	}

	r := NewRunner("BTC", source, mids, info,
		factory, NewPrecisionCache(info, zap.NewNop()), NewPositionBoard(),
		engine, time.Second, zap.NewNop())
	return r, source, mids, info, factory
}

func TestRunnerQuotesAfterStart(t *testing.T) {
	r, _, _, _, factory := runnerFixture(t)
	ctx := context.Background()

	require.NoError(t, r.start(ctx))
	require.Len(t, factory.execs, 1)

	r.cycle(ctx)

	exec := factory.execs[0]
	require.Len(t, exec.placed, 2, "one bid and one ask")
	assert.Equal(t, 2, r.orders.RestingCount())
	for _, req := range exec.placed {
		assert.True(t, req.AddLiquidityOnly)
	}
}

func TestRunnerWaitsForInitialConfig(t *testing.T) {
	r, source, _, _, _ := runnerFixture(t)
	source.err = ErrConfigMissing

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.start(ctx)
	assert.ErrorIs(t, err, ErrSymbolStopped)
}

func TestRunnerAppliesConfigChangeSameTick(t *testing.T) {
	r, source, _, _, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))
	r.cycle(ctx)

	changed := source.cfg
	changed.DailyReturnBps = 20
	source.cfg = changed
	r.cycle(ctx)

	assert.Equal(t, uint16(20), r.cfg.DailyReturnBps)
	// 20 bps of spread, 10 bps per side of 50,000.
	exec := factory.execs[0]
	last := exec.placed[len(exec.placed)-2:]
	prices := []float64{last[0].Price, last[1].Price}
	assert.Contains(t, prices, 49_950.0)
	assert.Contains(t, prices, 50_050.0)
}

func TestRunnerVaultChangeRecreatesExecution(t *testing.T) {
	r, source, _, _, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))
	r.cycle(ctx)
	old := factory.execs[0]
	require.Len(t, old.placed, 2)

	changed := source.cfg
	changed.VaultAddress = "0x52908400098527886E0F7030069857D2E4169EE7"
	source.cfg = changed
	r.cycle(ctx)

	require.Len(t, factory.execs, 2, "a vault change builds a fresh client")
	assert.Equal(t, changed.VaultAddress, factory.vaults[1])
	assert.Len(t, old.cancelled, 2, "old orders cancelled under the old handle")
	assert.Len(t, factory.execs[1].placed, 2, "requote goes through the new handle")
}

func TestRunnerKeepsLastGoodConfigOnStoreOutage(t *testing.T) {
	r, source, _, _, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))
	r.cycle(ctx)

	source.err = errors.New("redis down")
	r.needsRefresh = true
	r.cycle(ctx)

	assert.Equal(t, uint16(10), r.cfg.DailyReturnBps)
	exec := factory.execs[0]
	assert.GreaterOrEqual(t, len(exec.placed), 4, "quoting continues on the last good config")
}

func TestRunnerFlattensOnDailyStop(t *testing.T) {
	r, _, _, info, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))
	r.cycle(ctx)

	exec := factory.execs[0]
	require.Equal(t, 2, r.orders.RestingCount())

	info.positions = []venue.Position{
		{Symbol: "BTC", Size: 0.1, EntryPrice: 51_000, UnrealizedPnL: -120},
	}
	r.cycle(ctx)

	assert.Contains(t, exec.calls, "close", "position closed at market")
	assert.Equal(t, 0, r.orders.RestingCount(), "book left clean")
	assert.Equal(t, -120.0, r.pos.RealizedPnLToday, "loss folded into the daily figure")
	assert.Equal(t, 0.0, r.pos.Size)

	// The halt latches: the next cycle places nothing new.
	placedBefore := len(exec.placed)
	r.cycle(ctx)
	assert.Equal(t, placedBefore, len(exec.placed))
}

func countCalls(calls []string, op string) int {
	n := 0
	for _, c := range calls {
		if c == op {
			n++
		}
	}
	return n
}

func TestRunnerRetriesFlattenWhileHalted(t *testing.T) {
	r, _, _, info, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))
	r.cycle(ctx)

	exec := factory.execs[0]
	exec.closeErr = errors.New("gateway timeout")
	info.positions = []venue.Position{
		{Symbol: "BTC", Size: 0.1, EntryPrice: 51_000, UnrealizedPnL: -120},
	}
	r.cycle(ctx)

	assert.Equal(t, 1, countCalls(exec.calls, "close"))
	assert.Equal(t, 0.0, r.pos.RealizedPnLToday, "unconfirmed close folds nothing")
	assert.Equal(t, 0.1, r.pos.Size)
	assert.Equal(t, 0, r.orders.RestingCount())

	// Still halted, still holding: the close is re-attempted each cycle.
	r.cycle(ctx)
	assert.Equal(t, 2, countCalls(exec.calls, "close"))

	exec.closeErr = nil
	r.cycle(ctx)
	assert.Equal(t, 3, countCalls(exec.calls, "close"))
	assert.Equal(t, -120.0, r.pos.RealizedPnLToday)
	assert.Equal(t, 0.0, r.pos.Size)

	// Once the venue reports flat, nothing more is sent.
	info.positions = nil
	r.cycle(ctx)
	assert.Equal(t, 3, countCalls(exec.calls, "close"))
}

func TestRunnerDefersVaultChangeUntilOldOrdersCancelled(t *testing.T) {
	r, source, _, _, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))
	r.cycle(ctx)

	old := factory.execs[0]
	old.cancelErr = errors.New("timeout")

	changed := source.cfg
	changed.VaultAddress = "0x52908400098527886E0F7030069857D2E4169EE7"
	source.cfg = changed
	r.cycle(ctx)

	require.Len(t, factory.execs, 1, "no new handle until the old book is clean")
	assert.Empty(t, r.cfg.VaultAddress, "config with the new vault not applied")
	assert.Equal(t, 2, r.orders.RestingCount())

	old.cancelErr = nil
	r.cycle(ctx)

	require.Len(t, factory.execs, 2)
	assert.Equal(t, changed.VaultAddress, r.cfg.VaultAddress)
	assert.Len(t, old.cancelled, 2, "old orders cancelled through the old handle")
	assert.Len(t, factory.execs[1].placed, 2, "requote goes through the new handle")
}

func TestRunnerSkipsPlacementOnPositionRefreshFailure(t *testing.T) {
	r, _, _, info, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))

	info.userErr = errors.New("info endpoint down")
	r.cycle(ctx)
	assert.Empty(t, factory.execs[0].placed, "no placement against a stale position view")

	info.userErr = nil
	r.cycle(ctx)
	assert.Len(t, factory.execs[0].placed, 2)
}

func TestRunnerSkipsCycleWithoutMid(t *testing.T) {
	r, _, mids, _, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))

	mids.ok = false
	r.cycle(ctx)
	assert.Empty(t, factory.execs[0].placed)
}

func TestRunnerBacksOffAfterVenueFailure(t *testing.T) {
	r, _, _, _, factory := runnerFixture(t)
	ctx := context.Background()
	require.NoError(t, r.start(ctx))

	exec := factory.execs[0]
	exec.placeErr = errors.New("gateway timeout")
	r.cycle(ctx)
	assert.True(t, r.retryAt.After(time.Now().Add(-time.Millisecond)))
	firstBackoff := r.backoff
	assert.Equal(t, initialBackoff, firstBackoff)

	// While armed, cycles are skipped entirely.
	calls := len(exec.calls)
	r.cycle(ctx)
	assert.Equal(t, calls, len(exec.calls))
}
