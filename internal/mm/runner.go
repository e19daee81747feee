package mm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/config"
	"github.com/permabid/permabid/internal/venue"
	"github.com/permabid/permabid/pkg/metrics"
)

// MidSource delivers the latest reference price for a symbol.
type MidSource interface {
	Mid(symbol string) (float64, bool)
}

// ConfigSource delivers the stored configuration for a symbol.
type ConfigSource interface {
	Fetch(ctx context.Context, symbol string) (SymbolConfig, error)
}

const initialBackoff = time.Second

// Runner quotes one symbol. It owns the symbol's position view, risk
// evaluator, and resting orders; nothing else touches them.
type Runner struct {
	symbol string
	logger *zap.Logger

	engine      config.EngineConfig
	callTimeout time.Duration

	store   ConfigSource
	mids    MidSource
	info    venue.InfoClient
	factory venue.ExecutionFactory
	prec    *PrecisionCache
	board   *PositionBoard

	exec   venue.ExecutionClient
	orders *OrderManager
	eval   *Evaluator

	cfg       SymbolConfig
	pos       Position
	lastState State

	needsRefresh bool
	lastQuote    time.Time
	lastCfgPoll  time.Time

	backoff time.Duration
	retryAt time.Time
}

func NewRunner(
	symbol string,
	store ConfigSource,
	mids MidSource,
	info venue.InfoClient,
	factory venue.ExecutionFactory,
	prec *PrecisionCache,
	board *PositionBoard,
	engine config.EngineConfig,
	callTimeout time.Duration,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		symbol:      symbol,
		logger:      logger.With(zap.String("symbol", symbol)),
		engine:      engine,
		callTimeout: callTimeout,
		store:       store,
		mids:        mids,
		info:        info,
		factory:     factory,
		prec:        prec,
		board:       board,
		eval:        NewEvaluator(time.Now()),
		lastState:   StateActive,
	}
}

// Run drives the symbol until ctx is cancelled. It always returns
// ErrSymbolStopped after cancelling any resting orders on the way out.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.engine.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return ErrSymbolStopped
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

// start blocks until an initial configuration is available, then builds
// the execution handle and resolves precision.
func (r *Runner) start(ctx context.Context) error {
	for {
		cfg, err := r.fetchConfig(ctx)
		if err == nil {
			r.cfg = cfg
			break
		}
		r.logger.Warn("waiting for initial configuration", zap.Error(err))
		select {
		case <-ctx.Done():
			return ErrSymbolStopped
		case <-time.After(r.engine.ConfigPollInterval):
		}
	}

	exec, err := r.factory.NewExecution(r.cfg.VaultAddress)
	if err != nil {
		return err
	}
	r.exec = exec
	r.orders = NewOrderManager(r.symbol, exec, r.logger)
	r.pos = Position{Symbol: r.symbol}
	r.lastCfgPoll = time.Now()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	r.prec.Resolve(callCtx, r.symbol)
	cancel()

	r.logger.Info("symbol runner started",
		zap.String("vault", r.cfg.VaultAddress),
		zap.Int("levels", len(r.cfg.QuoteLevels)))
	return nil
}

// cycle is one tick: poll config, refresh the position, evaluate risk,
// and reconcile quotes when due.
func (r *Runner) cycle(ctx context.Context) {
	started := time.Now()
	defer func() {
		metrics.CycleLatency.WithLabelValues(r.symbol).Observe(time.Since(started).Seconds())
	}()

	now := time.Now()
	if now.Sub(r.lastCfgPoll) >= r.engine.ConfigPollInterval {
		r.pollConfig(ctx)
		r.lastCfgPoll = now
	}

	if now.Before(r.retryAt) {
		return
	}

	mid, ok := r.mids.Mid(r.symbol)
	if !ok || mid <= 0 {
		return
	}

	if err := r.refreshPosition(ctx, mid); err != nil {
		// The exposure clamp must never run on a stale position view;
		// no placement this cycle.
		return
	}

	decision := r.eval.Evaluate(&r.pos, r.cfg, now)
	metrics.RiskState.WithLabelValues(r.symbol).Set(float64(decision.State))
	r.board.Update(r.symbol, r.pos)

	if decision.State == StateHalted {
		if decision.Flatten {
			r.logger.Warn("risk halt, flattening position",
				zap.String("reason", string(decision.Reason)),
				zap.Float64("size", r.pos.Size),
				zap.Float64("unrealized_pnl", r.pos.UnrealizedPnL))
		}
		// A halt must leave the position flat and the book empty; the
		// close is retried every cycle until the venue confirms it.
		if r.pos.Size != 0 {
			r.flatten(ctx)
		} else if r.orders.RestingCount() > 0 {
			r.cancelResting(ctx)
		}
		r.lastState = decision.State
		return
	}

	due := r.needsRefresh ||
		decision.State != r.lastState ||
		now.Sub(r.lastQuote) >= r.cfg.RefreshInterval()
	r.lastState = decision.State
	if !due {
		return
	}

	quotes, err := ComputeQuotes(mid, r.cfg, r.prec.Resolve(ctx, r.symbol), r.pos, decision.State)
	if err != nil {
		r.logger.Error("quote computation rejected", zap.Error(err))
		if r.orders.RestingCount() > 0 {
			r.cancelResting(ctx)
		}
		r.needsRefresh = false
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err = r.orders.Reconcile(callCtx, quotes)
	cancel()
	if err != nil {
		r.venueFailure("reconcile", err)
		return
	}

	r.backoff = 0
	r.needsRefresh = false
	r.lastQuote = now
}

func (r *Runner) fetchConfig(ctx context.Context) (SymbolConfig, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.store.Fetch(callCtx, r.symbol)
}

// pollConfig applies a changed configuration atomically within the tick
// that observed it. A vault change cancels orders under the old handle
// and rebuilds the execution client before anything else runs.
func (r *Runner) pollConfig(ctx context.Context) {
	cfg, err := r.fetchConfig(ctx)
	if err != nil {
		if errors.Is(err, ErrConfigMissing) {
			r.logger.Warn("configuration removed, keeping last known good")
		} else {
			r.logger.Warn("config store unreachable, keeping last known good", zap.Error(err))
		}
		return
	}
	if cfg.Equal(r.cfg) {
		return
	}

	if cfg.VaultAddress != r.cfg.VaultAddress {
		// Orders booked under the old vault can only be cancelled through
		// the old handle; the swap waits until that cancel is confirmed.
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.orders.CancelAll(callCtx)
		cancel()
		if err != nil {
			r.logger.Warn("cancel under old vault failed, vault change deferred",
				zap.String("vault", cfg.VaultAddress), zap.Error(err))
			return
		}
		exec, err := r.factory.NewExecution(cfg.VaultAddress)
		if err != nil {
			r.logger.Error("execution client rebuild failed, config not applied",
				zap.String("vault", cfg.VaultAddress), zap.Error(err))
			return
		}
		r.exec = exec
		r.orders.SetExecution(exec)
		r.logger.Info("execution handle recreated", zap.String("vault", cfg.VaultAddress))
	}

	r.cfg = cfg
	r.eval.ClearHalt()
	r.needsRefresh = true
	metrics.ConfigReloads.WithLabelValues(r.symbol).Inc()
	r.logger.Info("configuration applied",
		zap.Uint16("daily_return_bps", cfg.DailyReturnBps),
		zap.Float64("notional_per_side", cfg.NotionalPerSide),
		zap.Int("levels", len(cfg.QuoteLevels)),
		zap.Bool("enable_trading", cfg.EnableTrading))
}

// refreshPosition pulls the account state and folds it into the local
// position view. The trailing extreme and realized daily PnL survive
// venue restatements because only the evaluator mutates them.
func (r *Runner) refreshPosition(ctx context.Context, mid float64) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	positions, err := r.info.UserState(callCtx, r.exec.Address())
	if err != nil {
		metrics.VenueErrors.WithLabelValues("user_state").Inc()
		r.logger.Warn("account state unavailable, skipping cycle", zap.Error(err))
		r.pos.CurrentPrice = mid
		return err
	}

	found := false
	for _, p := range positions {
		if p.Symbol != r.symbol {
			continue
		}
		r.pos.Size = p.Size
		r.pos.EntryPrice = p.EntryPrice
		r.pos.UnrealizedPnL = p.UnrealizedPnL
		found = true
		break
	}
	if !found {
		r.pos.Size = 0
		r.pos.EntryPrice = 0
		r.pos.UnrealizedPnL = 0
	}
	r.pos.CurrentPrice = mid
	r.pos.NotionalUSD = absf(r.pos.Size) * mid
	metrics.UnrealizedPnL.WithLabelValues(r.symbol).Set(r.pos.UnrealizedPnL)
	metrics.NotionalExposure.WithLabelValues(r.symbol).Set(r.pos.NotionalUSD)
	return nil
}

// flatten cancels everything and closes the position at market, then
// folds the unrealized result into the daily realized figure so the
// stop-loss latch keeps holding.
func (r *Runner) flatten(ctx context.Context) {
	r.cancelResting(ctx)

	if r.pos.Size != 0 {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		err := r.exec.MarketClose(callCtx, r.symbol, r.pos.Size, r.engine.FlattenSlippage)
		cancel()
		if err != nil {
			metrics.VenueErrors.WithLabelValues("market_close").Inc()
			r.logger.Error("market close failed, will retry next cycle", zap.Error(err))
			return
		}
	}

	r.pos.RealizedPnLToday += r.pos.UnrealizedPnL
	r.pos.UnrealizedPnL = 0
	r.pos.Size = 0
	r.pos.NotionalUSD = 0
	r.board.Update(r.symbol, r.pos)
}

func (r *Runner) cancelResting(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if err := r.orders.CancelAll(callCtx); err != nil {
		r.venueFailure("cancel_all", err)
	}
}

// venueFailure records the error and arms exponential backoff, doubling
// up to the configured ceiling.
func (r *Runner) venueFailure(op string, err error) {
	metrics.VenueErrors.WithLabelValues(op).Inc()
	if r.backoff == 0 {
		r.backoff = initialBackoff
	} else {
		r.backoff *= 2
		if r.backoff > r.engine.MaxBackoff {
			r.backoff = r.engine.MaxBackoff
		}
	}
	r.retryAt = time.Now().Add(r.backoff)
	r.logger.Warn("venue call failed, backing off",
		zap.String("op", op),
		zap.Duration("backoff", r.backoff),
		zap.Error(err))
}

// shutdown makes a best-effort pass to leave the book clean.
func (r *Runner) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), r.callTimeout)
	defer cancel()
	if r.orders == nil {
		return
	}
	if err := r.orders.CancelAll(ctx); err != nil {
		r.logger.Warn("shutdown cancel failed, orders may rest", zap.Error(err))
	}
	r.board.Remove(r.symbol)
	r.logger.Info("symbol runner stopped")
}
