package mm

import "time"

// State is the per-symbol risk state, recomputed every cycle.
type State int

const (
	StateActive State = iota
	StateHedgeOnly
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateHedgeOnly:
		return "hedge_only"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Reason records why the evaluator left the Active state.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonDailyStopLoss      Reason = "daily_stop_loss"
	ReasonTrailingTakeProfit Reason = "trailing_take_profit"
	ReasonTrailingStopLoss   Reason = "trailing_stop_loss"
	ReasonHedgeOnly          Reason = "hedge_only_mode"
	ReasonTradingDisabled    Reason = "trading_disabled"
)

// Decision is the evaluator's output for one cycle. Flatten is set only on
// the transition into Halted: cancel all resting orders, close the
// position, do not replace.
type Decision struct {
	State   State
	Reason  Reason
	Flatten bool
}

const tradingDay = 24 * time.Hour

// Evaluator drives the PnL tripwires for one symbol. A halt latches for
// the remainder of the trading day; a daily boundary or an applied
// configuration change clears it.
type Evaluator struct {
	dayStart   time.Time
	halted     bool
	haltReason Reason
}

// NewEvaluator starts a trading day at now.
func NewEvaluator(now time.Time) *Evaluator {
	return &Evaluator{dayStart: now}
}

// Halted reports whether a halt is currently latched.
func (e *Evaluator) Halted() bool { return e.halted }

// ClearHalt releases a latched halt. Called when an operator applies a new
// configuration, which re-enables trading before the daily boundary.
func (e *Evaluator) ClearHalt() {
	e.halted = false
	e.haltReason = ReasonNone
}

// Evaluate updates the trailing extreme and daily window on pos, then
// decides the risk state in priority order: daily stop-loss, trailing
// take-profit, trailing stop-loss, hedge-only/disabled, active.
func (e *Evaluator) Evaluate(pos *Position, cfg SymbolConfig, now time.Time) Decision {
	if now.Sub(e.dayStart) >= tradingDay {
		e.dayStart = now
		e.halted = false
		e.haltReason = ReasonNone
		pos.RealizedPnLToday = 0
		pos.TrailingExtreme = 0
	}

	// The extreme is advanced before any threshold check so retrace is
	// always measured against the true peak.
	if pos.UnrealizedPnL > pos.TrailingExtreme {
		pos.TrailingExtreme = pos.UnrealizedPnL
	}

	if e.halted {
		return Decision{State: StateHalted, Reason: e.haltReason}
	}

	totalDaily := pos.RealizedPnLToday + pos.UnrealizedPnL

	if cfg.DailyPnLStopLoss > 0 && totalDaily <= -cfg.DailyPnLStopLoss {
		e.halted = true
		e.haltReason = ReasonDailyStopLoss
		return Decision{State: StateHalted, Reason: ReasonDailyStopLoss, Flatten: true}
	}

	if cfg.TrailingTakeProfit > 0 && pos.TrailingExtreme > 0 {
		floor := pos.TrailingExtreme * (1 - cfg.TrailingTakeProfit)
		if pos.UnrealizedPnL < floor {
			e.halted = true
			e.haltReason = ReasonTrailingTakeProfit
			return Decision{State: StateHalted, Reason: ReasonTrailingTakeProfit, Flatten: true}
		}
	}

	if cfg.TrailingStopLoss > 0 && pos.TrailingExtreme > 0 {
		drawdown := pos.TrailingExtreme - pos.UnrealizedPnL
		if drawdown > pos.TrailingExtreme*cfg.TrailingStopLoss {
			e.halted = true
			e.haltReason = ReasonTrailingStopLoss
			return Decision{State: StateHalted, Reason: ReasonTrailingStopLoss, Flatten: true}
		}
	}

	if cfg.HedgeOnlyMode {
		return Decision{State: StateHedgeOnly, Reason: ReasonHedgeOnly}
	}
	if !cfg.EnableTrading {
		return Decision{State: StateHedgeOnly, Reason: ReasonTradingDisabled}
	}

	return Decision{State: StateActive}
}
