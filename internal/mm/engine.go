package mm

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/config"
	"github.com/permabid/permabid/internal/venue"
)

// Engine discovers configured symbols and keeps one runner alive per
// symbol. A runner that dies is restarted on the next discovery pass;
// one symbol's failure never touches the others.
type Engine struct {
	logger  *zap.Logger
	cfg     *config.Config
	store   *ConfigStore
	mids    MidSource
	info    venue.InfoClient
	factory venue.ExecutionFactory
	prec    *PrecisionCache
	board   *PositionBoard

	mu      sync.Mutex
	running map[string]*runnerHandle
	wg      sync.WaitGroup
}

type runnerHandle struct {
	cancel context.CancelFunc
}

func NewEngine(
	cfg *config.Config,
	store *ConfigStore,
	mids MidSource,
	info venue.InfoClient,
	factory venue.ExecutionFactory,
	prec *PrecisionCache,
	board *PositionBoard,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		logger:  logger,
		cfg:     cfg,
		store:   store,
		mids:    mids,
		info:    info,
		factory: factory,
		prec:    prec,
		board:   board,
		running: make(map[string]*runnerHandle),
	}
}

// Run polls the config store for the symbol universe and reconciles the
// runner set against it until ctx is cancelled, then waits for every
// runner to cancel its orders and exit.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Engine.ConfigPollInterval)
	defer ticker.Stop()

	e.reconcileRunners(ctx)
	for {
		select {
		case <-ctx.Done():
			e.stopAll()
			e.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			e.reconcileRunners(ctx)
		}
	}
}

func (e *Engine) reconcileRunners(ctx context.Context) {
	symbols, err := e.store.Symbols(ctx)
	if err != nil {
		e.logger.Warn("symbol discovery failed, keeping current set", zap.Error(err))
		return
	}

	want := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		want[sym] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for sym, h := range e.running {
		if _, ok := want[sym]; !ok {
			e.logger.Info("symbol deconfigured, stopping runner", zap.String("symbol", sym))
			h.cancel()
			delete(e.running, sym)
		}
	}

	for sym := range want {
		if _, ok := e.running[sym]; ok {
			continue
		}
		e.spawnLocked(ctx, sym)
	}
}

func (e *Engine) spawnLocked(ctx context.Context, symbol string) {
	runCtx, cancel := context.WithCancel(ctx)
	h := &runnerHandle{cancel: cancel}
	e.running[symbol] = h

	runner := NewRunner(symbol, e.store, e.mids, e.info, e.factory,
		e.prec, e.board, e.cfg.Engine, e.cfg.Venue.CallTimeout, e.logger)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := runner.Run(runCtx)
		if err != nil && !errors.Is(err, ErrSymbolStopped) {
			e.logger.Error("symbol runner failed", zap.String("symbol", symbol), zap.Error(err))
		}
		// Deregister so the next discovery pass can restart it. A
		// replacement registered meanwhile stays untouched.
		e.mu.Lock()
		if e.running[symbol] == h {
			h.cancel()
			delete(e.running, symbol)
		}
		e.mu.Unlock()
	}()
}

func (e *Engine) stopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for sym, h := range e.running {
		h.cancel()
		delete(e.running, sym)
	}
}
