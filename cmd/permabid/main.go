package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/config"
	"github.com/permabid/permabid/internal/configsvc"
	"github.com/permabid/permabid/internal/mm"
	"github.com/permabid/permabid/internal/ops"
	"github.com/permabid/permabid/internal/scanner"
	"github.com/permabid/permabid/internal/store"
	"github.com/permabid/permabid/internal/telemetry"
	"github.com/permabid/permabid/internal/venue"
	"github.com/permabid/permabid/pkg/logger"
)

// Process roles, selected by the MODE environment variable.
const (
	modeMarketMaker     = "MarketMaker"
	modeSymbolScanner   = "SymbolScanner"
	modeConfigService   = "ConfigService"
	modePositionManager = "PositionManager"
)

func main() {
	// A missing .env is fine in containerized deployments.
	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("configuration load failed", zap.Error(err))
	}

	mode := os.Getenv("MODE")
	if mode == "" {
		mode = modeMarketMaker
	}
	log.Info("starting", zap.String("mode", mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := store.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	info := venue.NewRestInfoClient(cfg.Venue.BaseURL, cfg.Venue.CallTimeout, log)
	configStore := mm.NewConfigStore(rdb)
	board := mm.NewPositionBoard()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("component exited", zap.String("component", name), zap.Error(err))
				stop()
			}
		}()
	}

	opsServer := ops.NewServer(cfg.Ops.Addr, board, log)
	run("ops", opsServer.Run)

	switch mode {
	case modeMarketMaker:
		walletKey := os.Getenv("HYPERLIQUID_WALLET_KEY")
		if walletKey == "" {
			log.Fatal("HYPERLIQUID_WALLET_KEY is required for the MarketMaker role")
		}
		factory, err := venue.NewFactory(cfg.Venue.BaseURL, walletKey, cfg.Venue.CallTimeout, log)
		if err != nil {
			log.Fatal("execution factory init failed", zap.Error(err))
		}

		mids := venue.NewMidStream(cfg.Venue.WSURL, log)
		if snapshot, err := info.AllMids(ctx); err != nil {
			log.Warn("mid price seed failed, waiting on stream", zap.Error(err))
		} else {
			mids.Seed(snapshot)
		}
		prec := mm.NewPrecisionCache(info, log)
		engine := mm.NewEngine(cfg, configStore, mids, info, factory, prec, board, log)
		svc := configsvc.New(rdb, configStore, cfg.ConfigChannel, log)
		pub := telemetry.NewPublisher(rdb, board, cfg.Telemetry, log)

		run("mids", func(c context.Context) error { mids.Run(c); return c.Err() })
		run("engine", engine.Run)
		run("configsvc", svc.Run)
		run("telemetry", pub.Run)

	case modeSymbolScanner:
		sc := scanner.New(info, rdb, cfg.Scanner, log)
		run("scanner", sc.Run)

	case modeConfigService:
		svc := configsvc.New(rdb, configStore, cfg.ConfigChannel, log)
		if bad, err := svc.LoadStored(ctx); err != nil {
			log.Warn("stored config audit failed", zap.Error(err))
		} else if len(bad) > 0 {
			log.Warn("stored configs failed validation", zap.Strings("symbols", bad))
		}
		run("configsvc", svc.Run)

	case modePositionManager:
		pub := telemetry.NewPublisher(rdb, board, cfg.Telemetry, log)
		run("telemetry", pub.Run)

	default:
		log.Fatal("unknown MODE", zap.String("mode", mode))
	}

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	log.Info("shutdown complete")
}
