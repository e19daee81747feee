package telemetry

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/config"
	"github.com/permabid/permabid/internal/mm"
	"github.com/permabid/permabid/pkg/metrics"
)

// Snapshot is one published view of every open position.
type Snapshot struct {
	Timestamp          int64         `json:"timestamp"`
	Positions          []mm.Position `json:"positions"`
	TotalPnL           float64       `json:"total_pnl"`
	TotalLongExposure  float64       `json:"total_long_exposure"`
	TotalShortExposure float64       `json:"total_short_exposure"`
}

// BuildSnapshot aggregates the board into a deterministic snapshot.
// Positions are sorted by symbol so downstream consumers can diff
// successive payloads.
func BuildSnapshot(positions map[string]mm.Position, now time.Time) Snapshot {
	snap := Snapshot{Timestamp: now.UnixMilli()}
	for _, pos := range positions {
		snap.Positions = append(snap.Positions, pos)
		snap.TotalPnL += pos.UnrealizedPnL + pos.RealizedPnLToday
		if pos.Size > 0 {
			snap.TotalLongExposure += pos.NotionalUSD
		} else if pos.Size < 0 {
			snap.TotalShortExposure += pos.NotionalUSD
		}
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})
	return snap
}

// Publisher periodically publishes the position board to a pub/sub
// channel for live consumers and appends to a capped stream for history.
type Publisher struct {
	rdb    *redis.Client
	board  *mm.PositionBoard
	cfg    config.TelemetryConfig
	logger *zap.Logger
}

func NewPublisher(rdb *redis.Client, board *mm.PositionBoard, cfg config.TelemetryConfig, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, board: board, cfg: cfg, logger: logger}
}

// Run publishes at the configured interval until ctx is cancelled. Empty
// boards are skipped so consumers are not flooded with idle snapshots.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.publish(ctx)
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	positions := p.board.Snapshot()
	if len(positions) == 0 {
		return
	}
	snap := BuildSnapshot(positions, time.Now())

	for _, pos := range snap.Positions {
		metrics.UnrealizedPnL.WithLabelValues(pos.Symbol).Set(pos.UnrealizedPnL)
		metrics.NotionalExposure.WithLabelValues(pos.Symbol).Set(pos.NotionalUSD)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		p.logger.Error("snapshot encode failed", zap.Error(err))
		return
	}

	if err := p.rdb.Publish(ctx, p.cfg.Channel, payload).Err(); err != nil {
		p.logger.Warn("snapshot publish failed", zap.Error(err))
	}

	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.cfg.HistoryStream,
		MaxLen: 10_000,
		Approx: true,
		Values: map[string]interface{}{"snapshot": payload},
	}).Err()
	if err != nil {
		p.logger.Warn("history append failed", zap.Error(err))
	}
}
