package mm

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/venue"
	"github.com/permabid/permabid/pkg/metrics"
)

// RestingOrder is the local belief about an order working on the book.
type RestingOrder struct {
	OrderID  uint64
	ClientID string
	Side     venue.Side
	Price    float64
	Size     float64
	Level    int
}

// OrderManager owns the resting-order set for a single symbol and applies the
// cancel-and-replace discipline: the previous quote set is cancelled in full
// before any replacement order is submitted.
type OrderManager struct {
	symbol string
	logger *zap.Logger

	mu      sync.Mutex
	exec    venue.ExecutionClient
	resting map[uint64]RestingOrder
}

func NewOrderManager(symbol string, exec venue.ExecutionClient, logger *zap.Logger) *OrderManager {
	return &OrderManager{
		symbol:  symbol,
		logger:  logger,
		exec:    exec,
		resting: make(map[uint64]RestingOrder),
	}
}

// SetExecution swaps the execution handle, used when the configured vault
// address changes. The resting set is kept: orders working under the old
// handle still belong to this symbol and must be cancelled before requoting.
func (m *OrderManager) SetExecution(exec venue.ExecutionClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exec = exec
}

// RestingCount reports the number of orders believed to be on the book.
func (m *OrderManager) RestingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resting)
}

// CancelAll cancels every resting order in one bulk call. The local set is
// cleared only for orders the venue confirmed cancelled; on transport failure
// the belief is kept so the next cycle retries.
func (m *OrderManager) CancelAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelAllLocked(ctx)
}

func (m *OrderManager) cancelAllLocked(ctx context.Context) error {
	if len(m.resting) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(m.resting))
	for id := range m.resting {
		ids = append(ids, id)
	}
	results, err := m.exec.BulkCancel(ctx, m.symbol, ids)
	if err != nil {
		return fmt.Errorf("%w: bulk cancel %s: %v", ErrVenueUnreachable, m.symbol, err)
	}
	for _, res := range results {
		if res.Cancelled {
			delete(m.resting, res.OrderID)
			metrics.OrdersCancelled.WithLabelValues(m.symbol).Inc()
			continue
		}
		// Already-gone orders (filled or expired) are not on the book either.
		m.logger.Debug("cancel rejected, dropping local belief",
			zap.String("symbol", m.symbol),
			zap.Uint64("order_id", res.OrderID),
			zap.String("reason", res.Reason))
		delete(m.resting, res.OrderID)
	}
	return nil
}

// Reconcile replaces the resting quote set with the desired one. All existing
// orders are cancelled first; only when the cancel batch has been acknowledged
// are the new orders submitted, all add-liquidity-only. Per-order rejects are
// logged and counted but do not fail the cycle.
func (m *OrderManager) Reconcile(ctx context.Context, quotes []Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.cancelAllLocked(ctx); err != nil {
		return err
	}
	if len(quotes) == 0 {
		return nil
	}

	reqs := make([]venue.OrderRequest, 0, len(quotes))
	for _, q := range quotes {
		reqs = append(reqs, venue.OrderRequest{
			Symbol:           m.symbol,
			Side:             q.Side,
			Price:            q.Price,
			Size:             q.Size,
			ReduceOnly:       q.ReduceOnly,
			AddLiquidityOnly: true,
			ClientID:         uuid.NewString(),
		})
	}

	results, err := m.exec.BulkPlace(ctx, m.symbol, reqs)
	if err != nil {
		return fmt.Errorf("%w: bulk place %s: %v", ErrVenueUnreachable, m.symbol, err)
	}
	for i, res := range results {
		if i >= len(reqs) {
			break
		}
		req := reqs[i]
		switch res.Status {
		case venue.PlaceResting:
			m.resting[res.OrderID] = RestingOrder{
				OrderID:  res.OrderID,
				ClientID: req.ClientID,
				Side:     req.Side,
				Price:    req.Price,
				Size:     req.Size,
				Level:    quotes[i].LevelIndex,
			}
			metrics.OrdersPlaced.WithLabelValues(m.symbol, string(req.Side)).Inc()
		case venue.PlaceFilled:
			// Filled on arrival; nothing rests.
			metrics.OrdersPlaced.WithLabelValues(m.symbol, string(req.Side)).Inc()
		default:
			metrics.OrdersRejected.WithLabelValues(m.symbol, res.Reason).Inc()
			m.logger.Warn("order rejected",
				zap.String("symbol", m.symbol),
				zap.String("side", string(req.Side)),
				zap.Float64("price", req.Price),
				zap.Float64("size", req.Size),
				zap.String("reason", res.Reason))
		}
	}
	return nil
}
