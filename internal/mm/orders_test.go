package mm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/permabid/permabid/internal/venue"
)

// fakeExec records bulk calls and scripts their outcomes.
type fakeExec struct {
	calls []string

	nextID     uint64
	placeErr   error
	cancelErr  error
	closeErr   error
	rejectEach bool

	placed    []venue.OrderRequest
	cancelled []uint64
}

func (f *fakeExec) BulkPlace(ctx context.Context, symbol string, orders []venue.OrderRequest) ([]venue.PlaceResult, error) {
	f.calls = append(f.calls, "place")
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, orders...)
	results := make([]venue.PlaceResult, len(orders))
	for i := range orders {
		if f.rejectEach {
			results[i] = venue.PlaceResult{Status: venue.PlaceRejected, Reason: "post only would cross"}
			continue
		}
		f.nextID++
		results[i] = venue.PlaceResult{OrderID: f.nextID, Status: venue.PlaceResting}
	}
	return results, nil
}

func (f *fakeExec) BulkCancel(ctx context.Context, symbol string, orderIDs []uint64) ([]venue.CancelResult, error) {
	f.calls = append(f.calls, "cancel")
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderIDs...)
	results := make([]venue.CancelResult, len(orderIDs))
	for i, id := range orderIDs {
		results[i] = venue.CancelResult{OrderID: id, Cancelled: true}
	}
	return results, nil
}

func (f *fakeExec) MarketClose(ctx context.Context, symbol string, size, slippage float64) error {
	f.calls = append(f.calls, "close")
	return f.closeErr
}

func (f *fakeExec) Address() string { return "0x0000000000000000000000000000000000000001" }

func testQuotes() []Quote {
	return []Quote{
		{Side: venue.SideBuy, Price: 49_975, Size: 0.003, LevelIndex: 0},
		{Side: venue.SideSell, Price: 50_025, Size: 0.003, LevelIndex: 0},
	}
}

func TestReconcilePlacesAndTracks(t *testing.T) {
	exec := &fakeExec{}
	m := NewOrderManager("BTC", exec, zap.NewNop())

	require.NoError(t, m.Reconcile(context.Background(), testQuotes()))
	assert.Equal(t, 2, m.RestingCount())
	require.Len(t, exec.placed, 2)
	for _, req := range exec.placed {
		assert.True(t, req.AddLiquidityOnly, "every placement is post-only")
		assert.NotEmpty(t, req.ClientID)
	}
}

func TestReconcileCancelsBeforePlacing(t *testing.T) {
	exec := &fakeExec{}
	m := NewOrderManager("BTC", exec, zap.NewNop())

	require.NoError(t, m.Reconcile(context.Background(), testQuotes()))
	require.NoError(t, m.Reconcile(context.Background(), testQuotes()))

	// First cycle had nothing to cancel; second must cancel fully before
	// placing again.
	assert.Equal(t, []string{"place", "cancel", "place"}, exec.calls)
	assert.Len(t, exec.cancelled, 2)
	assert.Equal(t, 2, m.RestingCount())
}

func TestReconcileKeepsBeliefOnCancelTransportFailure(t *testing.T) {
	exec := &fakeExec{}
	m := NewOrderManager("BTC", exec, zap.NewNop())
	require.NoError(t, m.Reconcile(context.Background(), testQuotes()))

	exec.cancelErr = errors.New("timeout")
	err := m.Reconcile(context.Background(), testQuotes())
	assert.ErrorIs(t, err, ErrVenueUnreachable)
	assert.Equal(t, 2, m.RestingCount(), "unconfirmed cancels stay tracked")

	// Recovery: the retained belief is what gets cancelled next time.
	exec.cancelErr = nil
	require.NoError(t, m.Reconcile(context.Background(), testQuotes()))
	assert.Len(t, exec.cancelled, 2)
}

func TestReconcilePartialRejects(t *testing.T) {
	exec := &fakeExec{rejectEach: true}
	m := NewOrderManager("BTC", exec, zap.NewNop())

	require.NoError(t, m.Reconcile(context.Background(), testQuotes()),
		"per-order rejects do not fail the cycle")
	assert.Equal(t, 0, m.RestingCount())
}

func TestReconcilePlaceTransportFailure(t *testing.T) {
	exec := &fakeExec{placeErr: errors.New("connection reset")}
	m := NewOrderManager("BTC", exec, zap.NewNop())

	err := m.Reconcile(context.Background(), testQuotes())
	assert.ErrorIs(t, err, ErrVenueUnreachable)
	assert.Equal(t, 0, m.RestingCount())
}

func TestCancelAllEmptyIsNoop(t *testing.T) {
	exec := &fakeExec{}
	m := NewOrderManager("BTC", exec, zap.NewNop())

	require.NoError(t, m.CancelAll(context.Background()))
	assert.Empty(t, exec.calls, "no venue call without resting orders")
}

func TestSetExecutionSwapsHandle(t *testing.T) {
	old := &fakeExec{}
	m := NewOrderManager("BTC", old, zap.NewNop())
	require.NoError(t, m.Reconcile(context.Background(), testQuotes()))

	next := &fakeExec{}
	m.SetExecution(next)
	require.NoError(t, m.CancelAll(context.Background()))

	assert.Empty(t, old.cancelled)
	assert.Len(t, next.cancelled, 2, "resting orders are cancelled through the new handle")
}
