package venue

import "context"

// Side is the order side at the venue.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderRequest is one order in a bulk placement.
type OrderRequest struct {
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	Price            float64 `json:"price"`
	Size             float64 `json:"size"`
	ReduceOnly       bool    `json:"reduce_only"`
	AddLiquidityOnly bool    `json:"add_liquidity_only"`
	ClientID         string  `json:"client_id"`
}

// PlaceStatus is the venue's per-order placement outcome.
type PlaceStatus string

const (
	PlaceResting  PlaceStatus = "resting"
	PlaceFilled   PlaceStatus = "filled"
	PlaceRejected PlaceStatus = "rejected"
)

// PlaceResult is the per-order response to a bulk placement.
type PlaceResult struct {
	OrderID uint64      `json:"order_id"`
	Status  PlaceStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
}

// CancelResult is the per-order response to a bulk cancel.
type CancelResult struct {
	OrderID   uint64 `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// AssetMeta carries the venue's decimal resolution for one instrument.
type AssetMeta struct {
	Name          string `json:"name"`
	SizeDecimals  int32  `json:"szDecimals"`
	PriceDecimals int32  `json:"pxDecimals"`
}

// Position is the venue's view of one open position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Candle is one OHLCV bar from the venue.
type Candle struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Trades    int64  `json:"n"`
}

// InfoClient is the read-only venue surface: metadata, prices, account state.
type InfoClient interface {
	Meta(ctx context.Context) ([]AssetMeta, error)
	AllMids(ctx context.Context) (map[string]float64, error)
	UserState(ctx context.Context, address string) ([]Position, error)
	Candles(ctx context.Context, symbol, interval string, start, end int64) ([]Candle, error)
}

// ExecutionClient is the order entry surface, possibly scoped to a vault
// address. Implementations must be safe for concurrent use.
type ExecutionClient interface {
	// BulkPlace submits all orders in a single request and returns one
	// result per order in submission order.
	BulkPlace(ctx context.Context, symbol string, orders []OrderRequest) ([]PlaceResult, error)
	// BulkCancel submits all cancels in a single request.
	BulkCancel(ctx context.Context, symbol string, orderIDs []uint64) ([]CancelResult, error)
	// MarketClose closes a signed position size with a market order,
	// bounded by the given slippage fraction.
	MarketClose(ctx context.Context, symbol string, size, slippage float64) error
	// Address is the wallet (or vault) the client trades for.
	Address() string
}

// ExecutionFactory builds execution clients. A non-empty vault address
// scopes the client to that sub-account; changing the vault requires a
// fresh client.
type ExecutionFactory interface {
	NewExecution(vaultAddress string) (ExecutionClient, error)
}
