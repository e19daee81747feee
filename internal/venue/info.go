package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// RestInfoClient implements InfoClient against the venue's JSON info
// endpoint. All queries are POSTs of a typed request body.
type RestInfoClient struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewRestInfoClient creates an info client for the given venue base URL.
func NewRestInfoClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RestInfoClient {
	return &RestInfoClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *RestInfoClient) post(ctx context.Context, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal info request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build info request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("info request: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode info response: %w", err)
	}
	return nil
}

type metaResponse struct {
	Universe []struct {
		Name       string `json:"name"`
		SzDecimals int32  `json:"szDecimals"`
		PxDecimals int32  `json:"pxDecimals"`
	} `json:"universe"`
}

// Meta fetches instrument metadata for the whole universe.
func (c *RestInfoClient) Meta(ctx context.Context) ([]AssetMeta, error) {
	var resp metaResponse
	if err := c.post(ctx, map[string]string{"type": "meta"}, &resp); err != nil {
		return nil, err
	}
	metas := make([]AssetMeta, 0, len(resp.Universe))
	for _, u := range resp.Universe {
		metas = append(metas, AssetMeta{
			Name:          u.Name,
			SizeDecimals:  u.SzDecimals,
			PriceDecimals: u.PxDecimals,
		})
	}
	return metas, nil
}

// AllMids fetches the current mid price for every listed symbol. The venue
// reports prices as strings; unparseable entries are skipped.
func (c *RestInfoClient) AllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]string
	if err := c.post(ctx, map[string]string{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}
	mids := make(map[string]float64, len(raw))
	for symbol, s := range raw {
		px, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.logger.Warn("unparseable mid price", zap.String("symbol", symbol), zap.String("raw", s))
			continue
		}
		mids[symbol] = px
	}
	return mids, nil
}

type userStateResponse struct {
	AssetPositions []struct {
		Position struct {
			Coin          string  `json:"coin"`
			Szi           string  `json:"szi"`
			EntryPx       *string `json:"entryPx"`
			UnrealizedPnl string  `json:"unrealizedPnl"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// UserState fetches the open positions for an account address.
func (c *RestInfoClient) UserState(ctx context.Context, address string) ([]Position, error) {
	var resp userStateResponse
	req := map[string]string{"type": "clearinghouseState", "user": address}
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(resp.AssetPositions))
	for _, ap := range resp.AssetPositions {
		size, err := strconv.ParseFloat(ap.Position.Szi, 64)
		if err != nil {
			c.logger.Warn("unparseable position size",
				zap.String("symbol", ap.Position.Coin), zap.String("raw", ap.Position.Szi))
			continue
		}
		var entry float64
		if ap.Position.EntryPx != nil {
			entry, _ = strconv.ParseFloat(*ap.Position.EntryPx, 64)
		}
		upnl, _ := strconv.ParseFloat(ap.Position.UnrealizedPnl, 64)
		positions = append(positions, Position{
			Symbol:        ap.Position.Coin,
			Size:          size,
			EntryPrice:    entry,
			UnrealizedPnL: upnl,
		})
	}
	return positions, nil
}

// Candles fetches OHLCV bars for [start, end] in the given interval.
func (c *RestInfoClient) Candles(ctx context.Context, symbol, interval string, start, end int64) ([]Candle, error) {
	req := map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      symbol,
			"interval":  interval,
			"startTime": start,
			"endTime":   end,
		},
	}
	var candles []Candle
	if err := c.post(ctx, req, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}
