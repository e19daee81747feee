package venue

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrBadCredentials indicates the wallet key is unusable; the caller's
// symbol task should terminate rather than retry.
var ErrBadCredentials = errors.New("venue: unusable wallet credentials")

// RestExecutionClient implements ExecutionClient against the venue's
// exchange endpoint. Actions are signed with the wallet key; when a vault
// address is set, the venue books orders against that sub-account.
type RestExecutionClient struct {
	baseURL string
	httpc   *http.Client
	key     *ecdsa.PrivateKey
	wallet  common.Address
	vault   string
	logger  *zap.Logger
	nonce   atomic.Uint64
}

type exchangeAction struct {
	Action    json.RawMessage `json:"action"`
	Nonce     uint64          `json:"nonce"`
	Signature string          `json:"signature"`
	Vault     string          `json:"vaultAddress,omitempty"`
}

// NewRestExecutionClient builds an execution client for one wallet key. An
// empty vaultAddress trades the wallet's own account; a non-empty one must
// be a valid hex address.
func NewRestExecutionClient(baseURL, walletKey, vaultAddress string, timeout time.Duration, logger *zap.Logger) (*RestExecutionClient, error) {
	key, err := crypto.HexToECDSA(walletKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if vaultAddress != "" && !common.IsHexAddress(vaultAddress) {
		return nil, fmt.Errorf("venue: invalid vault address %q", vaultAddress)
	}

	c := &RestExecutionClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		key:     key,
		wallet:  crypto.PubkeyToAddress(key.PublicKey),
		vault:   vaultAddress,
		logger:  logger,
	}
	c.nonce.Store(uint64(time.Now().UnixMilli()))
	return c, nil
}

// Address returns the account the client trades for: the vault address
// when one is set, otherwise the wallet address.
func (c *RestExecutionClient) Address() string {
	if c.vault != "" {
		return common.HexToAddress(c.vault).Hex()
	}
	return c.wallet.Hex()
}

func (c *RestExecutionClient) sign(action []byte, nonce uint64) (string, error) {
	payload := append(action, []byte(fmt.Sprintf("%d", nonce))...)
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, c.key)
	if err != nil {
		return "", fmt.Errorf("sign action: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

func (c *RestExecutionClient) submit(ctx context.Context, action any, out any) error {
	raw, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	nonce := c.nonce.Add(1)
	sig, err := c.sign(raw, nonce)
	if err != nil {
		return err
	}

	body, err := json.Marshal(exchangeAction{
		Action:    raw,
		Nonce:     nonce,
		Signature: sig,
		Vault:     c.vault,
	})
	if err != nil {
		return fmt.Errorf("marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/exchange", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchange request: unexpected status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode exchange response: %w", err)
		}
	}
	return nil
}

type placeAction struct {
	Type   string        `json:"type"`
	Orders []placedOrder `json:"orders"`
}

type placedOrder struct {
	Symbol     string  `json:"coin"`
	IsBuy      bool    `json:"isBuy"`
	Price      float64 `json:"limitPx"`
	Size       float64 `json:"sz"`
	ReduceOnly bool    `json:"reduceOnly"`
	Tif        string  `json:"tif"`
	ClientID   string  `json:"cloid,omitempty"`
}

type placeResponse struct {
	Statuses []struct {
		Resting *struct {
			Oid uint64 `json:"oid"`
		} `json:"resting,omitempty"`
		Filled *struct {
			Oid uint64 `json:"oid"`
		} `json:"filled,omitempty"`
		Error string `json:"error,omitempty"`
	} `json:"statuses"`
}

// BulkPlace submits the full order list as one exchange action. Per-order
// rejects come back in the result slice; only transport-level failures
// return an error.
func (c *RestExecutionClient) BulkPlace(ctx context.Context, symbol string, orders []OrderRequest) ([]PlaceResult, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	action := placeAction{Type: "order", Orders: make([]placedOrder, 0, len(orders))}
	for _, o := range orders {
		tif := "Gtc"
		if o.AddLiquidityOnly {
			tif = "Alo"
		}
		action.Orders = append(action.Orders, placedOrder{
			Symbol:     o.Symbol,
			IsBuy:      o.Side == SideBuy,
			Price:      o.Price,
			Size:       o.Size,
			ReduceOnly: o.ReduceOnly,
			Tif:        tif,
			ClientID:   o.ClientID,
		})
	}

	var resp placeResponse
	if err := c.submit(ctx, action, &resp); err != nil {
		return nil, err
	}

	results := make([]PlaceResult, 0, len(resp.Statuses))
	for _, st := range resp.Statuses {
		switch {
		case st.Resting != nil:
			results = append(results, PlaceResult{OrderID: st.Resting.Oid, Status: PlaceResting})
		case st.Filled != nil:
			results = append(results, PlaceResult{OrderID: st.Filled.Oid, Status: PlaceFilled})
		default:
			results = append(results, PlaceResult{Status: PlaceRejected, Reason: st.Error})
		}
	}
	return results, nil
}

type cancelAction struct {
	Type    string         `json:"type"`
	Cancels []cancelTarget `json:"cancels"`
}

type cancelTarget struct {
	Symbol  string `json:"coin"`
	OrderID uint64 `json:"oid"`
}

type cancelResponse struct {
	Statuses []struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	} `json:"statuses"`
}

// BulkCancel submits all cancels as one exchange action.
func (c *RestExecutionClient) BulkCancel(ctx context.Context, symbol string, orderIDs []uint64) ([]CancelResult, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	action := cancelAction{Type: "cancel", Cancels: make([]cancelTarget, 0, len(orderIDs))}
	for _, oid := range orderIDs {
		action.Cancels = append(action.Cancels, cancelTarget{Symbol: symbol, OrderID: oid})
	}

	var resp cancelResponse
	if err := c.submit(ctx, action, &resp); err != nil {
		return nil, err
	}

	results := make([]CancelResult, 0, len(orderIDs))
	for i, st := range resp.Statuses {
		if i >= len(orderIDs) {
			break
		}
		results = append(results, CancelResult{
			OrderID:   orderIDs[i],
			Cancelled: st.Success,
			Reason:    st.Error,
		})
	}
	return results, nil
}

type marketCloseAction struct {
	Type     string  `json:"type"`
	Symbol   string  `json:"coin"`
	IsBuy    bool    `json:"isBuy"`
	Size     float64 `json:"sz"`
	Slippage float64 `json:"slippage"`
}

// MarketClose flattens a signed position size: a short position (negative
// size) is closed with a buy, a long with a sell.
func (c *RestExecutionClient) MarketClose(ctx context.Context, symbol string, size, slippage float64) error {
	if size == 0 {
		return nil
	}
	action := marketCloseAction{
		Type:     "marketClose",
		Symbol:   symbol,
		IsBuy:    size < 0,
		Size:     abs(size),
		Slippage: slippage,
	}
	return c.submit(ctx, action, nil)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Factory creates execution clients that share a wallet key and venue
// endpoint but differ in vault scoping.
type Factory struct {
	baseURL   string
	walletKey string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewFactory validates the wallet key once and returns a factory for
// vault-scoped execution clients.
func NewFactory(baseURL, walletKey string, timeout time.Duration, logger *zap.Logger) (*Factory, error) {
	if _, err := crypto.HexToECDSA(walletKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	return &Factory{baseURL: baseURL, walletKey: walletKey, timeout: timeout, logger: logger}, nil
}

// NewExecution implements ExecutionFactory.
func (f *Factory) NewExecution(vaultAddress string) (ExecutionClient, error) {
	return NewRestExecutionClient(f.baseURL, f.walletKey, vaultAddress, f.timeout, f.logger)
}
