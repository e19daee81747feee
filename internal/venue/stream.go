package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MidStream maintains the latest mid price per symbol from the venue's
// allMids WebSocket subscription. Readers get the last observed value;
// staleness is bounded by reconnect backoff.
type MidStream struct {
	wsURL  string
	logger *zap.Logger

	mu   sync.RWMutex
	mids map[string]float64
	last time.Time
}

// NewMidStream creates a stream for the given WebSocket URL. Run must be
// called before Mid returns data.
func NewMidStream(wsURL string, logger *zap.Logger) *MidStream {
	return &MidStream{
		wsURL:  wsURL,
		logger: logger,
		mids:   make(map[string]float64),
	}
}

// Mid returns the latest mid price for a symbol and whether one has been
// observed yet.
func (s *MidStream) Mid(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	px, ok := s.mids[symbol]
	return px, ok
}

// Seed primes the cache, typically from a REST snapshot taken at startup,
// so readers are not blocked waiting for the first stream message. Symbols
// already delivered by the stream are left alone.
func (s *MidStream) Seed(mids map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, px := range mids {
		if _, ok := s.mids[symbol]; !ok && px > 0 {
			s.mids[symbol] = px
		}
	}
}

// LastUpdate returns the time of the most recent price message.
func (s *MidStream) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run connects and consumes price updates until the context is cancelled,
// reconnecting with capped exponential backoff on any failure.
func (s *MidStream) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("mid stream disconnected", zap.Error(err), zap.Duration("backoff", backoff))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

type subscribeRequest struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
}

type streamMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

func (s *MidStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	sub := subscribeRequest{Method: "subscribe"}
	sub.Subscription.Type = "allMids"
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe allMids: %w", err)
	}
	s.logger.Info("subscribed to mid prices", zap.String("url", s.wsURL))

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("skipping unparseable stream message", zap.Error(err))
			continue
		}
		if msg.Channel != "allMids" || len(msg.Data.Mids) == 0 {
			continue
		}

		s.mu.Lock()
		for symbol, rawPx := range msg.Data.Mids {
			if px, err := strconv.ParseFloat(rawPx, 64); err == nil {
				s.mids[symbol] = px
			}
		}
		s.last = time.Now()
		s.mu.Unlock()
	}
}
