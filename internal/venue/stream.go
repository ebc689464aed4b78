package venue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
)

const (
	streamReadTimeout  = 30 * time.Second
	streamPingInterval = 15 * time.Second
	maxReconnectDelay  = 30 * time.Second
)

// quoteMessage is the venue's wire format for a price update.
type quoteMessage struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"` // unix ms
}

// TickStream maintains a websocket subscription to the venue's quote feed
// and hands every tick to a callback. It reconnects with capped exponential
// backoff until the context is cancelled.
type TickStream struct {
	mu sync.Mutex

	url    string
	token  string
	symbol string
	onTick func(market.Tick)
	log    zerolog.Logger

	conn       *websocket.Conn
	running    bool
	reconnects int
}

// NewTickStream creates a stream for the configured symbol. onTick runs on
// the stream's read goroutine; it must not block.
func NewTickStream(cfg config.VenueConfig, onTick func(market.Tick)) *TickStream {
	return &TickStream{
		url:    cfg.StreamURL,
		token:  cfg.Token,
		symbol: cfg.Symbol,
		onTick: onTick,
		log:    logging.Component("stream"),
	}
}

// Run connects and pumps ticks until ctx is cancelled. A dropped connection
// is re-established; the error return is only ever ctx.Err().
func (s *TickStream) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		if err := s.connect(ctx); err != nil {
			s.log.Warn().Err(err).Int("attempt", s.reconnects).Msg("Stream connect failed")
		} else {
			s.reconnects = 0
			s.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			s.closeConn()
			return ctx.Err()
		case <-time.After(s.reconnectDelay()):
		}
		s.reconnects++
	}
}

func (s *TickStream) connect(ctx context.Context) error {
	header := make(map[string][]string)
	if s.token != "" {
		header["Authorization"] = []string{"Bearer " + s.token}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return err
	}

	sub := map[string]interface{}{"op": "subscribe", "symbol": s.symbol}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.log.Info().Str("symbol", s.symbol).Msg("Quote stream connected")
	return nil
}

func (s *TickStream) readLoop(ctx context.Context) {
	defer s.closeConn()

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(ctx, done)

	for {
		s.conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("Stream read failed, reconnecting")
			}
			return
		}

		var quote quoteMessage
		if err := json.Unmarshal(data, &quote); err != nil {
			s.log.Debug().Err(err).Msg("Skipping unparseable stream message")
			continue
		}
		if quote.Symbol != s.symbol || quote.Bid <= 0 || quote.Ask <= 0 {
			continue
		}

		s.onTick(market.Tick{
			Time: time.UnixMilli(quote.Time).UTC(),
			Bid:  quote.Bid,
			Ask:  quote.Ask,
		})
	}
}

func (s *TickStream) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *TickStream) reconnectDelay() time.Duration {
	delay := time.Second * time.Duration(1<<uint(s.reconnects))
	if delay > maxReconnectDelay || delay <= 0 {
		delay = maxReconnectDelay
	}
	return delay
}

func (s *TickStream) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
