package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/circuit"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
)

// Client talks to the execution venue over its REST API. A circuit breaker
// sits in front of every call: a venue outage fails fast instead of stacking
// retries on a dead connection.
type Client struct {
	baseURL    string
	token      string
	symbol     string
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	breaker    *circuit.Breaker
	log        zerolog.Logger
}

// NewClient creates a REST client from venue connectivity settings.
func NewClient(cfg config.VenueConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		symbol:     cfg.Symbol,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond},
		breaker:    circuit.NewBreaker(circuit.DefaultConfig(), time.Now),
		log:        logging.Component("venue"),
	}
}

// barPayload is the venue's candlestick representation.
type barPayload struct {
	Time  int64   `json:"time"` // bucket start, unix ms
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
	Ticks int     `json:"tick_count"`
}

// orderResponse is the venue's acknowledgement of a new order.
type orderResponse struct {
	Ticket        int64   `json:"ticket"`
	ClientOrderID string  `json:"client_order_id"`
	FillPrice     float64 `json:"fill_price"`
	Volume        float64 `json:"volume"`
}

// Account fetches the account snapshot.
func (c *Client) Account(ctx context.Context) (Account, error) {
	var acct Account
	err := c.withRetry(ctx, func() error {
		return c.get(ctx, "/v1/account", nil, &acct)
	})
	return acct, err
}

// Positions lists the open positions for the configured symbol.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)

	var positions []Position
	err := c.withRetry(ctx, func() error {
		positions = positions[:0]
		return c.get(ctx, "/v1/positions", params, &positions)
	})
	return positions, err
}

// OpenPosition submits a market order with protective levels attached. A
// client order ID is generated when the request carries none, so a retried
// submission cannot fill twice.
func (c *Client) OpenPosition(ctx context.Context, req OrderRequest) (Position, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	if req.Symbol == "" {
		req.Symbol = c.symbol
	}

	var ack orderResponse
	err := c.withRetry(ctx, func() error {
		return c.post(ctx, "/v1/orders", req, &ack)
	})
	if err != nil {
		return Position{}, fmt.Errorf("open %s %.2f: %w", req.Side, req.Volume, err)
	}

	c.log.Info().
		Int64("ticket", ack.Ticket).
		Str("side", string(req.Side)).
		Float64("volume", ack.Volume).
		Float64("fill", ack.FillPrice).
		Msg("Order filled")

	return Position{
		Ticket:     ack.Ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     ack.Volume,
		EntryPrice: ack.FillPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   time.Now().UTC(),
	}, nil
}

// ModifyPosition moves the protective levels of an open position.
func (c *Client) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	body := map[string]float64{
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
	}
	path := fmt.Sprintf("/v1/positions/%d/modify", ticket)
	return c.withRetry(ctx, func() error {
		return c.post(ctx, path, body, nil)
	})
}

// ClosePosition closes an open position at market.
func (c *Client) ClosePosition(ctx context.Context, ticket int64) error {
	path := fmt.Sprintf("/v1/positions/%d", ticket)
	return c.withRetry(ctx, func() error {
		return c.delete(ctx, path)
	})
}

// ClosedPosition looks up the realized figures for a ticket that is no longer
// open. The second return is false when the venue has no record yet.
func (c *Client) ClosedPosition(ctx context.Context, ticket int64) (ClosedPosition, bool, error) {
	var closed ClosedPosition
	path := fmt.Sprintf("/v1/history/%d", ticket)
	err := c.withRetry(ctx, func() error {
		return c.get(ctx, path, nil, &closed)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ClosedPosition{}, false, nil
		}
		return ClosedPosition{}, false, err
	}
	return closed, true, nil
}

// Bars fetches historical candles for warm-starting the indicator window.
func (c *Client) Bars(ctx context.Context, timeframe market.Timeframe, limit int) ([]market.Bar, error) {
	params := url.Values{}
	params.Set("symbol", c.symbol)
	params.Set("timeframe", string(timeframe))
	params.Set("limit", strconv.Itoa(limit))

	var payload []barPayload
	err := c.withRetry(ctx, func() error {
		payload = payload[:0]
		return c.get(ctx, "/v1/bars", params, &payload)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s bars: %w", timeframe, err)
	}

	bars := make([]market.Bar, len(payload))
	for i, p := range payload {
		bars[i] = market.Bar{
			Start:     time.UnixMilli(p.Time).UTC(),
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			TickCount: p.Ticks,
			Complete:  true,
		}
	}
	return bars, nil
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}
	err := withRetry(ctx, c.maxRetries, c.backoff, fn)
	// Only connectivity-class failures count against the breaker; the venue
	// rejecting one order says nothing about the link.
	c.breaker.Record(isTransient(err))
	return err
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrRejected, string(body))
	case resp.StatusCode != http.StatusOK:
		return &apiError{Status: resp.StatusCode, Message: string(body)}
	}

	if out == nil {
		return nil
	}
	// A 200 with a body we cannot parse is treated like an outage: the venue
	// is misbehaving, not rejecting, so the call is worth retrying.
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	return nil
}
