package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
)

// contractSize is the account-currency value of one price unit per lot.
const contractSize = 100.0

// MockVenue simulates an execution venue for development and tests: a random
// walk around a realistic gold price, instant fills, and server-side stop and
// target execution.
type MockVenue struct {
	mu sync.RWMutex

	symbol     string
	price      float64 // mid
	spread     float64
	balance    float64
	nextTicket int64
	positions  map[int64]*Position
	closed     map[int64]ClosedPosition
	rng        *rand.Rand
	onTick     func(market.Tick)
	log        zerolog.Logger
}

// NewMockVenue creates a simulated venue seeded with a realistic gold price.
func NewMockVenue(cfg config.VenueConfig, onTick func(market.Tick)) *MockVenue {
	return &MockVenue{
		symbol:     cfg.Symbol,
		price:      4250.00,
		spread:     0.35,
		balance:    100000.00,
		nextTicket: 1000,
		positions:  make(map[int64]*Position),
		closed:     make(map[int64]ClosedPosition),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		onTick:     onTick,
		log:        logging.Component("mock-venue"),
	}
}

// SetTickHandler wires the tick consumer. Call before Run.
func (m *MockVenue) SetTickHandler(fn func(market.Tick)) {
	m.mu.Lock()
	m.onTick = fn
	m.mu.Unlock()
}

// Run emits simulated ticks until ctx is cancelled.
func (m *MockVenue) Run(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	m.log.Info().Str("symbol", m.symbol).Float64("price", m.price).Msg("Simulated venue running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			tick := m.step(now.UTC())
			m.mu.RLock()
			fn := m.onTick
			m.mu.RUnlock()
			if fn != nil {
				fn(tick)
			}
		}
	}
}

// step advances the random walk, executes any stops the new price crossed,
// and returns the resulting tick.
func (m *MockVenue) step(now time.Time) market.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Random walk: roughly +/- 0.005% per step.
	m.price *= 1 + (m.rng.Float64()-0.5)*0.0001
	bid := m.price - m.spread/2
	ask := m.price + m.spread/2

	for ticket, pos := range m.positions {
		if hit, price := stopHit(pos, bid, ask); hit {
			m.settleLocked(ticket, price, now)
		}
	}

	return market.Tick{Time: now, Bid: bid, Ask: ask}
}

// stopHit reports whether the position's stop or target is crossed at the
// current quote, and the execution price.
func stopHit(pos *Position, bid, ask float64) (bool, float64) {
	if pos.Side == SideBuy {
		// A long closes at the bid.
		if pos.StopLoss > 0 && bid <= pos.StopLoss {
			return true, pos.StopLoss
		}
		if pos.TakeProfit > 0 && bid >= pos.TakeProfit {
			return true, pos.TakeProfit
		}
		return false, 0
	}
	if pos.StopLoss > 0 && ask >= pos.StopLoss {
		return true, pos.StopLoss
	}
	if pos.TakeProfit > 0 && ask <= pos.TakeProfit {
		return true, pos.TakeProfit
	}
	return false, 0
}

// Account returns the simulated account snapshot.
func (m *MockVenue) Account(ctx context.Context) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	equity := m.balance
	bid := m.price - m.spread/2
	ask := m.price + m.spread/2
	for _, pos := range m.positions {
		equity += unrealized(pos, bid, ask)
	}
	return Account{Balance: m.balance, Equity: equity}, nil
}

// Positions lists the open simulated positions with refreshed profit figures.
func (m *MockVenue) Positions(ctx context.Context) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bid := m.price - m.spread/2
	ask := m.price + m.spread/2
	out := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		p := *pos
		p.Profit = unrealized(pos, bid, ask)
		out = append(out, p)
	}
	return out, nil
}

// OpenPosition fills a market order instantly at the current quote.
func (m *MockVenue) OpenPosition(ctx context.Context, req OrderRequest) (Position, error) {
	if req.Volume <= 0 {
		return Position{}, fmt.Errorf("%w: volume %.4f", ErrRejected, req.Volume)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fill := m.price + m.spread/2 // longs fill at the ask
	if req.Side == SideSell {
		fill = m.price - m.spread/2
	}

	m.nextTicket++
	pos := &Position{
		Ticket:     m.nextTicket,
		Symbol:     m.symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		EntryPrice: fill,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   time.Now().UTC(),
	}
	m.positions[pos.Ticket] = pos

	m.log.Info().
		Int64("ticket", pos.Ticket).
		Str("side", string(req.Side)).
		Float64("volume", req.Volume).
		Float64("fill", fill).
		Msg("Simulated fill")

	return *pos, nil
}

// ModifyPosition moves the protective levels of an open simulated position.
func (m *MockVenue) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[ticket]
	if !ok {
		return ErrNotFound
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	return nil
}

// ClosePosition closes an open simulated position at the current quote.
func (m *MockVenue) ClosePosition(ctx context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[ticket]
	if !ok {
		return ErrNotFound
	}
	price := m.price - m.spread/2 // longs close at the bid
	if pos.Side == SideSell {
		price = m.price + m.spread/2
	}
	m.settleLocked(ticket, price, time.Now().UTC())
	return nil
}

// ClosedPosition returns the realized figures for a settled ticket.
func (m *MockVenue) ClosedPosition(ctx context.Context, ticket int64) (ClosedPosition, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	closed, ok := m.closed[ticket]
	return closed, ok, nil
}

// Bars synthesizes historical candles ending near the current price, for
// warm-starting the indicator window without a real history endpoint.
func (m *MockVenue) Bars(ctx context.Context, timeframe market.Timeframe, limit int) ([]market.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	step := timeframe.Duration()
	end := time.Now().UTC().Truncate(step)
	bars := make([]market.Bar, limit)

	price := m.price
	for i := limit - 1; i >= 0; i-- {
		open := price * (1 + (m.rng.Float64()-0.5)*0.0005)
		high := maxOf(open, price) * (1 + m.rng.Float64()*0.0003)
		low := minOf(open, price) * (1 - m.rng.Float64()*0.0003)
		bars[i] = market.Bar{
			Start:     end.Add(-step * time.Duration(limit-i)),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			TickCount: 1 + m.rng.Intn(200),
			Complete:  true,
		}
		price = open
	}
	return bars, nil
}

// settleLocked realizes a position at the given price. Callers hold m.mu.
func (m *MockVenue) settleLocked(ticket int64, price float64, now time.Time) {
	pos, ok := m.positions[ticket]
	if !ok {
		return
	}
	profit := (price - pos.EntryPrice) * pos.Volume * contractSize
	if pos.Side == SideSell {
		profit = (pos.EntryPrice - price) * pos.Volume * contractSize
	}

	m.balance += profit
	m.closed[ticket] = ClosedPosition{
		Ticket:     ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Volume:     pos.Volume,
		EntryPrice: pos.EntryPrice,
		ClosePrice: price,
		Profit:     profit,
		ClosedAt:   now,
	}
	delete(m.positions, ticket)

	m.log.Info().
		Int64("ticket", ticket).
		Float64("close", price).
		Float64("profit", profit).
		Msg("Simulated close")
}

func unrealized(pos *Position, bid, ask float64) float64 {
	if pos.Side == SideBuy {
		return (bid - pos.EntryPrice) * pos.Volume * contractSize
	}
	return (pos.EntryPrice - ask) * pos.Volume * contractSize
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minOf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
