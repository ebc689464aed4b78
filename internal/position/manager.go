package position

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
	"github.com/HCTech2/GOLD-HFT/internal/risk"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

// contractSize converts price distance to account currency per lot for spot
// gold: one lot moves $100 per $1 of price.
const contractSize = 100.0

// Phase is the lifecycle stage of a managed position.
type Phase string

const (
	// PhaseNone: position open, stop at its initial level.
	PhaseNone Phase = "NONE"
	// PhaseSecured: profit crossed the secure threshold, stop locked past
	// breakeven and target extended.
	PhaseSecured Phase = "SECURED"
	// PhaseTrailing: profit crossed the extension trigger, stop and target
	// follow price at the trailing distance.
	PhaseTrailing Phase = "TRAILING"
)

// Tracked is the manager's view of one open position.
type Tracked struct {
	venue.Position
	Phase   Phase `json:"phase"`
	Adopted bool  `json:"adopted"` // found at the venue, not opened by us
	// stopFloor is the lowest (buy) or highest (sell) the stop may ever be
	// moved once secured. The stop is monotonic in the favorable direction.
	stopFloor float64
	floorSet  bool
}

// Venue is the manager's view of the execution venue.
type Venue interface {
	Positions(ctx context.Context) ([]venue.Position, error)
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	ClosePosition(ctx context.Context, ticket int64) error
	ClosedPosition(ctx context.Context, ticket int64) (venue.ClosedPosition, bool, error)
}

// PriceSource provides the latest quote.
type PriceSource interface {
	LastTick() (market.Tick, bool)
}

// Config holds the lifecycle thresholds. The trailing thresholds are in
// account currency; they convert to price offsets through the position
// volume.
type Config struct {
	Trailing              config.TrailingConfig
	ReactiveProfitEnabled bool
	ProfitPerPosition     float64
	ProfitCumulative      float64
}

// Manager polls the venue at a fixed interval and walks every open position
// through the None/Secured/Trailing phases. The venue is the source of
// truth: unknown tickets are adopted, vanished tickets are archived and
// reported as trade outcomes.
type Manager struct {
	mu        sync.RWMutex
	cfg       Config
	venue     Venue
	prices    PriceSource
	tracked   map[int64]*Tracked
	onOutcome func(venue.ClosedPosition)
	onLevels  func(ticket int64, phase Phase, stopLoss, takeProfit float64)
	now       func() time.Time
	logger    zerolog.Logger
}

// NewManager creates a manager. onOutcome receives every position close
// observed at the venue; pass time.Now as the clock outside tests.
func NewManager(cfg Config, v Venue, prices PriceSource, now func() time.Time, onOutcome func(venue.ClosedPosition)) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:       cfg,
		venue:     v,
		prices:    prices,
		tracked:   make(map[int64]*Tracked),
		onOutcome: onOutcome,
		now:       now,
		logger:    logging.Component("position"),
	}
}

// OnLevelChange registers a hook invoked after every accepted stop/target
// modification. Set it before Run starts.
func (m *Manager) OnLevelChange(fn func(ticket int64, phase Phase, stopLoss, takeProfit float64)) {
	m.onLevels = fn
}

// UpdateConfig swaps the lifecycle thresholds. Phases of open positions are
// preserved.
func (m *Manager) UpdateConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Track registers a position the engine just opened.
func (m *Manager) Track(p venue.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[p.Ticket] = &Tracked{Position: p, Phase: PhaseNone}
	m.logger.Info().
		Int64("ticket", p.Ticket).
		Str("side", string(p.Side)).
		Float64("entry", p.EntryPrice).
		Float64("volume", p.Volume).
		Msg("tracking new position")
}

// Run polls until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.Trailing.PollIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll runs one reconcile-and-manage cycle.
func (m *Manager) Poll(ctx context.Context) {
	live, err := m.venue.Positions(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("position poll failed, keeping last known state")
		return
	}

	m.reconcile(ctx, live)
	m.manage(ctx)
}

// reconcile aligns tracked state with the venue: adopt unknown tickets,
// archive vanished ones, refresh the rest.
func (m *Manager) reconcile(ctx context.Context, live []venue.Position) {
	m.mu.Lock()

	seen := make(map[int64]bool, len(live))
	for _, p := range live {
		seen[p.Ticket] = true
		if tr, ok := m.tracked[p.Ticket]; ok {
			tr.Volume = p.Volume
			tr.StopLoss = p.StopLoss
			tr.TakeProfit = p.TakeProfit
			tr.Profit = p.Profit
		} else {
			m.tracked[p.Ticket] = &Tracked{Position: p, Phase: PhaseNone, Adopted: true}
			m.logger.Warn().
				Int64("ticket", p.Ticket).
				Str("side", string(p.Side)).
				Msg("adopted position found at venue")
		}
	}

	var vanished []*Tracked
	for ticket, tr := range m.tracked {
		if !seen[ticket] {
			vanished = append(vanished, tr)
			delete(m.tracked, ticket)
		}
	}
	m.mu.Unlock()

	for _, tr := range vanished {
		m.archive(ctx, tr)
	}
}

// archive reports a vanished position as a trade outcome, preferring the
// venue's realized figures over our last snapshot.
func (m *Manager) archive(ctx context.Context, tr *Tracked) {
	closed, ok, err := m.venue.ClosedPosition(ctx, tr.Ticket)
	if err != nil || !ok {
		closed = venue.ClosedPosition{
			Ticket:     tr.Ticket,
			Symbol:     tr.Symbol,
			Side:       tr.Side,
			Volume:     tr.Volume,
			EntryPrice: tr.EntryPrice,
			Profit:     tr.Profit,
			ClosedAt:   m.now(),
		}
	}

	m.logger.Info().
		Int64("ticket", closed.Ticket).
		Float64("profit", closed.Profit).
		Str("phase", string(tr.Phase)).
		Msg("position closed at venue, archiving")

	if m.onOutcome != nil {
		m.onOutcome(closed)
	}
}

// manage applies the reactive profit close and the phase transitions to
// every tracked position. Decisions are made against a snapshot taken under
// the lock; venue calls happen after it is released so a slow venue round
// trip never stalls Track, Count, or Exposure.
func (m *Manager) manage(ctx context.Context) {
	tick, haveTick := m.prices.LastTick()
	if !haveTick {
		return
	}

	m.mu.RLock()
	cfg := m.cfg
	positions := make([]Tracked, 0, len(m.tracked))
	total := 0.0
	for _, tr := range m.tracked {
		positions = append(positions, *tr)
		total += tr.Profit
	}
	m.mu.RUnlock()

	if cfg.ReactiveProfitEnabled && len(positions) > 0 &&
		cfg.ProfitCumulative > 0 && total >= cfg.ProfitCumulative {
		m.logger.Info().
			Float64("total_profit", total).
			Int("positions", len(positions)).
			Msg("cumulative profit threshold hit, closing all")
		for _, tr := range positions {
			m.close(ctx, tr.Ticket, tr.Profit, "cumulative profit target")
		}
		return
	}

	for _, tr := range positions {
		if cfg.ReactiveProfitEnabled && cfg.ProfitPerPosition > 0 && tr.Profit >= cfg.ProfitPerPosition {
			m.close(ctx, tr.Ticket, tr.Profit, "per-position profit target")
			continue
		}
		if plan, ok := planAdvance(tr, cfg.Trailing, tick); ok {
			m.apply(ctx, tr.Phase, plan)
		}
	}
}

func (m *Manager) close(ctx context.Context, ticket int64, profit float64, reason string) {
	if err := m.venue.ClosePosition(ctx, ticket); err != nil {
		m.logger.Error().Err(err).Int64("ticket", ticket).Msg("reactive close failed")
		return
	}
	m.logger.Info().
		Int64("ticket", ticket).
		Float64("profit", profit).
		Str("reason", reason).
		Msg("position closed")
	// The next poll sees the ticket gone and archives it with the venue's
	// realized figures.
}

// offset converts an account-currency threshold into a price offset for this
// position's volume.
func offset(dollars, volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	return dollars / (volume * contractSize)
}

// levelPlan is one decided phase-machine step for a position: an optional
// venue modification plus the tracked-state changes to apply once it lands.
type levelPlan struct {
	ticket     int64
	modify     bool
	stopLoss   float64
	takeProfit float64
	phase      Phase
	setFloor   bool
	floor      float64
}

// planAdvance runs the phase machine for one position against a snapshot.
// Stops only ever move in the favorable direction, and never back past the
// secured floor.
func planAdvance(tr Tracked, cfg config.TrailingConfig, tick market.Tick) (levelPlan, bool) {
	switch tr.Phase {
	case PhaseNone:
		if tr.Profit < cfg.SecureProfit {
			return levelPlan{}, false
		}
		secureOffset := offset(cfg.SecureProfit, tr.Volume)
		extendOffset := offset(cfg.ExtensionTrigger, tr.Volume)

		var newSL, newTP float64
		if tr.Side == venue.SideBuy {
			newSL = tr.EntryPrice + secureOffset
			newTP = tr.TakeProfit + extendOffset
		} else {
			newSL = tr.EntryPrice - secureOffset
			newTP = tr.TakeProfit - extendOffset
		}
		return levelPlan{
			ticket: tr.Ticket, modify: true, stopLoss: newSL, takeProfit: newTP,
			phase: PhaseSecured, setFloor: true, floor: newSL,
		}, true

	case PhaseSecured, PhaseTrailing:
		phase := tr.Phase
		if phase == PhaseSecured {
			if tr.Profit < cfg.ExtensionTrigger {
				return levelPlan{}, false
			}
			phase = PhaseTrailing
		}

		trailOffset := offset(cfg.TrailingDistance, tr.Volume)
		var newSL, newTP float64
		improved := false
		if tr.Side == venue.SideBuy {
			price := tick.Bid
			newSL = price - trailOffset
			if tr.floorSet && newSL < tr.stopFloor {
				newSL = tr.stopFloor
			}
			newTP = math.Max(tr.TakeProfit, price+trailOffset)
			improved = newSL > tr.StopLoss
		} else {
			price := tick.Ask
			newSL = price + trailOffset
			if tr.floorSet && newSL > tr.stopFloor {
				newSL = tr.stopFloor
			}
			newTP = math.Min(tr.TakeProfit, price-trailOffset)
			improved = newSL < tr.StopLoss
		}
		if !improved {
			if phase != tr.Phase {
				// Extension trigger hit with no stop to move yet; record
				// the phase change without a venue call.
				return levelPlan{ticket: tr.Ticket, phase: phase}, true
			}
			return levelPlan{}, false
		}
		return levelPlan{ticket: tr.Ticket, modify: true, stopLoss: newSL, takeProfit: newTP, phase: phase}, true
	}
	return levelPlan{}, false
}

// apply executes one plan: the venue call first, then the tracked-state
// update under the lock. A ticket that vanished mid-flight is skipped; the
// next poll archives it.
func (m *Manager) apply(ctx context.Context, prevPhase Phase, plan levelPlan) {
	if plan.modify {
		if err := m.venue.ModifyPosition(ctx, plan.ticket, plan.stopLoss, plan.takeProfit); err != nil {
			m.logger.Error().Err(err).Int64("ticket", plan.ticket).Msg("stop modification rejected")
			return
		}
	}

	m.mu.Lock()
	tr, ok := m.tracked[plan.ticket]
	if ok {
		tr.Phase = plan.phase
		if plan.modify {
			tr.StopLoss = plan.stopLoss
			tr.TakeProfit = plan.takeProfit
		}
		if plan.setFloor {
			tr.stopFloor = plan.floor
			tr.floorSet = true
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if prevPhase == PhaseSecured && plan.phase == PhaseTrailing {
		m.logger.Info().
			Int64("ticket", plan.ticket).
			Msg("extension trigger hit, trailing started")
	}
	if !plan.modify {
		return
	}

	if plan.phase == PhaseSecured {
		m.logger.Info().
			Int64("ticket", plan.ticket).
			Float64("stop", plan.stopLoss).
			Float64("target", plan.takeProfit).
			Msg("profit secured, stop locked past entry")
	} else {
		m.logger.Debug().
			Int64("ticket", plan.ticket).
			Float64("stop", plan.stopLoss).
			Float64("target", plan.takeProfit).
			Msg("trailing stop advanced")
	}

	if m.onLevels != nil {
		m.onLevels(plan.ticket, plan.phase, plan.stopLoss, plan.takeProfit)
	}
}

// Open returns a snapshot of tracked positions.
func (m *Manager) Open() []Tracked {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tracked, 0, len(m.tracked))
	for _, tr := range m.tracked {
		out = append(out, *tr)
	}
	return out
}

// Count returns the number of tracked positions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracked)
}

// Exposure summarizes open positions for the risk gate: per-direction
// position counts plus the account-currency loss if every stop hits.
func (m *Manager) Exposure() risk.OpenExposure {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp := risk.OpenExposure{Positions: len(m.tracked)}
	for _, tr := range m.tracked {
		if tr.Side == venue.SideBuy {
			exp.Buy++
		} else {
			exp.Sell++
		}
		if tr.StopLoss <= 0 {
			continue
		}
		exp.RiskAmount += math.Abs(tr.EntryPrice-tr.StopLoss) * tr.Volume * contractSize
	}
	return exp
}

// TotalProfit returns the summed unrealized profit of tracked positions.
func (m *Manager) TotalProfit() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, tr := range m.tracked {
		total += tr.Profit
	}
	return total
}
