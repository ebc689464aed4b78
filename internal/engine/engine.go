package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/consensus"
	"github.com/HCTech2/GOLD-HFT/internal/database"
	"github.com/HCTech2/GOLD-HFT/internal/events"
	"github.com/HCTech2/GOLD-HFT/internal/indicators"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
	"github.com/HCTech2/GOLD-HFT/internal/position"
	"github.com/HCTech2/GOLD-HFT/internal/risk"
	"github.com/HCTech2/GOLD-HFT/internal/scorer"
	"github.com/HCTech2/GOLD-HFT/internal/signal"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

// atrPeriod is the lookback for the volatility input to position sizing.
const atrPeriod = 14

// Venue is the full execution-venue surface the engine needs.
type Venue interface {
	Account(ctx context.Context) (venue.Account, error)
	Positions(ctx context.Context) ([]venue.Position, error)
	OpenPosition(ctx context.Context, req venue.OrderRequest) (venue.Position, error)
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	ClosePosition(ctx context.Context, ticket int64) error
	ClosedPosition(ctx context.Context, ticket int64) (venue.ClosedPosition, bool, error)
	Bars(ctx context.Context, tf market.Timeframe, limit int) ([]market.Bar, error)
}

// Deps are the engine's collaborators. Bus is required; Repo and Store are
// optional persistence, Scorer the optional confidence collaborator. Now
// defaults to time.Now.
type Deps struct {
	Venue  Venue
	Bus    *events.Bus
	Repo   *database.Repository
	Store  *database.RiskStateStore
	Scorer *scorer.Scorer
	Now    func() time.Time
}

// Engine owns the evaluation cycle: ticks in, indicator readings, consensus,
// the risk gate, sizing, and order submission. Configuration updates queue
// and apply atomically between cycles.
type Engine struct {
	mu  sync.RWMutex
	cfg *config.Config

	agg       *market.Aggregator
	ind       *indicators.Engine
	cons      *consensus.Evaluator
	resolver  *signal.Resolver
	gate      *risk.Gate
	sizer     *risk.Sizer
	positions *position.Manager

	venue  Venue
	bus    *events.Bus
	repo   *database.Repository
	store  *database.RiskStateStore
	scorer *scorer.Scorer
	now    func() time.Time
	log    zerolog.Logger

	pending *config.Config

	accepting atomic.Bool

	startedAt        time.Time
	lastTradeAt      time.Time
	lastSignal       signal.Signal
	signalsGenerated int
	tradesOpened     int
	realizedProfit   float64
}

// New wires the full pipeline from configuration.
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	e := &Engine{
		cfg:    cfg,
		venue:  deps.Venue,
		bus:    deps.Bus,
		repo:   deps.Repo,
		store:  deps.Store,
		scorer: deps.Scorer,
		now:    deps.Now,
		log:    logging.Component("engine"),
	}

	e.agg = market.NewAggregator(cfg.TradingConfig.TickBufferSize, maxBarsRetained(cfg))
	e.ind = indicators.NewEngine(cfg.SignalConfig)
	e.cons = consensus.New(cfg.ConsensusConfig, cfg.SignalConfig, e.ind, e.agg)
	e.resolver = signal.NewResolver(cfg.SignalConfig, e.ind, e.cons, e.agg)
	e.gate = risk.NewGate(cfg.RiskConfig, deps.Now)
	e.sizer = risk.NewSizer(cfg.SizingConfig)
	e.positions = position.NewManager(positionConfig(cfg), deps.Venue, e.agg, deps.Now, e.onOutcome)
	e.positions.OnLevelChange(e.onLevelChange)

	e.startedAt = deps.Now()
	e.accepting.Store(true)
	return e
}

// maxBarsRetained sizes the per-timeframe bar history. The slowest consumer
// is the oscillator's slow EMA window plus its stochastic lookback.
func maxBarsRetained(cfg *config.Config) int {
	needed := cfg.SignalConfig.STCSlowLength + cfg.SignalConfig.STCPeriod
	if cfg.SignalConfig.SenkouBPeriod > needed {
		needed = cfg.SignalConfig.SenkouBPeriod
	}
	if cfg.TradingConfig.WarmupBars > needed {
		needed = cfg.TradingConfig.WarmupBars
	}
	// Headroom so a snapshot request never races the retention boundary.
	return needed * 2
}

func positionConfig(cfg *config.Config) position.Config {
	return position.Config{
		Trailing:              cfg.TrailingConfig,
		ReactiveProfitEnabled: cfg.TradingConfig.ReactiveProfitEnabled,
		ProfitPerPosition:     cfg.TradingConfig.ProfitPerPosition,
		ProfitCumulative:      cfg.TradingConfig.ProfitCumulative,
	}
}

// OnTick feeds a venue quote into the aggregator. Safe to call from the
// stream goroutine.
func (e *Engine) OnTick(t market.Tick) {
	e.agg.Ingest(t)
}

// Positions exposes the lifecycle manager so callers can run its poll loop.
func (e *Engine) Positions() *position.Manager {
	return e.positions
}

// Gate exposes the risk gate for state restore at startup.
func (e *Engine) Gate() *risk.Gate {
	return e.gate
}

// WarmStart seeds bar history from the venue so indicators are live from the
// first cycle instead of after an hour of tick collection.
func (e *Engine) WarmStart(ctx context.Context) error {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	needed := maxBarsRetained(cfg)
	timeframes := []market.Timeframe{market.M1, market.M5}
	for _, name := range cfg.ConsensusConfig.Timeframes {
		if tf, err := market.ParseTimeframe(name); err == nil {
			timeframes = append(timeframes, tf)
		}
	}

	for _, tf := range timeframes {
		bars, err := e.venue.Bars(ctx, tf, needed)
		if err != nil {
			return err
		}
		e.agg.SeedBars(tf, bars)
		e.log.Debug().Str("timeframe", string(tf)).Int("bars", len(bars)).Msg("Seeded history")
	}

	e.log.Info().Int("timeframes", len(timeframes)).Msg("Warm start complete")
	return nil
}

// Run drives evaluation cycles until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.RLock()
	interval := e.cfg.EvalInterval()
	e.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.bus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{
		"symbol": e.cfg.VenueConfig.Symbol,
	}})
	e.log.Info().Dur("interval", interval).Msg("Engine running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Cycle(ctx)
		}
	}
}

// Cycle runs one evaluation: apply any queued config, resolve a signal, and
// submit it when everything downstream agrees.
func (e *Engine) Cycle(ctx context.Context) {
	e.applyPendingConfig()

	e.mu.RLock()
	warmup := e.cfg.TradingConfig.WarmupBars
	e.mu.RUnlock()

	if len(e.agg.Bars(market.M1, warmup)) < warmup {
		return
	}

	sig := e.resolver.Resolve(e.now())

	e.mu.Lock()
	e.lastSignal = sig
	if sig.Generated {
		e.signalsGenerated++
	}
	e.mu.Unlock()

	if !sig.Generated {
		return
	}

	e.bus.PublishSignal(string(sig.Side), sig.Reason, sig.M1STC, sig.Confidence)
	e.submit(ctx, sig)
}

// submit runs the pre-trade checks in order and opens the position when all
// pass: liveness, spread ceiling, position cap, trade pacing, risk gate.
func (e *Engine) submit(ctx context.Context, sig signal.Signal) {
	if !e.accepting.Load() {
		return
	}

	e.mu.RLock()
	cfg := e.cfg
	lastTradeAt := e.lastTradeAt
	e.mu.RUnlock()

	tick, ok := e.agg.LastTick()
	if !ok {
		return
	}

	spread := tick.Spread()
	if ceiling := cfg.TradingConfig.SpreadCeiling; ceiling > 0 && spread > ceiling {
		e.log.Debug().Float64("spread", spread).Float64("ceiling", ceiling).Msg("Spread too wide for entry")
		return
	}

	if e.positions.Count() >= cfg.TradingConfig.MaxPositions {
		e.log.Debug().Int("open", e.positions.Count()).Msg("Position cap reached")
		return
	}

	minGap := time.Duration(cfg.TradingConfig.MinSecondsBetweenTrade) * time.Second
	if !lastTradeAt.IsZero() && e.now().Sub(lastTradeAt) < minGap {
		return
	}

	if allowed, reason := e.gate.Check(sig.Side, e.positions.Exposure()); !allowed {
		e.log.Info().Str("reason", reason).Msg("Trade blocked by risk gate")
		e.bus.PublishRiskBlocked(reason)
		return
	}

	volatility := 0.0
	if atr, err := indicators.ATR(e.agg.Bars(market.M1, atrPeriod+1), atrPeriod); err == nil {
		volatility = atr
	}

	confidence := sig.Confidence / 100
	if e.scorer != nil {
		score := e.scorer.Score(ctx, scorer.Features{
			Side:          string(sig.Side),
			STCM1:         sig.M1STC,
			STCM5:         sig.M5STC,
			HTFConfidence: sig.Confidence,
			Spread:        spread,
			Volatility:    volatility,
		})
		// Blend the consensus confidence with the model's rating. A neutral
		// scorer leaves the consensus view dominant but damped.
		confidence = (confidence + score) / 2
	}

	volume := e.sizer.Volume(e.positions.Count(), volatility, confidence)

	entry := tick.Ask
	if sig.Side == venue.SideSell {
		entry = tick.Bid
	}
	levels := e.sizer.Levels(sig.Side, entry, spread, sig.TPMult, sig.SLMult)

	req := venue.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        cfg.VenueConfig.Symbol,
		Side:          sig.Side,
		Volume:        volume,
		StopLoss:      levels.StopLoss,
		TakeProfit:    levels.TakeProfit,
		Comment:       sig.Reason,
	}

	pos, err := e.venue.OpenPosition(ctx, req)
	if err != nil {
		e.log.Error().Err(err).Str("side", string(sig.Side)).Float64("volume", volume).Msg("Order submission failed")
		e.bus.PublishError("engine", "order submission failed", err)
		return
	}

	e.positions.Track(pos)
	e.bus.PublishOrderPlaced(pos.Ticket, string(pos.Side), pos.EntryPrice, pos.Volume, pos.StopLoss, pos.TakeProfit)

	e.mu.Lock()
	e.lastTradeAt = e.now()
	e.tradesOpened++
	e.mu.Unlock()

	if e.repo != nil {
		row := &database.JournalEntry{
			Ticket:       pos.Ticket,
			Symbol:       pos.Symbol,
			Side:         string(pos.Side),
			Volume:       pos.Volume,
			EntryPrice:   pos.EntryPrice,
			StopLoss:     pos.StopLoss,
			TakeProfit:   pos.TakeProfit,
			SignalReason: sig.Reason,
			Confidence:   sig.Confidence,
			OpenedAt:     pos.OpenedAt,
		}
		if err := e.repo.RecordOpen(ctx, row); err != nil {
			e.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("Journal insert failed")
		}
	}

	e.log.Info().
		Int64("ticket", pos.Ticket).
		Str("side", string(pos.Side)).
		Float64("volume", pos.Volume).
		Float64("entry", pos.EntryPrice).
		Float64("sl", pos.StopLoss).
		Float64("tp", pos.TakeProfit).
		Msg("Position opened")
}

// onLevelChange receives every accepted stop/target move from the lifecycle
// manager. The move is broadcast and the journal row updated so the recorded
// levels match what the venue holds.
func (e *Engine) onLevelChange(ticket int64, phase position.Phase, stopLoss, takeProfit float64) {
	e.bus.PublishStopMoved(ticket, string(phase), stopLoss, takeProfit)

	if e.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.repo.UpdateLevels(ctx, ticket, stopLoss, takeProfit); err != nil {
		e.log.Warn().Err(err).Int64("ticket", ticket).Msg("Journal level update failed")
	}
}

// onOutcome receives every close the lifecycle manager observes at the venue.
func (e *Engine) onOutcome(closed venue.ClosedPosition) {
	e.gate.RecordOutcome(closed.Profit)

	e.mu.Lock()
	e.realizedProfit += closed.Profit
	e.mu.Unlock()

	e.bus.PublishPositionClosed(closed.Ticket, string(closed.Side), closed.EntryPrice, closed.ClosePrice, closed.Volume, closed.Profit)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.repo != nil {
		if err := e.repo.RecordClose(ctx, closed.Ticket, closed.ClosePrice, closed.Profit, closed.ClosedAt); err != nil {
			e.log.Warn().Err(err).Int64("ticket", closed.Ticket).Msg("Journal close failed")
		}
	}
	if e.store != nil {
		if err := e.store.Save(ctx, e.gate.Snapshot()); err != nil {
			e.log.Warn().Err(err).Msg("Risk state save failed")
		}
	}
}

// UpdateConfig validates and queues a configuration update; the next cycle
// applies it atomically. A config that fails validation is rejected whole.
func (e *Engine) UpdateConfig(next *config.Config) error {
	if err := next.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.pending = next.Clone()
	e.mu.Unlock()

	e.log.Info().Msg("Configuration update queued")
	return nil
}

func (e *Engine) applyPendingConfig() {
	e.mu.Lock()
	next := e.pending
	e.pending = nil
	if next != nil {
		e.cfg = next
	}
	e.mu.Unlock()

	if next == nil {
		return
	}

	e.ind.UpdateConfig(next.SignalConfig)
	e.cons = consensus.New(next.ConsensusConfig, next.SignalConfig, e.ind, e.agg)
	e.resolver = signal.NewResolver(next.SignalConfig, e.ind, e.cons, e.agg)
	e.gate.UpdateConfig(next.RiskConfig)
	e.sizer.UpdateConfig(next.SizingConfig)
	e.positions.UpdateConfig(positionConfig(next))

	e.bus.Publish(events.Event{Type: events.EventConfigUpdated, Data: map[string]interface{}{}})
	e.log.Info().Msg("Configuration update applied")
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Clone()
}

// Snapshot is the engine's read-only state for the API and diagnostics.
type Snapshot struct {
	Time             time.Time              `json:"time"`
	StartedAt        time.Time              `json:"started_at"`
	Symbol           string                 `json:"symbol"`
	Accepting        bool                   `json:"accepting"`
	LastTick         *market.Tick           `json:"last_tick,omitempty"`
	Spread           float64                `json:"spread"`
	LastSignal       signal.Signal          `json:"last_signal"`
	Risk             risk.State             `json:"risk"`
	RiskStats        map[string]interface{} `json:"risk_stats"`
	Positions        []position.Tracked     `json:"positions"`
	MarketStats      market.Stats           `json:"market_stats"`
	SignalsGenerated int                    `json:"signals_generated"`
	TradesOpened     int                    `json:"trades_opened"`
	RealizedProfit   float64                `json:"realized_profit"`
}

// Snapshot returns a point-in-time view of the whole engine.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	snap := Snapshot{
		Time:             e.now(),
		StartedAt:        e.startedAt,
		Symbol:           e.cfg.VenueConfig.Symbol,
		Accepting:        e.accepting.Load(),
		LastSignal:       e.lastSignal,
		SignalsGenerated: e.signalsGenerated,
		TradesOpened:     e.tradesOpened,
		RealizedProfit:   e.realizedProfit,
	}
	e.mu.RUnlock()

	if tick, ok := e.agg.LastTick(); ok {
		snap.LastTick = &tick
		snap.Spread = tick.Spread()
	}
	snap.Risk = e.gate.Snapshot()
	snap.RiskStats = e.gate.Stats()
	snap.Positions = e.positions.Open()
	snap.MarketStats = e.agg.Stats()
	return snap
}

// Shutdown stops accepting new submissions, persists the risk state and the
// session summary, and reports the session on the bus. In-flight venue calls
// are unaffected.
func (e *Engine) Shutdown(ctx context.Context) {
	if !e.accepting.Swap(false) {
		return
	}

	e.mu.RLock()
	summary := &database.SessionSummary{
		StartedAt:        e.startedAt,
		EndedAt:          e.now(),
		FinalEquity:      e.gate.Equity(),
		TotalTrades:      e.tradesOpened,
		TotalProfit:      e.realizedProfit,
		SignalsGenerated: e.signalsGenerated,
		PositionsOpen:    e.positions.Count(),
	}
	e.mu.RUnlock()

	if e.store != nil {
		if err := e.store.Save(ctx, e.gate.Snapshot()); err != nil {
			e.log.Warn().Err(err).Msg("Risk state save failed at shutdown")
		}
	}
	if e.repo != nil {
		if err := e.repo.SaveSessionSummary(ctx, summary); err != nil {
			e.log.Warn().Err(err).Msg("Session summary save failed")
		}
	}

	e.bus.Publish(events.Event{Type: events.EventEngineStopped, Data: map[string]interface{}{
		"final_equity":      summary.FinalEquity,
		"total_trades":      summary.TotalTrades,
		"total_profit":      summary.TotalProfit,
		"signals_generated": summary.SignalsGenerated,
		"positions_open":    summary.PositionsOpen,
	}})

	e.log.Info().
		Float64("final_equity", summary.FinalEquity).
		Int("total_trades", summary.TotalTrades).
		Float64("total_profit", summary.TotalProfit).
		Int("signals_generated", summary.SignalsGenerated).
		Int("positions_open", summary.PositionsOpen).
		Msg("Session complete")
}
