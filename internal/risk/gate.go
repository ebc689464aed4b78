package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

// OpenExposure is the caller's snapshot of current open positions, used by
// the correlation and portfolio-risk protections. The correlation cap counts
// only positions sharing the proposed direction, so Buy and Sell are broken
// out alongside the total.
type OpenExposure struct {
	Positions  int     `json:"positions"`
	Buy        int     `json:"buy"`
	Sell       int     `json:"sell"`
	RiskAmount float64 `json:"risk_amount"` // account currency lost if every stop hits
}

// State is the persistable risk-gate state, saved across restarts so a
// process bounce cannot wipe the day's counters.
type State struct {
	Day               string    `json:"day"` // YYYY-MM-DD of the counters
	DailyPnL          float64   `json:"daily_pnl"`
	DailyTrades       int       `json:"daily_trades"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CooldownUntil     time.Time `json:"cooldown_until"`
	Equity            float64   `json:"equity"`
	PeakEquity        float64   `json:"peak_equity"`
}

// Gate is the pre-trade circuit breaker: a global switch plus six
// independently togglable protections, evaluated in a fixed order with
// short-circuit on the first violation.
type Gate struct {
	mu  sync.Mutex
	cfg config.RiskConfig
	now func() time.Time

	day               string
	dailyPnL          float64
	dailyTrades       int
	consecutiveLosses int
	cooldownUntil     time.Time
	equity            float64
	peakEquity        float64

	warnedGlobalOff bool
	warnedOff       map[string]bool

	logger zerolog.Logger
}

// NewGate creates a gate seeded with the configured initial equity. The clock
// is injected; pass time.Now outside tests.
func NewGate(cfg config.RiskConfig, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	g := &Gate{
		cfg:        cfg,
		now:        now,
		equity:     cfg.InitialEquity,
		peakEquity: cfg.InitialEquity,
		warnedOff:  make(map[string]bool),
		logger:     logging.Component("risk"),
	}
	g.day = dayOf(now())
	return g
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// resetCountersIfNeeded rolls the daily counters lazily when the calendar
// day changed since the last touch. Loss streak and cooldown survive the
// boundary; only daily counters reset.
func (g *Gate) resetCountersIfNeeded(now time.Time) {
	if d := dayOf(now); d != g.day {
		g.logger.Info().
			Str("previous_day", g.day).
			Float64("daily_pnl", g.dailyPnL).
			Int("daily_trades", g.dailyTrades).
			Msg("daily counters reset")
		g.day = d
		g.dailyPnL = 0
		g.dailyTrades = 0
	}
}

// skipDisabled reports true when a protection is off, warning once per
// protection per session so a silently disabled limit is visible in logs.
func (g *Gate) skipDisabled(name string, enabled bool) bool {
	if enabled {
		return false
	}
	if !g.warnedOff[name] {
		g.warnedOff[name] = true
		g.logger.Warn().Str("protection", name).Msg("protection disabled, skipping")
	}
	return true
}

// Check evaluates the protections in order: cooldown, daily loss, daily
// trades, drawdown, correlation, portfolio risk. The first violation blocks
// with its reason; a disabled global switch always allows. side is the
// proposed trade direction; the correlation cap counts only open positions
// on that same side.
func (g *Gate) Check(side venue.Side, exposure OpenExposure) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cfg.Enabled {
		if !g.warnedGlobalOff {
			g.warnedGlobalOff = true
			g.logger.Warn().Msg("circuit breaker disabled, all trades allowed")
		}
		return true, ""
	}

	now := g.now()
	g.resetCountersIfNeeded(now)

	if !g.skipDisabled("consecutive_losses", g.cfg.ConsecutiveLossesEnabled) {
		if g.cooldownActive(now) {
			remaining := g.cooldownUntil.Sub(now).Round(time.Second)
			return false, fmt.Sprintf("cooldown active after %d consecutive losses, %v remaining",
				g.consecutiveLosses, remaining)
		}
	}

	if !g.skipDisabled("daily_loss", g.cfg.DailyLossEnabled) {
		if -g.dailyPnL >= g.cfg.MaxDailyLoss {
			return false, fmt.Sprintf("daily loss limit reached: %.2f >= %.2f",
				-g.dailyPnL, g.cfg.MaxDailyLoss)
		}
	}

	if !g.skipDisabled("daily_trades", g.cfg.DailyTradesEnabled) {
		if g.dailyTrades >= g.cfg.MaxDailyTrades {
			return false, fmt.Sprintf("daily trade limit reached: %d trades", g.dailyTrades)
		}
	}

	if !g.skipDisabled("drawdown", g.cfg.DrawdownEnabled) {
		if g.peakEquity > 0 {
			dd := (g.peakEquity - g.equity) / g.peakEquity * 100
			if dd >= g.cfg.MaxDrawdownPercent {
				return false, fmt.Sprintf("drawdown limit reached: %.2f%% >= %.2f%%",
					dd, g.cfg.MaxDrawdownPercent)
			}
		}
	}

	if !g.skipDisabled("correlation", g.cfg.CorrelationEnabled) {
		sameDirection := exposure.Buy
		if side == venue.SideSell {
			sameDirection = exposure.Sell
		}
		if sameDirection >= g.cfg.MaxCorrelatedPositions {
			return false, fmt.Sprintf("correlated position limit reached: %d %s positions",
				sameDirection, side)
		}
	}

	if !g.skipDisabled("portfolio", g.cfg.PortfolioEnabled) {
		if g.equity > 0 {
			riskPct := exposure.RiskAmount / g.equity * 100
			if riskPct >= g.cfg.MaxPortfolioRiskPercent {
				return false, fmt.Sprintf("portfolio risk limit reached: %.2f%% >= %.2f%%",
					riskPct, g.cfg.MaxPortfolioRiskPercent)
			}
		}
	}

	return true, ""
}

// cooldownActive checks the loss-streak cooldown, clearing the streak once
// the cooldown has fully elapsed.
func (g *Gate) cooldownActive(now time.Time) bool {
	if !g.cooldownUntil.IsZero() {
		if now.Before(g.cooldownUntil) {
			return true
		}
		g.logger.Info().Msg("cooldown elapsed, loss streak cleared")
		g.cooldownUntil = time.Time{}
		g.consecutiveLosses = 0
	}
	return false
}

// RecordOutcome folds one closed trade into the counters. A breach of the
// consecutive-loss limit starts the timed cooldown.
func (g *Gate) RecordOutcome(profit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if math.IsNaN(profit) || math.IsInf(profit, 0) {
		g.logger.Error().Float64("profit", profit).Msg("ignoring invalid trade outcome")
		return
	}

	now := g.now()
	g.resetCountersIfNeeded(now)

	g.dailyTrades++
	g.dailyPnL += profit
	g.equity += profit
	if g.equity > g.peakEquity {
		g.peakEquity = g.equity
	}

	if profit < 0 {
		g.consecutiveLosses++
		if g.cfg.ConsecutiveLossesEnabled &&
			g.consecutiveLosses >= g.cfg.MaxConsecutiveLosses &&
			g.cooldownUntil.IsZero() {
			g.cooldownUntil = now.Add(g.cfg.Cooldown())
			g.logger.Warn().
				Int("consecutive_losses", g.consecutiveLosses).
				Time("cooldown_until", g.cooldownUntil).
				Msg("loss streak limit hit, cooldown started")
		}
	} else {
		g.consecutiveLosses = 0
	}

	g.logger.Info().
		Float64("profit", profit).
		Float64("daily_pnl", g.dailyPnL).
		Int("daily_trades", g.dailyTrades).
		Float64("equity", g.equity).
		Msg("trade outcome recorded")
}

// SetEquity overrides tracked equity from the venue's account snapshot.
func (g *Gate) SetEquity(equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.equity = equity
	if equity > g.peakEquity {
		g.peakEquity = equity
	}
}

// Equity returns the currently tracked equity.
func (g *Gate) Equity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.equity
}

// UpdateConfig swaps the protection settings. Counters are preserved.
func (g *Gate) UpdateConfig(cfg config.RiskConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
	g.warnedGlobalOff = false
	g.warnedOff = make(map[string]bool)
}

// Snapshot exports the counters for persistence.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Day:               g.day,
		DailyPnL:          g.dailyPnL,
		DailyTrades:       g.dailyTrades,
		ConsecutiveLosses: g.consecutiveLosses,
		CooldownUntil:     g.cooldownUntil,
		Equity:            g.equity,
		PeakEquity:        g.peakEquity,
	}
}

// Restore loads persisted counters. Counters from an earlier calendar day
// are discarded by the next lazy reset; the cooldown and streak carry over.
func (g *Gate) Restore(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.day = s.Day
	g.dailyPnL = s.DailyPnL
	g.dailyTrades = s.DailyTrades
	g.consecutiveLosses = s.ConsecutiveLosses
	g.cooldownUntil = s.CooldownUntil
	if s.Equity > 0 {
		g.equity = s.Equity
	}
	if s.PeakEquity > g.peakEquity {
		g.peakEquity = s.PeakEquity
	}
}

// Stats returns a snapshot for the status API.
func (g *Gate) Stats() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	drawdown := 0.0
	if g.peakEquity > 0 {
		drawdown = (g.peakEquity - g.equity) / g.peakEquity * 100
	}
	return map[string]interface{}{
		"enabled":            g.cfg.Enabled,
		"daily_pnl":          g.dailyPnL,
		"daily_trades":       g.dailyTrades,
		"consecutive_losses": g.consecutiveLosses,
		"cooldown_until":     g.cooldownUntil,
		"equity":             g.equity,
		"peak_equity":        g.peakEquity,
		"drawdown_percent":   drawdown,
	}
}
