package database

import "time"

// Journal entry status values
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)

// JournalEntry is one row of the trade journal.
type JournalEntry struct {
	ID           int64      `json:"id"`
	Ticket       int64      `json:"ticket"`
	Symbol       string     `json:"symbol"`
	Side         string     `json:"side"`
	Volume       float64    `json:"volume"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfit   float64    `json:"take_profit"`
	Profit       *float64   `json:"profit,omitempty"`
	SignalReason string     `json:"signal_reason"`
	Confidence   float64    `json:"confidence"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SessionSummary is the end-of-session report row.
type SessionSummary struct {
	ID               int64     `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	FinalEquity      float64   `json:"final_equity"`
	TotalTrades      int       `json:"total_trades"`
	TotalProfit      float64   `json:"total_profit"`
	SignalsGenerated int       `json:"signals_generated"`
	PositionsOpen    int       `json:"positions_open"`
	CreatedAt        time.Time `json:"created_at"`
}
