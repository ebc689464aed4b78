package database

import (
	"context"
	"time"
)

// Repository provides data access for the trade journal and session reports.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// RecordOpen inserts a journal row for a freshly filled position.
func (r *Repository) RecordOpen(ctx context.Context, entry *JournalEntry) error {
	query := `
		INSERT INTO trade_journal (ticket, symbol, side, volume, entry_price, stop_loss, take_profit, signal_reason, confidence, opened_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		entry.Ticket, entry.Symbol, entry.Side, entry.Volume, entry.EntryPrice,
		entry.StopLoss, entry.TakeProfit, entry.SignalReason, entry.Confidence,
		entry.OpenedAt, TradeStatusOpen,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
}

// RecordClose settles the open journal row for a ticket with the realized
// figures. Closing a ticket the journal never saw is not an error; the venue
// can legitimately hold positions opened outside this engine.
func (r *Repository) RecordClose(ctx context.Context, ticket int64, exitPrice, profit float64, closedAt time.Time) error {
	query := `
		UPDATE trade_journal
		SET exit_price = $2, profit = $3, closed_at = $4, status = $5, updated_at = NOW()
		WHERE ticket = $1 AND status = $6
	`
	_, err := r.db.Pool.Exec(ctx, query, ticket, exitPrice, profit, closedAt, TradeStatusClosed, TradeStatusOpen)
	return err
}

// UpdateLevels records a protective-level move on the open journal row.
func (r *Repository) UpdateLevels(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	query := `
		UPDATE trade_journal
		SET stop_loss = $2, take_profit = $3, updated_at = NOW()
		WHERE ticket = $1 AND status = $4
	`
	_, err := r.db.Pool.Exec(ctx, query, ticket, stopLoss, takeProfit, TradeStatusOpen)
	return err
}

// RecentTrades returns the newest journal rows, most recent first.
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]JournalEntry, error) {
	query := `
		SELECT id, ticket, symbol, side, volume, entry_price, exit_price, stop_loss, take_profit,
		       profit, signal_reason, confidence, opened_at, closed_at, status, created_at, updated_at
		FROM trade_journal
		ORDER BY opened_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(
			&e.ID, &e.Ticket, &e.Symbol, &e.Side, &e.Volume, &e.EntryPrice, &e.ExitPrice,
			&e.StopLoss, &e.TakeProfit, &e.Profit, &e.SignalReason, &e.Confidence,
			&e.OpenedAt, &e.ClosedAt, &e.Status, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveSessionSummary persists the end-of-session report.
func (r *Repository) SaveSessionSummary(ctx context.Context, s *SessionSummary) error {
	query := `
		INSERT INTO session_summaries (started_at, ended_at, final_equity, total_trades, total_profit, signals_generated, positions_open)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		s.StartedAt, s.EndedAt, s.FinalEquity, s.TotalTrades, s.TotalProfit,
		s.SignalsGenerated, s.PositionsOpen,
	).Scan(&s.ID, &s.CreatedAt)
}
