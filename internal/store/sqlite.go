package store

import (
	"context"
	"database/sql"
	"fmt"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/types"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ interfaces.TradeSink = (*SQLiteSink)(nil)

const tradesSchema = `
CREATE TABLE IF NOT EXISTS completed_trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT    NOT NULL,
	qty         INTEGER NOT NULL,
	entry_price REAL    NOT NULL,
	exit_price  REAL    NOT NULL,
	realized_pl REAL    NOT NULL,
	entry_time  TEXT    NOT NULL,
	exit_time   TEXT    NOT NULL,
	signal      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completed_trades_symbol ON completed_trades(symbol);
`

// SQLiteSink persists completed round-trips to a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) a SQLite database at dbPath and ensures
// the trades table exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(tradesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trades schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// RecordCompletedTrade inserts one completed round-trip.
func (s *SQLiteSink) RecordCompletedTrade(ctx context.Context, trade types.CompletedTrade) error {
	const q = `INSERT INTO completed_trades
		(symbol, qty, entry_price, exit_price, realized_pl, entry_time, exit_time, signal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		trade.Symbol,
		trade.Qty,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.RealizedPL,
		trade.EntryTime.Format("2006-01-02 15:04:05"),
		trade.ExitTime.Format("2006-01-02 15:04:05"),
		string(trade.Signal),
	)
	if err != nil {
		return fmt.Errorf("insert completed trade: %w", err)
	}
	return nil
}

// DailyRealizedPL sums realized P/L for trades exited on the given date
// (formatted "2006-01-02").
func (s *SQLiteSink) DailyRealizedPL(ctx context.Context, date string) (float64, error) {
	const q = `SELECT COALESCE(SUM(realized_pl), 0) FROM completed_trades
		WHERE exit_time LIKE ? || '%'`
	var total float64
	if err := s.db.QueryRowContext(ctx, q, date).Scan(&total); err != nil {
		return 0, fmt.Errorf("query daily realized pl: %w", err)
	}
	return total, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
