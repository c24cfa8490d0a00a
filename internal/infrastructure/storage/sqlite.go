package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			size REAL NOT NULL,
			entry_fee REAL NOT NULL DEFAULT 0,
			exit_fee REAL NOT NULL DEFAULT 0,
			realized_pnl REAL NOT NULL,
			realized_pnl_pct REAL NOT NULL,
			exit_reason TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);`,
		`CREATE TABLE IF NOT EXISTS risk_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			daily_pnl_pct REAL NOT NULL,
			consecutive_losses INTEGER NOT NULL,
			peak_equity REAL NOT NULL,
			drawdown_pct REAL NOT NULL,
			halted BOOLEAN NOT NULL,
			halt_reason TEXT,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

// TradeRepository implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	query := `INSERT INTO trades (position_id, symbol, side, entry_price, exit_price, size, entry_fee, exit_fee, realized_pnl, realized_pnl_pct, exit_reason, opened_at, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.PositionID,
		trade.Symbol,
		string(trade.Side),
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Size,
		trade.EntryFee,
		trade.ExitFee,
		trade.RealizedPnL,
		trade.RealizedPnLPct,
		string(trade.ExitReason),
		trade.OpenedAt,
		trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT position_id, symbol, side, entry_price, exit_price, size, entry_fee, exit_fee, realized_pnl, realized_pnl_pct, exit_reason, opened_at, closed_at
			  FROM trades ORDER BY closed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, reason string
		if err := rows.Scan(
			&t.PositionID,
			&t.Symbol,
			&side,
			&t.EntryPrice,
			&t.ExitPrice,
			&t.Size,
			&t.EntryFee,
			&t.ExitFee,
			&t.RealizedPnL,
			&t.RealizedPnLPct,
			&reason,
			&t.OpenedAt,
			&t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) SaveRiskSnapshot(ctx context.Context, state *domain.RiskState) error {
	query := `INSERT INTO risk_snapshots (daily_pnl_pct, consecutive_losses, peak_equity, drawdown_pct, halted, halt_reason, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		state.DailyRealizedPnLPct,
		state.ConsecutiveLosses,
		state.PeakEquity,
		state.CurrentDrawdownPct,
		state.TradingHalted,
		state.HaltReason,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save risk snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
