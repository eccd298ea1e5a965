// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"zerodha-stream/internal/models"
)

// DataStore persists backfilled candles, completed bars and order events.
type DataStore interface {
	SaveCandles(ctx context.Context, symbol string, interval models.Interval, candles []models.Candle) (int, error)
	GetCandles(ctx context.Context, symbol string, interval models.Interval, from, to time.Time) ([]models.Candle, error)
	SaveBar(ctx context.Context, bar models.Bar) error
	SaveOrderEvent(ctx context.Context, event models.OrderEvent) error
	Close() error
}

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candles table for backfilled historical OHLCV data
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(symbol, timeframe, timestamp);

	-- Bars table for completed live aggregates
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval_seconds INTEGER NOT NULL,
		bucket_start DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		tick_count INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, interval_seconds, bucket_start)
	);

	-- Order events emitted by the conditional order engines
	CREATE TABLE IF NOT EXISTS order_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		order_type TEXT NOT NULL,
		source TEXT NOT NULL,
		originating_order_id TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveCandles upserts a candle series. Returns the number of rows
// written; timestamps already present keep their first-written values.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol string, interval models.Interval, candles []models.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, c := range candles {
		res, err := stmt.ExecContext(ctx, symbol, string(interval), c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return written, fmt.Errorf("insert candle: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// GetCandles loads candles for a symbol/interval within [from, to],
// ordered ascending.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol string, interval models.Interval, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		symbol, string(interval), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// SaveBar upserts one completed bar.
func (s *SQLiteStore) SaveBar(ctx context.Context, bar models.Bar) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, interval_seconds, bucket_start, open, high, low, close, volume, tick_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bar.Symbol, bar.IntervalSeconds, bar.BucketStart.UTC(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.TickCount)
	if err != nil {
		return fmt.Errorf("insert bar: %w", err)
	}
	return nil
}

// SaveOrderEvent appends one order-submission event.
func (s *SQLiteStore) SaveOrderEvent(ctx context.Context, event models.OrderEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_events (timestamp, symbol, side, quantity, price, order_type, source, originating_order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp.UTC(), event.Symbol, string(event.Side), event.Quantity, event.Price,
		string(event.OrderType), event.SourceTag, event.OriginatingOrderID)
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ DataStore = (*SQLiteStore)(nil)
