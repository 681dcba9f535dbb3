// Package sqlite persists fetched bars and a journal of completed runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"forwardtest/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/forwardtest.db", or ":memory:"
}

// Store is the SQLite bar cache and run journal.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	dsn := cfg.DBPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			asset  TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (asset, ts)
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT    PRIMARY KEY,
			mode        TEXT    NOT NULL,
			asset       TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			bars        INTEGER NOT NULL,
			no_trades   INTEGER NOT NULL,
			final_cap   REAL    NOT NULL,
			return_pct  REAL    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			run_id       TEXT    NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			seq          INTEGER NOT NULL,
			side         TEXT    NOT NULL,
			entry        REAL    NOT NULL,
			exit         REAL    NOT NULL,
			entry_time   INTEGER NOT NULL,
			exit_time    INTEGER NOT NULL,
			duration_min REAL    NOT NULL,
			reason       TEXT    NOT NULL,
			pnl_quote    REAL    NOT NULL,
			pnl_pct      REAL    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS divergences (
			run_id           TEXT    NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			seq              INTEGER NOT NULL,
			ts               INTEGER NOT NULL,
			type             TEXT    NOT NULL,
			indicator        TEXT    NOT NULL,
			price_action     TEXT    NOT NULL,
			indicator_action TEXT    NOT NULL,
			severity         TEXT    NOT NULL,
			price            REAL    NOT NULL,
			impacted_trade   INTEGER NOT NULL,
			trade_side       TEXT,
			trade_result     TEXT,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}

// SaveBars upserts bars for an asset in a single transaction.
func (s *Store) SaveBars(ctx context.Context, asset string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (asset, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, asset, b.TS.UnixMilli(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
	}
	return tx.Commit()
}

// RecordRun writes a run with its trades and divergence events in one
// transaction. Recording the same run ID again replaces it.
func (s *Store) RecordRun(ctx context.Context, rec model.RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := recordRun(ctx, tx, rec); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite record run %s: %w", rec.RunID, err)
	}
	return tx.Commit()
}

func recordRun(ctx context.Context, tx *sql.Tx, rec model.RunRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, rec.RunID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, mode, asset, started_at, finished_at, bars, no_trades, final_cap, return_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Mode, rec.Asset, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
		rec.Bars, boolInt(rec.NoTrades), rec.FinalCap, rec.ReturnPct)
	if err != nil {
		return err
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, seq, side, entry, exit, entry_time, exit_time, duration_min, reason, pnl_quote, pnl_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()
	for i, t := range rec.Trades {
		if _, err := tradeStmt.ExecContext(ctx, rec.RunID, i, string(t.Side), t.EntryPrice, t.ExitPrice,
			t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(), t.DurationMin, string(t.Reason), t.PnLQuote, t.PnLPct); err != nil {
			return err
		}
	}

	divStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO divergences (run_id, seq, ts, type, indicator, price_action, indicator_action, severity, price, impacted_trade, trade_side, trade_result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer divStmt.Close()
	for i, d := range rec.Divergences {
		if _, err := divStmt.ExecContext(ctx, rec.RunID, i, d.TS.UnixMilli(), string(d.Type), d.Indicator,
			d.PriceAction, d.IndicatorAction, string(d.Severity), d.Price, boolInt(d.ImpactedTrade),
			string(d.TradeSide), string(d.TradeResult)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
