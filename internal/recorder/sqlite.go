package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"ForecastMailer/internal/model"
)

// SQLiteRecorder persists digest history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the service writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS digest_runs (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL UNIQUE,
			timestamp       INTEGER NOT NULL,
			run_date        TEXT,
			run_time        TEXT,
			market_open     TEXT,
			result_count    INTEGER,
			degraded_count  INTEGER,
			delivered       INTEGER NOT NULL DEFAULT 0,
			delivery_error  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON digest_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS ticker_results (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL,
			position        INTEGER NOT NULL,
			symbol          TEXT NOT NULL,
			name            TEXT,
			current_price   REAL,
			previous_close  REAL,
			percent_change  REAL,
			high_52w        REAL,
			low_52w         REAL,
			recommendation  TEXT,
			target_low      REAL,
			target_high     REAL,
			key_insight     TEXT,
			attempts        INTEGER,
			degraded        INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run ON ticker_results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_symbol ON ticker_results(symbol)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordDigest writes the run and all of its ticker results in one transaction.
func (r *SQLiteRecorder) RecordDigest(d *model.Digest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := d.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := tx.Exec(`INSERT INTO digest_runs
		(run_id, timestamp, run_date, run_time, market_open, result_count, degraded_count)
		VALUES (?,?,?,?,?,?,?)`,
		d.RunID, ts.Unix(), d.RunDate, d.RunTime, d.MarketOpenTime, len(d.Results), d.DegradedCount(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, res := range d.Results {
		q, a := res.Quote, res.Assessment
		if _, err := tx.Exec(`INSERT INTO ticker_results
			(run_id, position, symbol, name, current_price, previous_close, percent_change,
			 high_52w, low_52w, recommendation, target_low, target_high, key_insight, attempts, degraded)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			d.RunID, i, res.Ticker.Symbol, res.Ticker.Name,
			q.CurrentPrice.InexactFloat64(), q.PreviousClose.InexactFloat64(), q.PercentChange.InexactFloat64(),
			nullable(q.FiftyTwoWeekHigh), nullable(q.FiftyTwoWeekLow),
			string(a.Recommendation), a.PriceTarget.Low.InexactFloat64(), a.PriceTarget.High.InexactFloat64(),
			a.KeyInsight, res.Attempts, res.Degraded,
		); err != nil {
			return fmt.Errorf("insert result %s: %w", res.Ticker.Symbol, err)
		}
	}
	return tx.Commit()
}

// MarkDelivered stores the delivery outcome of a recorded run.
func (r *SQLiteRecorder) MarkDelivered(runID string, deliveryErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errText sql.NullString
	if deliveryErr != nil {
		errText = sql.NullString{String: deliveryErr.Error(), Valid: true}
	}
	_, err := r.db.Exec(`UPDATE digest_runs SET delivered = ?, delivery_error = ? WHERE run_id = ?`,
		deliveryErr == nil, errText, runID)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (r *SQLiteRecorder) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, timestamp, run_date, run_time, result_count, degraded_count, delivered
		FROM digest_runs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var ts int64
		if err := rows.Scan(&s.RunID, &ts, &s.RunDate, &s.RunTime, &s.Results, &s.Degraded, &s.Delivered); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.RecordedAt = time.Unix(ts, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func nullable(d decimal.NullDecimal) sql.NullFloat64 {
	if !d.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.Decimal.InexactFloat64(), Valid: true}
}
