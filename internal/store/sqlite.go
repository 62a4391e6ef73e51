package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"tradecal/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ AdjustmentReader = (*SQLiteStore)(nil)
var _ AdjustmentWriter = (*SQLiteStore)(nil)
var _ AssetWriter = (*SQLiteStore)(nil)

const sqliteDateLayout = "2006-01-02"

// SQLiteStore keeps asset metadata, splits and dividends in a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,

		`CREATE TABLE IF NOT EXISTS assets (
			sid INTEGER PRIMARY KEY,
			symbol TEXT NOT NULL UNIQUE,
			start_date TEXT,
			end_date TEXT,
			auto_close_date TEXT,
			exchange TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS splits (
			symbol TEXT NOT NULL,
			effective_date TEXT NOT NULL,
			ratio REAL NOT NULL,
			PRIMARY KEY (symbol, effective_date)
		);`,

		`CREATE TABLE IF NOT EXISTS dividends (
			symbol TEXT NOT NULL,
			ex_date TEXT NOT NULL,
			amount REAL NOT NULL,
			ratio REAL NOT NULL,
			record_date TEXT,
			declared_date TEXT,
			pay_date TEXT,
			PRIMARY KEY (symbol, ex_date)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// AssetWriter implementation
// ---------------------------------------------------------------------------

// WriteAssets inserts or replaces asset metadata rows.
func (s *SQLiteStore) WriteAssets(ctx context.Context, assets []domain.Asset) error {
	return s.inTx(ctx, `INSERT OR REPLACE INTO assets
		(sid, symbol, start_date, end_date, auto_close_date, exchange)
		VALUES (?, ?, ?, ?, ?, ?)`, len(assets), func(i int) []any {
		a := assets[i]
		return []any{a.SID, a.Symbol, formatDate(a.StartDate), formatDate(a.EndDate), formatDate(a.AutoCloseDate), a.Exchange}
	})
}

// Asset returns the metadata of symbol, or ErrUnknownAsset.
func (s *SQLiteStore) Asset(ctx context.Context, symbol string) (domain.Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT sid, symbol, start_date, end_date, auto_close_date, exchange
		FROM assets WHERE symbol = ?`, symbol)

	var a domain.Asset
	var start, end, autoClose sql.NullString
	var exchange sql.NullString
	if err := row.Scan(&a.SID, &a.Symbol, &start, &end, &autoClose, &exchange); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Asset{}, fmt.Errorf("%s: %w", symbol, ErrUnknownAsset)
		}
		return domain.Asset{}, err
	}
	a.StartDate = parseDate(start)
	a.EndDate = parseDate(end)
	a.AutoCloseDate = parseDate(autoClose)
	a.Exchange = exchange.String
	return a, nil
}

// ---------------------------------------------------------------------------
// AdjustmentWriter implementation
// ---------------------------------------------------------------------------

// WriteSplits inserts or replaces split rows.
func (s *SQLiteStore) WriteSplits(ctx context.Context, splits []domain.Split) error {
	return s.inTx(ctx, `INSERT OR REPLACE INTO splits (symbol, effective_date, ratio) VALUES (?, ?, ?)`,
		len(splits), func(i int) []any {
			sp := splits[i]
			return []any{sp.Symbol, formatDate(sp.EffectiveDate), sp.Ratio}
		})
}

// WriteDividends inserts or replaces dividend rows.
func (s *SQLiteStore) WriteDividends(ctx context.Context, dividends []domain.Dividend) error {
	return s.inTx(ctx, `INSERT OR REPLACE INTO dividends
		(symbol, ex_date, amount, ratio, record_date, declared_date, pay_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, len(dividends), func(i int) []any {
		d := dividends[i]
		return []any{d.Symbol, formatDate(d.ExDate), d.Amount, d.Ratio,
			formatDate(d.RecordDate), formatDate(d.DeclaredDate), formatDate(d.PayDate)}
	})
}

// ---------------------------------------------------------------------------
// AdjustmentReader implementation
// ---------------------------------------------------------------------------

// CumulativeAdjustment multiplies the ratios of every split and dividend of
// asset effective in (from, to]. An empty interval yields 1.
func (s *SQLiteStore) CumulativeAdjustment(ctx context.Context, asset string, from, to time.Time) (float64, error) {
	lo, hi := formatDate(from), formatDate(to)
	if lo >= hi {
		return 1, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ratio FROM splits WHERE symbol = ? AND effective_date > ? AND effective_date <= ?
		UNION ALL
		SELECT ratio FROM dividends WHERE symbol = ? AND ex_date > ? AND ex_date <= ?`,
		asset, lo, hi, asset, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("querying adjustments for %s: %w", asset, err)
	}
	defer rows.Close()

	factor := decimal.NewFromInt(1)
	for rows.Next() {
		var ratio float64
		if err := rows.Scan(&ratio); err != nil {
			return 0, err
		}
		factor = factor.Mul(decimal.NewFromFloat(ratio))
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return factor.InexactFloat64(), nil
}

// ListAdjustments returns the raw corporate actions of symbol, ascending by
// date: splits carry their ratio, dividends their cash amount.
func (s *SQLiteStore) ListAdjustments(ctx context.Context, symbol string) ([]domain.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT effective_date, 'SPLIT', ratio FROM splits WHERE symbol = ?
		UNION ALL
		SELECT ex_date, 'DIVIDEND', amount FROM dividends WHERE symbol = ?
		ORDER BY 1, 2`, symbol, symbol)
	if err != nil {
		return nil, fmt.Errorf("listing adjustments for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []domain.Adjustment
	for rows.Next() {
		var date sql.NullString
		var action string
		var value float64
		if err := rows.Scan(&date, &action, &value); err != nil {
			return nil, err
		}
		out = append(out, domain.Adjustment{
			Symbol: symbol,
			Date:   parseDate(date),
			Action: domain.AdjustmentAction(action),
			Value:  value,
		})
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// inTx executes stmt once per row inside a single transaction.
func (s *SQLiteStore) inTx(ctx context.Context, stmt string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for i := 0; i < n; i++ {
		if _, err := prepared.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return dayOf(t).Format(sqliteDateLayout)
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(sqliteDateLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
