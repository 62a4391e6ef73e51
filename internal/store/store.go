// Package store defines the storage contracts of the price resolver and the
// bundle writers, and implements them on Parquet files (bars) and SQLite
// (assets and corporate actions).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradecal/internal/domain"
)

var (
	// ErrNoDataOnDate is returned by a BarReader when the requested day lies
	// outside the span of bars stored for the asset.
	ErrNoDataOnDate = errors.New("no data on date")

	// ErrBeforeFirstBar is the ErrNoDataOnDate of a day earlier than the
	// asset's first bar. Nothing earlier will be found either.
	ErrBeforeFirstBar = fmt.Errorf("%w: before first bar", ErrNoDataOnDate)

	// ErrUnknownAsset is returned when nothing at all is stored for an asset.
	ErrUnknownAsset = errors.New("unknown asset")
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// BarReader answers point lookups against stored bars. A false ok with a nil
// error means the asset has no observation on day; that is data, not a
// failure.
type BarReader interface {
	// Value returns field of the bar of asset on day.
	Value(ctx context.Context, asset string, day time.Time, field domain.Field) (float64, bool, error)

	// LastTraded returns the date of the latest bar with volume on or before
	// day.
	LastTraded(ctx context.Context, asset string, day time.Time) (time.Time, bool, error)
}

// AdjustmentReader supplies corporate-action price factors.
type AdjustmentReader interface {
	// CumulativeAdjustment returns the product of all split and dividend
	// ratios of asset effective in (from, to].
	CumulativeAdjustment(ctx context.Context, asset string, from, to time.Time) (float64, error)
}

// AdjustmentWriter persists corporate actions.
type AdjustmentWriter interface {
	WriteSplits(ctx context.Context, splits []domain.Split) error
	WriteDividends(ctx context.Context, dividends []domain.Dividend) error
}

// AssetWriter persists asset metadata.
type AssetWriter interface {
	WriteAssets(ctx context.Context, assets []domain.Asset) error
}
