package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradecal/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ BarReader = (*ParquetStore)(nil)

// ParquetStore implements BarStore and BarReader using Parquet files on
// disk, one file per symbol and year.
type ParquetStore struct {
	DataDir string
	Market  domain.Market

	// spans caches the first and last bar date per symbol. WriteBars
	// drops the entries it touches.
	mu    sync.RWMutex
	spans map[string]barSpan
}

type barSpan struct {
	first, last time.Time
}

// NewParquetStore creates a new ParquetStore rooted at the given data
// directory for one market.
func NewParquetStore(dataDir string, market domain.Market) *ParquetStore {
	if market == "" {
		market = domain.MarketCN
	}
	return &ParquetStore{DataDir: dataDir, Market: market}
}

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms of the session date
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	Amount    float64 `parquet:"amount"`
}

func recordFromBar(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:    strings.ToUpper(b.Symbol),
		Timestamp: dayOf(b.Timestamp).UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Amount:    b.Amount,
	}
}

func (r BarRecord) bar() domain.Bar {
	return domain.Bar{
		Symbol:    r.Symbol,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Amount:    r.Amount,
	}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year,
// merging with what is already on disk:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		r := recordFromBar(b)
		k := key{symbol: r.Symbol, year: dayOf(b.Timestamp).Year()}
		groups[k] = append(groups[k], r)
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		err := writeParquetFile(path, merged)
		s.forgetSpan(k.symbol)
		if err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the given symbol with session dates in
// [start, end].
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	start, end = dayOf(start), dayOf(end)
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			// No file for this year.
			continue
		}

		lo, hi := start.UnixMilli(), end.UnixMilli()
		for _, r := range records {
			if r.Timestamp >= lo && r.Timestamp <= hi {
				bars = append(bars, r.bar())
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the store's market.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dailyDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// BarReader implementation
// ---------------------------------------------------------------------------

// Value returns field of the asset's bar on day. Days inside the asset's
// span without a bar are missing; so are price columns of a bar without
// volume. Days outside the span fail with ErrNoDataOnDate.
func (s *ParquetStore) Value(_ context.Context, asset string, day time.Time, field domain.Field) (float64, bool, error) {
	if !field.IsOHLCV() {
		return 0, false, fmt.Errorf("field %q is not a bar column", field)
	}
	d := dayOf(day)
	first, last, err := s.span(asset)
	if err != nil {
		return 0, false, err
	}
	if d.Before(first) {
		return 0, false, fmt.Errorf("%s on %s: %w", asset, d.Format("2006-01-02"), ErrBeforeFirstBar)
	}
	if d.After(last) {
		return 0, false, fmt.Errorf("%s on %s: %w", asset, d.Format("2006-01-02"), ErrNoDataOnDate)
	}

	records, err := readParquetFile[BarRecord](s.barPath(asset, d.Year()))
	if err != nil {
		return 0, false, nil
	}
	ts := d.UnixMilli()
	i := sort.Search(len(records), func(i int) bool { return records[i].Timestamp >= ts })
	if i == len(records) || records[i].Timestamp != ts {
		return 0, false, nil
	}

	bar := records[i].bar()
	if field == domain.FieldVolume {
		return float64(bar.Volume), true, nil
	}
	if !bar.Traded() {
		return 0, false, nil
	}
	v, _ := domain.BarField(bar, field)
	return v, true, nil
}

// LastTraded returns the session date of the latest bar with volume on or
// before day.
func (s *ParquetStore) LastTraded(_ context.Context, asset string, day time.Time) (time.Time, bool, error) {
	d := dayOf(day)
	first, last, err := s.span(asset)
	if err != nil {
		return time.Time{}, false, err
	}
	if d.Before(first) {
		return time.Time{}, false, nil
	}
	if d.After(last) {
		d = last
	}

	ts := d.UnixMilli()
	for year := d.Year(); year >= first.Year(); year-- {
		records, err := readParquetFile[BarRecord](s.barPath(asset, year))
		if err != nil {
			continue
		}
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].Timestamp <= ts && records[i].Volume > 0 {
				return time.UnixMilli(records[i].Timestamp).UTC(), true, nil
			}
		}
	}
	return time.Time{}, false, nil
}

// TradedDays returns every session date on which asset has a bar with
// volume, ascending.
func (s *ParquetStore) TradedDays(_ context.Context, asset string) ([]time.Time, error) {
	years, err := s.years(asset)
	if err != nil {
		return nil, err
	}
	var days []time.Time
	for _, y := range years {
		records, err := readParquetFile[BarRecord](s.barPath(asset, y))
		if err != nil {
			return nil, fmt.Errorf("reading %s %d: %w", asset, y, err)
		}
		for _, r := range records {
			if r.Volume > 0 {
				days = append(days, time.UnixMilli(r.Timestamp).UTC())
			}
		}
	}
	return days, nil
}

// span returns the first and last stored session dates of asset.
func (s *ParquetStore) span(asset string) (time.Time, time.Time, error) {
	key := strings.ToUpper(asset)
	s.mu.RLock()
	sp, ok := s.spans[key]
	s.mu.RUnlock()
	if ok {
		return sp.first, sp.last, nil
	}

	sp, err := s.readSpan(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	s.mu.Lock()
	if s.spans == nil {
		s.spans = make(map[string]barSpan)
	}
	s.spans[key] = sp
	s.mu.Unlock()
	return sp.first, sp.last, nil
}

func (s *ParquetStore) forgetSpan(symbol string) {
	s.mu.Lock()
	delete(s.spans, strings.ToUpper(symbol))
	s.mu.Unlock()
}

func (s *ParquetStore) readSpan(asset string) (barSpan, error) {
	years, err := s.years(asset)
	if err != nil {
		return barSpan{}, err
	}

	var sp barSpan
	for _, y := range years {
		records, err := readParquetFile[BarRecord](s.barPath(asset, y))
		if err == nil && len(records) > 0 {
			sp.first = time.UnixMilli(records[0].Timestamp).UTC()
			break
		}
	}
	for i := len(years) - 1; i >= 0; i-- {
		records, err := readParquetFile[BarRecord](s.barPath(asset, years[i]))
		if err == nil && len(records) > 0 {
			sp.last = time.UnixMilli(records[len(records)-1].Timestamp).UTC()
			break
		}
	}
	if sp.first.IsZero() {
		return barSpan{}, fmt.Errorf("%s: %w", asset, ErrUnknownAsset)
	}
	return sp, nil
}

// years lists the year files stored for asset, ascending.
func (s *ParquetStore) years(asset string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dailyDir(), strings.ToUpper(asset)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", asset, ErrUnknownAsset)
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		y, err := strconv.Atoi(strings.TrimSuffix(name, ".parquet"))
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) dailyDir() string {
	return filepath.Join(s.DataDir, string(s.Market), "daily")
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.dailyDir(), strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// dayOf truncates t to its civil date at midnight UTC.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
